package router

import (
	"net/http"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"
	"github.com/ryanfigueredo/mercadito-sub000/internal/validation"

	"github.com/gin-gonic/gin"
)

func (h *handler) listProducts(c *gin.Context) {
	list, err := h.Products.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *handler) getProduct(c *gin.Context) {
	id, valid := parseUintParam(c, "id")
	if !valid {
		return
	}
	p, err := h.Products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *handler) createProduct(c *gin.Context) {
	var req validation.CreateProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p := &model.Product{Name: req.Name, Price: req.Price, Stock: req.Stock}
	if err := h.Products.Create(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	h.Logger.Info("product_created", "product_id", p.ID, "stock", p.Stock)
	ok(c, http.StatusCreated, p)
}

func (h *handler) setStock(c *gin.Context) {
	id, valid := parseUintParam(c, "id")
	if !valid {
		return
	}
	var req validation.SetStockRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.Products.SetStock(ctx, id, *req.Stock); err != nil {
		writeError(c, err)
		return
	}
	h.Logger.Info("stock_set", "product_id", id, "stock", *req.Stock)
	ok(c, http.StatusOK, gin.H{"product_id": id, "stock": *req.Stock})
}

func (h *handler) adjustStock(c *gin.Context) {
	id, valid := parseUintParam(c, "id")
	if !valid {
		return
	}
	var req validation.AdjustStockRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	stock, err := h.Products.Adjust(c.Request.Context(), id, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Logger.Info("stock_adjusted", "product_id", id, "delta", req.Delta, "stock", stock)
	ok(c, http.StatusOK, gin.H{"product_id": id, "stock": stock})
}

func (h *handler) shippingQuote(c *gin.Context) {
	postal := shipping.NormalizePostalCode(c.Query("postal_code"))
	if len(postal) != 8 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "postal_code must have 8 digits"})
		return
	}
	q, err := h.Quoter.Quote(c.Request.Context(), postal)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, q)
}
