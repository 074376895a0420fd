package router

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ryanfigueredo/mercadito-sub000/internal/checkout"
	"github.com/ryanfigueredo/mercadito-sub000/internal/middleware"
	"github.com/ryanfigueredo/mercadito-sub000/internal/payment"
	"github.com/ryanfigueredo/mercadito-sub000/internal/reconcile"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"
	"github.com/ryanfigueredo/mercadito-sub000/internal/validation"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "Idempotency-Key"

func (h *handler) checkout(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	if uid := middleware.UserID(c); uid != "" && uid != req.CustomerID {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "msg": "customer_id does not match caller"})
		return
	}

	items := make([]checkout.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, checkout.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	res, err := h.Checkout.Checkout(c.Request.Context(), checkout.Request{
		Customer: payment.Customer{
			ID:        req.CustomerID,
			Name:      req.Customer.Name,
			Email:     req.Customer.Email,
			Document:  req.Customer.Document,
			Phone:     req.Customer.Phone,
			CardToken: req.CardToken,
		},
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		Provider:      req.Provider,
		Address: checkout.Address{
			Line:       req.Address.Line,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
		},
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		h.Logger.Warn("checkout_failed", "customer_id", req.CustomerID, "provider", req.Provider, "err", err)
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	ok(c, status, gin.H{
		"order":            res.Order,
		"client_reference": res.ClientReference,
		"replayed":         res.Replayed,
	})
}

// getOrder is visible to the owner and to admins. Anyone else gets 404 so
// order ids cannot be probed.
func (h *handler) getOrder(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !middleware.IsAdmin(c) && o.CustomerID != middleware.UserID(c) {
		writeError(c, store.ErrNotFound)
		return
	}
	ok(c, http.StatusOK, o)
}

func (h *handler) listOrders(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	list, err := h.Orders.ListByCustomer(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *handler) orderAction(c *gin.Context) {
	action, err := reconcile.ParseAction(c.Param("action"))
	if err != nil {
		writeError(c, err)
		return
	}
	orderID := c.Param("id")
	res, err := h.Engine.ApplyAction(c.Request.Context(), orderID, action)
	if err != nil {
		h.Logger.Warn("order_action_failed", "order_id", orderID, "action", action, "err", err)
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"order": res.Order, "from": res.From, "to": res.To})
}

const maxWebhookBody = 1 << 20

// webhook authenticates and normalizes a provider notification, then hands it
// to the engine. Once the caller is authenticated and the payload parses,
// the provider gets a 2xx whatever happens to the event internally. The one
// exception is a failed payment detail fetch, which a redelivery can fix.
func (h *handler) webhook(c *gin.Context) {
	provider, err := h.Providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": "unknown provider"})
		return
	}
	body, err := readLimited(c, maxWebhookBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "unreadable body"})
		return
	}

	ctx := c.Request.Context()
	ev, err := provider.NormalizeWebhook(ctx, c.Request.Header, body)
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrUnauthenticated):
		h.Logger.Warn("webhook_unauthenticated", "provider", provider.Name(), "client_ip", c.ClientIP())
		writeError(c, err)
		return
	case errors.Is(err, payment.ErrMalformedPayload):
		h.Logger.Warn("webhook_malformed", "provider", provider.Name(), "err", err)
		writeError(c, err)
		return
	case errors.Is(err, payment.ErrUnrecognizedEvent):
		h.Logger.Info("webhook_ignored", "provider", provider.Name(), "reason", err.Error())
		ok(c, http.StatusOK, gin.H{"processed": false})
		return
	case errors.Is(err, payment.ErrProviderUnavailable):
		h.Logger.Warn("webhook_fetch_unavailable", "provider", provider.Name(), "err", err)
		writeError(c, err)
		return
	default:
		h.Logger.Error("webhook_normalize_failed", "provider", provider.Name(), "err", err)
		ok(c, http.StatusOK, gin.H{"processed": false})
		return
	}

	res, err := h.Engine.HandleEvent(ctx, ev)
	if err != nil {
		event := "webhook_event_failed"
		if errors.Is(err, store.ErrNotFound) {
			event = "webhook_order_not_found"
		}
		h.Logger.Warn(event,
			"provider", ev.Provider,
			"payment_id", ev.PaymentID,
			"external_reference", ev.ExternalReference,
			"event_kind", ev.Kind,
			"err", err)
		ok(c, http.StatusOK, gin.H{"processed": false})
		return
	}
	ok(c, http.StatusOK, gin.H{"processed": true, "changed": res.Changed, "status": res.To})
}

func readLimited(c *gin.Context, limit int64) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, limit))
}
