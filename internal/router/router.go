package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ryanfigueredo/mercadito-sub000/internal/checkout"
	"github.com/ryanfigueredo/mercadito-sub000/internal/config"
	"github.com/ryanfigueredo/mercadito-sub000/internal/middleware"
	"github.com/ryanfigueredo/mercadito-sub000/internal/payment"
	"github.com/ryanfigueredo/mercadito-sub000/internal/reconcile"
	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"
	"github.com/ryanfigueredo/mercadito-sub000/internal/validation"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type ShippingQuoter interface {
	Quote(ctx context.Context, postalCode string) (shipping.Quote, error)
}

// Deps are the components the HTTP layer drives.
type Deps struct {
	DB            *gorm.DB
	Redis         *rd.Client
	Products      *store.ProductStore
	Orders        *store.OrderStore
	Notifications *store.NotificationStore
	Engine        *reconcile.Engine
	Checkout      *checkout.Service
	Providers     *payment.Registry
	Quoter        ShippingQuoter
	Logger        *slog.Logger
}

type handler struct {
	Deps
	v *validatorv10.Validate
}

// Setup registers every HTTP route.
func Setup(r *gin.Engine, d Deps, cfg config.AppConfig) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handler{Deps: d, v: validation.New()}

	r.Use(middleware.Identify(cfg.AdminToken))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/healthz", h.healthz)

	api := r.Group("/api")
	api.GET("/products", h.listProducts)
	api.GET("/products/:id", h.getProduct)
	api.GET("/shipping/quote", h.shippingQuote)
	api.POST("/checkout",
		middleware.RedisRateLimit(d.Redis, "checkout", cfg.CheckoutRateLimit, cfg.CheckoutRateWindow, d.Logger),
		h.checkout)
	api.GET("/orders/:id", h.getOrder)
	api.POST("/webhooks/:provider", h.webhook)

	user := api.Group("", middleware.RequireUser())
	user.GET("/orders", h.listOrders)
	user.GET("/notifications", h.listNotifications)
	user.PATCH("/notifications/:id", h.markNotification)
	user.DELETE("/notifications/:id", h.deleteNotification)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id/stock", h.setStock)
	admin.POST("/products/:id/stock/adjust", h.adjustStock)
	admin.POST("/orders/:id/:action", h.orderAction)
}

func (h *handler) healthz(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{"db": "ok", "redis": "ok"}
	healthy := true
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["db"] = "down"
		healthy = false
	}
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "down"
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "msg": "unhealthy", "data": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": checks})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"code": 0, "msg": "ok", "data": data})
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"code": status, "msg": msg})
}

// statusFor maps domain errors to HTTP. Internal details stay out of 5xx
// bodies.
func statusFor(err error) (int, string) {
	var (
		short    *store.InsufficientStockError
		rejected *payment.RejectedError
		invalid  *validation.Error
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &short):
		return http.StatusConflict, short.Error()
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.As(err, &rejected):
		msg := "payment declined"
		if rejected.Message != "" {
			msg += ": " + rejected.Message
		}
		return http.StatusPaymentRequired, msg
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConcurrencyConflict):
		return http.StatusConflict, "order was modified concurrently, retry"
	case errors.Is(err, store.ErrInvalidStock):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, reconcile.ErrIllegalTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, reconcile.ErrUnknownAction),
		errors.Is(err, checkout.ErrUnsupportedMethod),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, payment.ErrUnknownProvider),
		errors.Is(err, payment.ErrMalformedPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, shipping.ErrOutOfRange), errors.Is(err, shipping.ErrPostalCodeNotFound):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, payment.ErrProviderUnavailable), errors.Is(err, shipping.ErrGeocoderUnavailable):
		return http.StatusServiceUnavailable, "upstream unavailable, try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal error"
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
