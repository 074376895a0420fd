package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/payment"
	"github.com/ryanfigueredo/mercadito-sub000/internal/reconcile"
	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"
	"github.com/ryanfigueredo/mercadito-sub000/pkg/redis"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

var (
	ErrCheckoutInProgress = errors.New("checkout with this idempotency key is in progress")
	ErrUnsupportedMethod  = errors.New("payment method not supported by provider")
	ErrEmptyCart          = errors.New("cart is empty")
)

type Products interface {
	GetMany(ctx context.Context, ids []uint) (map[uint]model.Product, error)
	Reserve(ctx context.Context, items []model.OrderItem) error
	Release(ctx context.Context, items []model.OrderItem) error
}

type Orders interface {
	Create(ctx context.Context, o *model.Order) error
	Get(ctx context.Context, id string) (*model.Order, error)
}

type Quoter interface {
	Quote(ctx context.Context, postalCode string) (shipping.Quote, error)
}

type Providers interface {
	Get(name string) (payment.Provider, error)
}

// EventApplier feeds a synchronous provider outcome into the order lifecycle.
type EventApplier interface {
	ApplyEvent(ctx context.Context, orderID string, ev model.PaymentEvent) (reconcile.Result, error)
}

type Item struct {
	ProductID uint
	Quantity  int
}

type Address struct {
	Line       string
	City       string
	State      string
	PostalCode string
}

type Request struct {
	Customer       payment.Customer
	Items          []Item
	PaymentMethod  string
	Provider       string
	Address        Address
	IdempotencyKey string
}

type Result struct {
	Order           *model.Order
	ClientReference string
	// Replayed is true when an earlier checkout with the same idempotency
	// key is returned instead of a new one.
	Replayed bool
}

type Config struct {
	ProviderTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	StateTTL        time.Duration
	LockTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.ProviderTimeout*time.Duration(c.RetryAttempts) + 30*time.Second
	}
	return c
}

type Service struct {
	products  Products
	orders    Orders
	quoter    Quoter
	providers Providers
	events    EventApplier
	rdb       *rd.Client
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

type Deps struct {
	Products  Products
	Orders    Orders
	Quoter    Quoter
	Providers Providers
	Events    EventApplier
	// Redis backs idempotency keys. Without it the header is ignored.
	Redis  *rd.Client
	Logger *slog.Logger
}

func NewService(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		products:  d.Products,
		orders:    d.Orders,
		quoter:    d.Quoter,
		providers: d.Providers,
		events:    d.Events,
		rdb:       d.Redis,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Checkout places an order. With an idempotency key, a repeat of a
// completed checkout returns the same order and a concurrent duplicate
// fails with ErrCheckoutInProgress.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey == "" || s.rdb == nil {
		return s.place(ctx, req)
	}
	customerID, key := req.Customer.ID, req.IdempotencyKey

	if res, ok, err := s.replay(ctx, customerID, key); err != nil || ok {
		return res, err
	}
	token := uuid.NewString()
	ok, err := redis.AcquireCheckoutLock(ctx, s.rdb, customerID, key, token, s.cfg.LockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("checkout lock: %w", err)
	}
	if !ok {
		return Result{}, ErrCheckoutInProgress
	}
	defer func() {
		if err := redis.ReleaseCheckoutLockIfMatch(context.WithoutCancel(ctx), s.rdb, customerID, key, token); err != nil {
			s.logger.Warn("checkout_lock_release_failed", "customer_id", customerID, "err", err)
		}
	}()

	// the previous holder may have finished between replay and lock
	if res, ok, err := s.replay(ctx, customerID, key); err != nil || ok {
		return res, err
	}

	res, err := s.place(ctx, req)
	if err != nil {
		return res, err
	}
	st := redis.CheckoutState{Status: redis.CheckoutSucceeded, OrderID: res.Order.ID}
	if err := redis.PutCheckoutState(context.WithoutCancel(ctx), s.rdb, customerID, key, st, s.cfg.StateTTL); err != nil {
		s.logger.Warn("checkout_state_save_failed", "customer_id", customerID, "order_id", res.Order.ID, "err", err)
	}
	return res, nil
}

func (s *Service) replay(ctx context.Context, customerID, key string) (Result, bool, error) {
	st, found, err := redis.GetCheckoutState(ctx, s.rdb, customerID, key)
	if err != nil {
		return Result{}, false, fmt.Errorf("checkout state: %w", err)
	}
	if !found || st.Status != redis.CheckoutSucceeded {
		return Result{}, false, nil
	}
	o, err := s.orders.Get(ctx, st.OrderID)
	if err != nil {
		return Result{}, false, fmt.Errorf("replay order %s: %w", st.OrderID, err)
	}
	s.logger.Info("checkout_replayed", "customer_id", customerID, "order_id", o.ID)
	return Result{Order: o, ClientReference: o.ClientReference, Replayed: true}, true, nil
}

// place runs one checkout: price, reserve, open the provider session,
// persist. Anything failing before the order is stored gives the
// reservation back.
func (s *Service) place(ctx context.Context, req Request) (Result, error) {
	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return Result{}, err
	}
	if !payment.Supports(provider, req.PaymentMethod) {
		return Result{}, fmt.Errorf("%w: %s does not accept %s", ErrUnsupportedMethod, provider.Name(), req.PaymentMethod)
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return Result{}, err
	}
	quote, err := s.quoter.Quote(ctx, req.Address.PostalCode)
	if err != nil {
		return Result{}, err
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		CustomerID:     req.Customer.ID,
		Status:         model.OrderPending,
		ShippingAmount: quote.Rate,
		PaymentMethod:  req.PaymentMethod,
		AddressLine:    req.Address.Line,
		City:           req.Address.City,
		State:          req.Address.State,
		PostalCode:     shipping.NormalizePostalCode(req.Address.PostalCode),
		ProviderName:   provider.Name(),
		Items:          items,
	}
	order.TotalAmount = order.ItemsTotal() + order.ShippingAmount

	if err := s.products.Reserve(ctx, items); err != nil {
		return Result{}, err
	}

	handle, err := s.openSession(ctx, provider, order, req.Customer)
	if err != nil {
		s.release(ctx, order, "session_failed")
		return Result{}, err
	}
	order.ProviderSessionID = handle.ProviderSessionID
	order.ProviderChargeID = handle.ChargeID
	order.ClientReference = handle.ClientReference

	if err := s.orders.Create(ctx, order); err != nil {
		s.release(ctx, order, "persist_failed")
		s.logger.Error("checkout_orphan_session",
			"order_id", order.ID,
			"provider", provider.Name(),
			"session_id", handle.ProviderSessionID,
			"err", err,
		)
		return Result{}, fmt.Errorf("persist order: %w", err)
	}
	s.logger.Info("order_created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"provider", provider.Name(),
		"total", order.TotalAmount,
	)

	if handle.Outcome != "" {
		order = s.applyOutcome(ctx, order, handle)
	}
	return Result{Order: order, ClientReference: handle.ClientReference}, nil
}

// priceItems merges duplicate lines and snapshots current catalog prices.
func (s *Service) priceItems(ctx context.Context, lines []Item) ([]model.OrderItem, error) {
	qty := make(map[uint]int, len(lines))
	var ids []uint
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("quantity for product %d must be positive", l.ProductID)
		}
		if _, seen := qty[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}
	if len(ids) == 0 {
		return nil, ErrEmptyCart
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]model.OrderItem, 0, len(ids))
	for _, id := range ids {
		p := products[id]
		items = append(items, model.OrderItem{
			ProductID:   id,
			ProductName: p.Name,
			Quantity:    qty[id],
			UnitPrice:   p.Price,
		})
	}
	return items, nil
}

// openSession retries ErrProviderUnavailable with exponential backoff. Each
// attempt has its own deadline. The order id is sent as the provider's
// idempotency key, so a retry after a lost response does not double charge.
func (s *Service) openSession(ctx context.Context, p payment.Provider, order *model.Order, customer payment.Customer) (payment.SessionHandle, error) {
	backoff := s.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		handle, err := p.CreateSession(attemptCtx, order, order.Items, customer)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return handle, nil
		}
		if timedOut && ctx.Err() == nil && !errors.Is(err, payment.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %s timed out: %v", payment.ErrProviderUnavailable, p.Name(), err)
		}
		if !errors.Is(err, payment.ErrProviderUnavailable) {
			return payment.SessionHandle{}, err
		}
		lastErr = err
		s.logger.Warn("provider_session_retry",
			"provider", p.Name(),
			"order_id", order.ID,
			"attempt", attempt,
			"err", err,
		)
		if attempt == s.cfg.RetryAttempts {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return payment.SessionHandle{}, fmt.Errorf("%w: %v", payment.ErrProviderUnavailable, err)
		}
		backoff *= 2
	}
	return payment.SessionHandle{}, lastErr
}

func (s *Service) release(ctx context.Context, order *model.Order, reason string) {
	if err := s.products.Release(context.WithoutCancel(ctx), order.Items); err != nil {
		s.logger.Error("reservation_release_failed", "order_id", order.ID, "reason", reason, "err", err)
		return
	}
	s.logger.Info("reservation_released", "order_id", order.ID, "reason", reason)
}

// applyOutcome treats a direct charge's synchronous result as the order's
// first payment event. The order is already stored, so a failure here is
// logged and the webhook that follows will settle it.
func (s *Service) applyOutcome(ctx context.Context, order *model.Order, h payment.SessionHandle) *model.Order {
	ev := model.PaymentEvent{
		Provider:          order.ProviderName,
		PaymentID:         h.ChargeID,
		SessionID:         h.ProviderSessionID,
		ExternalReference: order.ID,
		Kind:              h.Outcome,
		RawStatus:         h.RawStatus,
		OccurredAt:        time.Now(),
	}
	res, err := s.events.ApplyEvent(context.WithoutCancel(ctx), order.ID, ev)
	if err != nil {
		s.logger.Error("checkout_outcome_failed", "order_id", order.ID, "outcome", h.Outcome, "err", err)
		return order
	}
	if res.Order != nil {
		return res.Order
	}
	return order
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
