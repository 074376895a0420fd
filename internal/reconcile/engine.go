package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"
)

// Orders is the slice of the order store the engine writes through.
type Orders interface {
	Get(ctx context.Context, id string) (*model.Order, error)
	FindByProviderRef(ctx context.Context, provider, ref string) (*model.Order, error)
	UpdateStatus(ctx context.Context, id string, version int64, status model.OrderStatus, chargeID string) error
}

// Dispatcher performs the side effects of a committed transition.
type Dispatcher interface {
	RestoreStock(ctx context.Context, order *model.Order) error
	Notify(ctx context.Context, userID string, kind model.NotificationKind, orderID string) error
	ForwardSale(ctx context.Context, order *model.Order) error
}

// SideEffectError records a dispatcher failure. It is logged and reported
// in Result, never returned as the transition's error.
type SideEffectError struct {
	Effect  string
	OrderID string
	Err     error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side effect %s for order %s: %v", e.Effect, e.OrderID, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }

type Result struct {
	Order   *model.Order
	From    model.OrderStatus
	To      model.OrderStatus
	Changed bool
	// Failed lists side effects that did not complete.
	Failed []*SideEffectError
}

type Engine struct {
	orders   Orders
	dispatch Dispatcher
	logger   *slog.Logger
}

func NewEngine(orders Orders, dispatch Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{orders: orders, dispatch: dispatch, logger: logger}
}

// Resolve finds the order an event belongs to: first by the echoed external
// reference, then by the provider's payment or session id.
func (e *Engine) Resolve(ctx context.Context, ev model.PaymentEvent) (*model.Order, error) {
	if ev.ExternalReference != "" {
		o, err := e.orders.Get(ctx, ev.ExternalReference)
		switch {
		case err == nil && (o.ProviderName == "" || o.ProviderName == ev.Provider):
			return o, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	for _, ref := range []string{ev.PaymentID, ev.SessionID} {
		if ref == "" {
			continue
		}
		o, err := e.orders.FindByProviderRef(ctx, ev.Provider, ref)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("order for %s payment %q ref %q: %w", ev.Provider, ev.PaymentID, ev.ExternalReference, store.ErrNotFound)
}

// HandleEvent resolves the event's order and applies the event to it.
func (e *Engine) HandleEvent(ctx context.Context, ev model.PaymentEvent) (Result, error) {
	o, err := e.Resolve(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	return e.ApplyEvent(ctx, o.ID, ev)
}

// ApplyEvent runs a payment event through the transition table.
func (e *Engine) ApplyEvent(ctx context.Context, orderID string, ev model.PaymentEvent) (Result, error) {
	res, err := e.transition(ctx, orderID, ev.PaymentID, func(o *model.Order) (model.OrderStatus, bool, error) {
		next, changed := Next(o.Status, ev.Kind)
		return next, changed, nil
	})
	attrs := []any{
		"order_id", orderID,
		"provider", ev.Provider,
		"payment_id", ev.PaymentID,
		"event_kind", ev.Kind,
		"raw_status", ev.RawStatus,
	}
	if err != nil {
		e.logger.Error("payment_event_failed", append(attrs, "err", err)...)
		return res, err
	}
	if !res.Changed {
		e.logger.Info("payment_event_ignored", append(attrs, "status", res.From)...)
	}
	return res, nil
}

// ApplyAction runs an admin action (ship, deliver, cancel).
func (e *Engine) ApplyAction(ctx context.Context, orderID string, action Action) (Result, error) {
	return e.transition(ctx, orderID, "", func(o *model.Order) (model.OrderStatus, bool, error) {
		next, err := NextForAction(o.Status, action)
		if err != nil {
			return o.Status, false, err
		}
		return next, true, nil
	})
}

type decideFunc func(o *model.Order) (next model.OrderStatus, changed bool, err error)

// transition reads the order, decides, and writes with a version check. A
// lost race is retried once against a fresh read. Side effects run only
// after the write succeeded.
func (e *Engine) transition(ctx context.Context, orderID, chargeID string, decide decideFunc) (Result, error) {
	const attempts = 2
	for attempt := 1; ; attempt++ {
		o, err := e.orders.Get(ctx, orderID)
		if err != nil {
			return Result{}, err
		}
		next, changed, err := decide(o)
		if err != nil {
			return Result{Order: o, From: o.Status, To: o.Status}, err
		}
		res := Result{Order: o, From: o.Status, To: next, Changed: changed}
		if !changed {
			return res, nil
		}

		err = e.orders.UpdateStatus(ctx, o.ID, o.Version, next, chargeID)
		if errors.Is(err, store.ErrConcurrencyConflict) && attempt < attempts {
			e.logger.Warn("order_update_conflict", "order_id", orderID, "attempt", attempt)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("update order %s to %s: %w", orderID, next, err)
		}

		o.Status = next
		o.Version++
		if chargeID != "" && o.ProviderChargeID == "" {
			o.ProviderChargeID = chargeID
		}
		e.logger.Info("order_transition", "order_id", o.ID, "from", res.From, "to", next)
		res.Failed = e.runEffects(ctx, o, next)
		return res, nil
	}
}

type sideEffect struct {
	name string
	run  func(ctx context.Context) error
}

// plan lists what entering status must trigger.
func (e *Engine) plan(o *model.Order, status model.OrderStatus) []sideEffect {
	notify := func(kind model.NotificationKind) sideEffect {
		return sideEffect{
			name: "notify_" + string(kind),
			run: func(ctx context.Context) error {
				return e.dispatch.Notify(ctx, o.CustomerID, kind, o.ID)
			},
		}
	}
	switch status {
	case model.OrderConfirmed:
		return []sideEffect{
			notify(model.NotifyPaymentApproved),
			notify(model.NotifyOrderConfirmed),
			{name: "forward_sale", run: func(ctx context.Context) error { return e.dispatch.ForwardSale(ctx, o) }},
		}
	case model.OrderCanceled:
		return []sideEffect{
			{name: "restore_stock", run: func(ctx context.Context) error { return e.dispatch.RestoreStock(ctx, o) }},
			notify(model.NotifyOrderCanceled),
		}
	case model.OrderShipped:
		return []sideEffect{notify(model.NotifyOrderShipped)}
	case model.OrderDelivered:
		return []sideEffect{notify(model.NotifyOrderDelivered)}
	}
	return nil
}

// runEffects runs every planned effect even when an earlier one fails or
// panics. The request context's cancellation does not cut them short.
func (e *Engine) runEffects(ctx context.Context, o *model.Order, status model.OrderStatus) []*SideEffectError {
	if e.dispatch == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	var failed []*SideEffectError
	for _, fx := range e.plan(o, status) {
		if err := safeRun(ctx, fx.run); err != nil {
			se := &SideEffectError{Effect: fx.name, OrderID: o.ID, Err: err}
			e.logger.Error("side_effect_failed", "effect", fx.name, "order_id", o.ID, "status", status, "err", err)
			failed = append(failed, se)
		}
	}
	return failed
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
