package reconcile

import (
	"errors"
	"fmt"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
)

var (
	ErrIllegalTransition = errors.New("illegal order transition")
	ErrUnknownAction     = errors.New("unknown order action")
)

// Next returns the status an order in current moves to when a payment event
// of kind arrives, and whether that is a change. Unlisted pairs are no-ops,
// which makes redelivery of the same event harmless.
//
// Once CONFIRMED, a late rejected is ignored; only an explicit canceled or
// refunded undoes a captured payment.
func Next(current model.OrderStatus, kind model.EventKind) (model.OrderStatus, bool) {
	switch current {
	case model.OrderPending:
		switch kind {
		case model.EventApproved:
			return model.OrderConfirmed, true
		case model.EventRejected, model.EventCanceled, model.EventRefunded:
			return model.OrderCanceled, true
		}
	case model.OrderConfirmed:
		if kind == model.EventCanceled || kind == model.EventRefunded {
			return model.OrderCanceled, true
		}
	}
	return current, false
}

// Action is a manual admin transition.
type Action string

const (
	ActionShip    Action = "ship"
	ActionDeliver Action = "deliver"
	ActionCancel  Action = "cancel"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionShip, ActionDeliver, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// NextForAction validates an admin action against the current status.
func NextForAction(current model.OrderStatus, action Action) (model.OrderStatus, error) {
	switch {
	case action == ActionShip && current == model.OrderConfirmed:
		return model.OrderShipped, nil
	case action == ActionDeliver && current == model.OrderShipped:
		return model.OrderDelivered, nil
	case action == ActionCancel && (current == model.OrderPending || current == model.OrderConfirmed):
		return model.OrderCanceled, nil
	}
	switch action {
	case ActionShip, ActionDeliver, ActionCancel:
		return current, fmt.Errorf("%w: cannot %s an order in %s", ErrIllegalTransition, action, current)
	}
	return current, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
