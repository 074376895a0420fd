package model

import "time"

// EventKind is the provider-independent vocabulary for payment updates.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventApproved EventKind = "approved"
	EventRejected EventKind = "rejected"
	EventCanceled EventKind = "canceled"
	EventRefunded EventKind = "refunded"
	EventPending  EventKind = "pending"
)

// PaymentEvent is a normalized provider notification. It is not persisted,
// but every field needed to attribute it is logged when it is applied.
type PaymentEvent struct {
	Provider string
	// PaymentID is the provider's payment or charge id.
	PaymentID string
	// SessionID is the provider's preference/order id, when the payload has it.
	SessionID string
	// ExternalReference is our order id as echoed back by the provider.
	ExternalReference string
	Kind              EventKind
	RawStatus         string
	OccurredAt        time.Time
}
