package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts, 5xx and an
	// open circuit. The caller may retry.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected is a permanent refusal. Never retried.
	ErrProviderRejected = errors.New("payment rejected by provider")

	ErrUnauthenticated   = errors.New("webhook authentication failed")
	ErrMalformedPayload  = errors.New("malformed webhook payload")
	ErrUnrecognizedEvent = errors.New("unrecognized webhook event")
	ErrUnknownProvider   = errors.New("unknown payment provider")
)

// RejectedError carries the provider's refusal details.
type RejectedError struct {
	Provider string
	Status   int
	Message  string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected request: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s rejected request: status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrProviderRejected }

// Customer is who pays for the order.
type Customer struct {
	ID       string
	Name     string
	Email    string
	Document string
	Phone    string
	// CardToken is a tokenized card for direct card charges.
	CardToken string
}

// SessionHandle is what a provider returns when a payment session opens.
type SessionHandle struct {
	ProviderSessionID string
	ChargeID          string
	// ClientReference is a redirect URL, a PIX QR payload, or empty.
	ClientReference string
	RawStatus       string
	// Outcome is set when the provider already decided the payment
	// synchronously. It is applied as the order's first event.
	Outcome model.EventKind
}

// Provider is one external payment gateway.
type Provider interface {
	Name() string
	// Methods lists the payment methods the provider can open sessions for.
	Methods() []string
	CreateSession(ctx context.Context, order *model.Order, items []model.OrderItem, customer Customer) (SessionHandle, error)
	// NormalizeWebhook authenticates before it parses. It returns
	// ErrUnauthenticated, ErrMalformedPayload or ErrUnrecognizedEvent for
	// payloads it cannot turn into an event.
	NormalizeWebhook(ctx context.Context, header http.Header, body []byte) (model.PaymentEvent, error)
}

// Supports reports whether p accepts method.
func Supports(p Provider, method string) bool {
	for _, m := range p.Methods() {
		if m == method {
			return true
		}
	}
	return false
}
