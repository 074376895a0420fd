package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
)

const PagarmeName = "pagarme"

type PagarmeConfig struct {
	SecretKey       string
	BaseURL         string
	WebhookUser     string
	WebhookPassword string
	PixExpiresIn    time.Duration
	Timeout         time.Duration
}

// Pagarme implements the direct-charge flow. Creating the order also creates
// the charge, and the response may already say paid or failed.
type Pagarme struct {
	cfg    PagarmeConfig
	client *apiClient
	now    func() time.Time
}

func NewPagarme(cfg PagarmeConfig) *Pagarme {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pagar.me/core/v5"
	}
	if cfg.PixExpiresIn <= 0 {
		cfg.PixExpiresIn = time.Hour
	}
	key := cfg.SecretKey
	return &Pagarme{
		cfg: cfg,
		client: newAPIClient(PagarmeName, cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
			r.SetBasicAuth(key, "")
		}),
		now: time.Now,
	}
}

func (p *Pagarme) Name() string { return PagarmeName }

func (p *Pagarme) Methods() []string { return []string{"pix", "credit_card"} }

type pgItem struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Code        string `json:"code"`
}

type pgCustomer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
	Type     string `json:"type"`
}

type pgAddress struct {
	Line1   string `json:"line_1"`
	ZipCode string `json:"zip_code"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type pgShipping struct {
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	RecipientName string    `json:"recipient_name"`
	Address       pgAddress `json:"address"`
}

type pgPix struct {
	ExpiresIn int64 `json:"expires_in"`
}

type pgCard struct {
	Installments int    `json:"installments"`
	CardToken    string `json:"card_token"`
}

type pgPayment struct {
	PaymentMethod string  `json:"payment_method"`
	Pix           *pgPix  `json:"pix,omitempty"`
	CreditCard    *pgCard `json:"credit_card,omitempty"`
}

type pgOrderRequest struct {
	Code     string      `json:"code"`
	Customer pgCustomer  `json:"customer"`
	Items    []pgItem    `json:"items"`
	Shipping *pgShipping `json:"shipping,omitempty"`
	Payments []pgPayment `json:"payments"`
	Closed   bool        `json:"closed"`
}

type pgCharge struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	LastTransaction struct {
		QRCode string `json:"qr_code"`
	} `json:"last_transaction"`
}

type pgOrderResponse struct {
	ID      string     `json:"id"`
	Code    string     `json:"code"`
	Status  string     `json:"status"`
	Charges []pgCharge `json:"charges"`
}

func (p *Pagarme) CreateSession(ctx context.Context, order *model.Order, items []model.OrderItem, customer Customer) (SessionHandle, error) {
	req := pgOrderRequest{
		Code: order.ID,
		Customer: pgCustomer{
			Name:     customer.Name,
			Email:    customer.Email,
			Document: customer.Document,
			Type:     "individual",
		},
		Closed: true,
	}
	for _, it := range items {
		req.Items = append(req.Items, pgItem{
			Amount:      it.UnitPrice,
			Description: it.ProductName,
			Quantity:    it.Quantity,
			Code:        strconv.FormatUint(uint64(it.ProductID), 10),
		})
	}
	if order.ShippingAmount > 0 {
		req.Shipping = &pgShipping{
			Amount:        order.ShippingAmount,
			Description:   "Entrega",
			RecipientName: customer.Name,
			Address: pgAddress{
				Line1:   order.AddressLine,
				ZipCode: order.PostalCode,
				City:    order.City,
				State:   order.State,
				Country: "BR",
			},
		}
	}

	pay := pgPayment{PaymentMethod: order.PaymentMethod}
	switch order.PaymentMethod {
	case "pix":
		pay.Pix = &pgPix{ExpiresIn: int64(p.cfg.PixExpiresIn / time.Second)}
	case "credit_card":
		if customer.CardToken == "" {
			return SessionHandle{}, &RejectedError{Provider: PagarmeName, Status: http.StatusUnprocessableEntity, Message: "card token is required"}
		}
		pay.CreditCard = &pgCard{Installments: 1, CardToken: customer.CardToken}
	default:
		return SessionHandle{}, &RejectedError{Provider: PagarmeName, Status: http.StatusUnprocessableEntity, Message: "unsupported payment method " + order.PaymentMethod}
	}
	req.Payments = []pgPayment{pay}

	var resp pgOrderResponse
	err := p.client.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/orders",
		body:   req,
		header: http.Header{"Idempotency-Key": []string{order.ID}},
	}, &resp)
	if err != nil {
		return SessionHandle{}, err
	}
	if resp.ID == "" {
		return SessionHandle{}, fmt.Errorf("%w: pagarme: order response missing id", ErrProviderUnavailable)
	}

	h := SessionHandle{ProviderSessionID: resp.ID, RawStatus: resp.Status}
	if len(resp.Charges) > 0 {
		h.ChargeID = resp.Charges[0].ID
		h.ClientReference = resp.Charges[0].LastTransaction.QRCode
	}
	switch resp.Status {
	case "paid":
		h.Outcome = model.EventApproved
	case "failed":
		h.Outcome = model.EventRejected
	case "canceled":
		h.Outcome = model.EventCanceled
	}
	return h, nil
}

type pgWebhook struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		ID      string     `json:"id"`
		Code    string     `json:"code"`
		Status  string     `json:"status"`
		Charges []pgCharge `json:"charges"`
		Order   *struct {
			ID   string `json:"id"`
			Code string `json:"code"`
		} `json:"order"`
	} `json:"data"`
}

var pagarmeKinds = map[string]model.EventKind{
	"order.created":         model.EventCreated,
	"order.paid":            model.EventApproved,
	"order.payment_failed":  model.EventRejected,
	"order.canceled":        model.EventCanceled,
	"charge.pending":        model.EventPending,
	"charge.paid":           model.EventApproved,
	"charge.payment_failed": model.EventRejected,
	"charge.canceled":       model.EventCanceled,
	"charge.refunded":       model.EventRefunded,
	"charge.chargedback":    model.EventRefunded,
}

// NormalizeWebhook checks HTTP Basic credentials before reading the body.
// order.* payloads carry the order with its charges; charge.* payloads carry
// the charge with a pointer back to the order.
func (p *Pagarme) NormalizeWebhook(_ context.Context, header http.Header, body []byte) (model.PaymentEvent, error) {
	if !p.basicAuthMatches(header) {
		return model.PaymentEvent{}, ErrUnauthenticated
	}

	var w pgWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.Type == "" || w.Data.ID == "" {
		return model.PaymentEvent{}, fmt.Errorf("%w: missing type or data.id", ErrMalformedPayload)
	}
	kind, ok := pagarmeKinds[w.Type]
	if !ok {
		return model.PaymentEvent{}, fmt.Errorf("%w: type %q", ErrUnrecognizedEvent, w.Type)
	}

	ev := model.PaymentEvent{
		Provider:   PagarmeName,
		Kind:       kind,
		RawStatus:  w.Data.Status,
		OccurredAt: p.now(),
	}
	if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		ev.OccurredAt = t
	}
	if strings.HasPrefix(w.Type, "charge.") {
		ev.PaymentID = w.Data.ID
		if w.Data.Order != nil {
			ev.SessionID = w.Data.Order.ID
			ev.ExternalReference = w.Data.Order.Code
		}
	} else {
		ev.SessionID = w.Data.ID
		ev.ExternalReference = w.Data.Code
		if len(w.Data.Charges) > 0 {
			ev.PaymentID = w.Data.Charges[0].ID
		}
	}
	return ev, nil
}

func (p *Pagarme) basicAuthMatches(header http.Header) bool {
	if p.cfg.WebhookUser == "" || p.cfg.WebhookPassword == "" {
		return false
	}
	r := http.Request{Header: header}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(p.cfg.WebhookUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(p.cfg.WebhookPassword)) == 1
	return userOK && passOK
}
