package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"github.com/shopspring/decimal"
)

const MercadoPagoName = "mercadopago"

type MercadoPagoConfig struct {
	AccessToken string
	// WebhookToken is the shared secret the provider presents as a bearer token.
	WebhookToken    string
	BaseURL         string
	NotificationURL string
	Currency        string
	Timeout         time.Duration
}

// MercadoPago implements the redirect flow: a checkout preference is created
// up front and the buyer is sent to its init_point. Outcomes only arrive by
// webhook.
type MercadoPago struct {
	cfg    MercadoPagoConfig
	client *apiClient
	now    func() time.Time
}

func NewMercadoPago(cfg MercadoPagoConfig) *MercadoPago {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mercadopago.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	token := cfg.AccessToken
	return &MercadoPago{
		cfg: cfg,
		client: newAPIClient(MercadoPagoName, cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}),
		now: time.Now,
	}
}

func (m *MercadoPago) Name() string { return MercadoPagoName }

func (m *MercadoPago) Methods() []string { return []string{"redirect"} }

type mpItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id"`
}

type mpPreferenceRequest struct {
	Items             []mpItem `json:"items"`
	Payer             mpPayer  `json:"payer"`
	ExternalReference string   `json:"external_reference"`
	NotificationURL   string   `json:"notification_url,omitempty"`
	Shipments         struct {
		Cost json.Number `json:"cost"`
		Mode string      `json:"mode"`
	} `json:"shipments"`
}

type mpPayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type mpPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// toDecimal renders minor units the way the provider wants amounts: a plain
// JSON number with two decimals.
func toDecimal(minor int64) json.Number {
	return json.Number(decimal.New(minor, -2).StringFixed(2))
}

func (m *MercadoPago) CreateSession(ctx context.Context, order *model.Order, items []model.OrderItem, customer Customer) (SessionHandle, error) {
	req := mpPreferenceRequest{
		Payer:             mpPayer{Name: customer.Name, Email: customer.Email},
		ExternalReference: order.ID,
		NotificationURL:   m.cfg.NotificationURL,
	}
	for _, it := range items {
		req.Items = append(req.Items, mpItem{
			ID:         strconv.FormatUint(uint64(it.ProductID), 10),
			Title:      it.ProductName,
			Quantity:   it.Quantity,
			UnitPrice:  toDecimal(it.UnitPrice),
			CurrencyID: m.cfg.Currency,
		})
	}
	req.Shipments.Cost = toDecimal(order.ShippingAmount)
	req.Shipments.Mode = "not_specified"

	var resp mpPreferenceResponse
	err := m.client.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/checkout/preferences",
		body:   req,
		header: http.Header{"X-Idempotency-Key": []string{order.ID}},
	}, &resp)
	if err != nil {
		return SessionHandle{}, err
	}
	if resp.ID == "" || resp.InitPoint == "" {
		return SessionHandle{}, fmt.Errorf("%w: mercadopago: preference response missing id or init_point", ErrProviderUnavailable)
	}
	return SessionHandle{
		ProviderSessionID: resp.ID,
		ClientReference:   resp.InitPoint,
		RawStatus:         "created",
	}, nil
}

type mpNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

type mpPayment struct {
	ID                flexID `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
	DateLastUpdated   string `json:"date_last_updated"`
}

// NormalizeWebhook checks the bearer token, then fetches the payment the
// notification points at. Notifications only carry the payment id.
func (m *MercadoPago) NormalizeWebhook(ctx context.Context, header http.Header, body []byte) (model.PaymentEvent, error) {
	if !bearerMatches(header.Get("Authorization"), m.cfg.WebhookToken) {
		return model.PaymentEvent{}, ErrUnauthenticated
	}

	var n mpNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.Type != "payment" {
		return model.PaymentEvent{}, fmt.Errorf("%w: type %q", ErrUnrecognizedEvent, n.Type)
	}
	if n.Data.ID == "" {
		return model.PaymentEvent{}, fmt.Errorf("%w: missing data.id", ErrMalformedPayload)
	}

	var p mpPayment
	err := m.client.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/v1/payments/" + url.PathEscape(string(n.Data.ID)),
	}, &p)
	if err != nil {
		return model.PaymentEvent{}, fmt.Errorf("fetch payment %s: %w", n.Data.ID, err)
	}

	kind, ok := mercadoPagoKind(p.Status)
	if !ok {
		return model.PaymentEvent{}, fmt.Errorf("%w: payment status %q", ErrUnrecognizedEvent, p.Status)
	}
	occurred := m.now()
	if t, err := time.Parse(time.RFC3339, p.DateLastUpdated); err == nil {
		occurred = t
	}
	paymentID := string(p.ID)
	if paymentID == "" {
		paymentID = string(n.Data.ID)
	}
	return model.PaymentEvent{
		Provider:          MercadoPagoName,
		PaymentID:         paymentID,
		ExternalReference: p.ExternalReference,
		Kind:              kind,
		RawStatus:         p.Status,
		OccurredAt:        occurred,
	}, nil
}

func mercadoPagoKind(status string) (model.EventKind, bool) {
	switch status {
	case "approved":
		return model.EventApproved, true
	case "pending", "in_process", "authorized", "in_mediation":
		return model.EventPending, true
	case "rejected":
		return model.EventRejected, true
	case "cancelled":
		return model.EventCanceled, true
	case "refunded", "charged_back":
		return model.EventRefunded, true
	}
	return "", false
}

func bearerMatches(authorization, secret string) bool {
	if secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
