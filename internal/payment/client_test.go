package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newAPIClient("test", srv.URL, time.Second, nil)
	for i := 0; i < 5; i++ {
		err := c.do(context.Background(), apiRequest{method: http.MethodGet, path: "/x"}, nil)
		require.ErrorIs(t, err, ErrProviderUnavailable)
	}
	err := c.do(context.Background(), apiRequest{method: http.MethodGet, path: "/x"}, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(5), calls.Load(), "open breaker must short-circuit")
}

func TestAPIClient_RejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newAPIClient("test", srv.URL, time.Second, nil)
	for i := 0; i < 8; i++ {
		err := c.do(context.Background(), apiRequest{method: http.MethodPost, path: "/x", body: map[string]int{"a": 1}}, nil)
		require.ErrorIs(t, err, ErrProviderRejected)
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestAPIClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newAPIClient("test", srv.URL, 20*time.Millisecond, nil)
	err := c.do(context.Background(), apiRequest{method: http.MethodGet, path: "/slow"}, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewMercadoPago(MercadoPagoConfig{}), NewPagarme(PagarmeConfig{}))
	assert.Equal(t, []string{"mercadopago", "pagarme"}, r.Names())

	p, err := r.Get("pagarme")
	require.NoError(t, err)
	assert.True(t, Supports(p, "pix"))
	assert.False(t, Supports(p, "redirect"))

	_, err = r.Get("stripe")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
