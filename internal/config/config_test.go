package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.CheckoutRateLimit)
	assert.Equal(t, time.Minute, cfg.CheckoutRateWindow)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 3, cfg.ProviderRetryAttempts)
	assert.Len(t, cfg.ShippingTiers, 4)
	assert.Equal(t, shipping.Tier{MaxDistanceKm: 10, Rate: 500}, cfg.ShippingTiers[0])
}

func TestLoad_File(t *testing.T) {
	path := writeYAML(t, `
http_addr: ":9090"
kafka_brokers:
  - k1:9092
  - k2:9092
checkout_rate_limit: 5
checkout_rate_window: 30s
shipping_tiers:
  - "5:300"
  - "20:900"
admin_token: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.CheckoutRateLimit)
	assert.Equal(t, 30*time.Second, cfg.CheckoutRateWindow)
	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, []shipping.Tier{{MaxDistanceKm: 5, Rate: 300}, {MaxDistanceKm: 20, Rate: 900}}, cfg.ShippingTiers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "http_addr: \":9090\"\n")
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("PROVIDER_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero rate limit", map[string]string{"CHECKOUT_RATE_LIMIT": "0"}, "checkout_rate_limit"},
		{"negative window", map[string]string{"CHECKOUT_RATE_WINDOW": "-1s"}, "checkout_rate_window"},
		{"no brokers", map[string]string{"KAFKA_BROKERS": " , "}, "kafka_brokers"},
		{"bad tiers", map[string]string{"SHIPPING_TIERS": "ten:500"}, "shipping_tiers"},
		{"zero attempts", map[string]string{"PROVIDER_RETRY_ATTEMPTS": "0"}, "provider_retry_attempts"},
		{"bad origin", map[string]string{"SHIPPING_ORIGIN_LAT": "123"}, "shipping origin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
