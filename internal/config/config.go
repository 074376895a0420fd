package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"

	"github.com/spf13/viper"
)

// AppConfig is the runtime configuration. Every key can be set in the YAML
// file or overridden by its upper-case environment variable.
type AppConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`

	KafkaBrokers        []string `mapstructure:"-"`
	KafkaSaleTopic      string   `mapstructure:"kafka_sale_topic"`
	KafkaInventoryTopic string   `mapstructure:"kafka_inventory_topic"`
	KafkaGroupID        string   `mapstructure:"kafka_group_id"`

	// Redis stream outbox relayed to KafkaSaleTopic. An empty consumer name
	// is replaced by a random one at startup.
	SaleStream         string `mapstructure:"sale_stream"`
	SaleStreamGroup    string `mapstructure:"sale_stream_group"`
	SaleStreamConsumer string `mapstructure:"sale_stream_consumer"`

	CheckoutRateLimit  int           `mapstructure:"checkout_rate_limit"`
	CheckoutRateWindow time.Duration `mapstructure:"checkout_rate_window"`
	CheckoutStateTTL   time.Duration `mapstructure:"checkout_state_ttl"`

	// AdminToken guards /api/admin. Empty disables admin access.
	AdminToken string `mapstructure:"admin_token"`

	ProviderTimeout       time.Duration `mapstructure:"provider_timeout"`
	ProviderRetryAttempts int           `mapstructure:"provider_retry_attempts"`
	ProviderRetryBackoff  time.Duration `mapstructure:"provider_retry_backoff"`
	PublicBaseURL         string        `mapstructure:"public_base_url"`

	MercadoPagoAccessToken  string `mapstructure:"mercadopago_access_token"`
	MercadoPagoWebhookToken string `mapstructure:"mercadopago_webhook_token"`
	MercadoPagoBaseURL      string `mapstructure:"mercadopago_base_url"`

	PagarmeSecretKey       string `mapstructure:"pagarme_secret_key"`
	PagarmeBaseURL         string `mapstructure:"pagarme_base_url"`
	PagarmeWebhookUser     string `mapstructure:"pagarme_webhook_user"`
	PagarmeWebhookPassword string `mapstructure:"pagarme_webhook_password"`

	ShippingOriginLat float64         `mapstructure:"shipping_origin_lat"`
	ShippingOriginLng float64         `mapstructure:"shipping_origin_lng"`
	ShippingTiers     []shipping.Tier `mapstructure:"-"`
	GeocoderBaseURL   string          `mapstructure:"geocoder_base_url"`
	GeocodeCacheTTL   time.Duration   `mapstructure:"geocode_cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_path", "mercadito.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_sale_topic", "mercadito-sales")
	v.SetDefault("kafka_inventory_topic", "mercadito-inventory")
	v.SetDefault("kafka_group_id", "mercadito-inventory-sync")

	v.SetDefault("sale_stream", "mercadito:sales")
	v.SetDefault("sale_stream_group", "mercadito-sale-relay")
	v.SetDefault("sale_stream_consumer", "")

	v.SetDefault("checkout_rate_limit", 10)
	v.SetDefault("checkout_rate_window", time.Minute)
	v.SetDefault("checkout_state_ttl", 24*time.Hour)
	v.SetDefault("admin_token", "")

	v.SetDefault("provider_timeout", 10*time.Second)
	v.SetDefault("provider_retry_attempts", 3)
	v.SetDefault("provider_retry_backoff", 200*time.Millisecond)
	v.SetDefault("public_base_url", "http://localhost:8080")

	v.SetDefault("mercadopago_access_token", "")
	v.SetDefault("mercadopago_webhook_token", "")
	v.SetDefault("mercadopago_base_url", "https://api.mercadopago.com")

	v.SetDefault("pagarme_secret_key", "")
	v.SetDefault("pagarme_base_url", "https://api.pagar.me/core/v5")
	v.SetDefault("pagarme_webhook_user", "")
	v.SetDefault("pagarme_webhook_password", "")

	// São Paulo warehouse
	v.SetDefault("shipping_origin_lat", -23.5505)
	v.SetDefault("shipping_origin_lng", -46.6333)
	v.SetDefault("shipping_tiers", "10:500,50:1000,100:1800,300:3500")
	v.SetDefault("geocoder_base_url", "http://localhost:8081/postal")
	v.SetDefault("geocode_cache_ttl", 24*time.Hour)
}

// Load reads defaults, then the optional YAML file at path, then the
// environment, and validates the result.
func Load(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = stringList(v, "kafka_brokers")

	tiers, err := shipping.ParseTiers(tierList(v))
	if err != nil {
		return AppConfig{}, fmt.Errorf("shipping_tiers: %w", err)
	}
	cfg.ShippingTiers = tiers

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("http_addr must not be empty")
	case c.DBPath == "":
		return fmt.Errorf("db_path must not be empty")
	case len(c.KafkaBrokers) == 0:
		return fmt.Errorf("kafka_brokers must not be empty")
	case c.KafkaSaleTopic == "" || c.KafkaInventoryTopic == "":
		return fmt.Errorf("kafka topics must not be empty")
	case c.KafkaGroupID == "":
		return fmt.Errorf("kafka_group_id must not be empty")
	case c.SaleStream == "" || c.SaleStreamGroup == "":
		return fmt.Errorf("sale_stream and sale_stream_group must not be empty")
	case c.CheckoutRateLimit <= 0:
		return fmt.Errorf("checkout_rate_limit must be > 0")
	case c.CheckoutRateWindow <= 0:
		return fmt.Errorf("checkout_rate_window must be > 0")
	case c.CheckoutStateTTL <= 0:
		return fmt.Errorf("checkout_state_ttl must be > 0")
	case c.ProviderTimeout <= 0:
		return fmt.Errorf("provider_timeout must be > 0")
	case c.ProviderRetryAttempts <= 0:
		return fmt.Errorf("provider_retry_attempts must be > 0")
	case c.ProviderRetryBackoff < 0:
		return fmt.Errorf("provider_retry_backoff must not be negative")
	case c.GeocodeCacheTTL <= 0:
		return fmt.Errorf("geocode_cache_ttl must be > 0")
	case c.ShippingOriginLat < -90 || c.ShippingOriginLat > 90 ||
		c.ShippingOriginLng < -180 || c.ShippingOriginLng > 180:
		return fmt.Errorf("shipping origin must be a valid coordinate")
	}
	return nil
}

// stringList accepts either a YAML list or a comma-separated string, which
// is what an environment variable gives us.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).([]interface{}); ok {
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			if s := strings.TrimSpace(fmt.Sprint(r)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return splitCSV(v.GetString(key))
}

// tierList renders shipping_tiers as "km:rate,...". YAML may give a list of
// "km:rate" strings instead of one string.
func tierList(v *viper.Viper) string {
	return strings.Join(stringList(v, "shipping_tiers"), ",")
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
