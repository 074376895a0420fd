package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var (
	ErrPostalCodeNotFound  = errors.New("postal code not found")
	ErrGeocoderUnavailable = errors.New("geocoder unavailable")
)

type Geocoder interface {
	Lookup(ctx context.Context, postalCode string) (Point, error)
}

// NormalizePostalCode keeps only the digits, so "01310-100" and "01310100"
// share a cache entry.
func NormalizePostalCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HTTPGeocoder calls GET {baseURL}/{postal_code} and expects {"lat","lng"}.
type HTTPGeocoder struct {
	baseURL string
	http    *http.Client
}

func NewHTTPGeocoder(baseURL string, timeout time.Duration) *HTTPGeocoder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGeocoder) Lookup(ctx context.Context, postalCode string) (Point, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+url.PathEscape(postalCode), nil)
	if err != nil {
		return Point{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrGeocoderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Point{}, fmt.Errorf("%w: %s", ErrPostalCodeNotFound, postalCode)
	case resp.StatusCode != http.StatusOK:
		return Point{}, fmt.Errorf("%w: status %d", ErrGeocoderUnavailable, resp.StatusCode)
	}
	var p Point
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Point{}, fmt.Errorf("%w: decode: %v", ErrGeocoderUnavailable, err)
	}
	return p, nil
}

// CachedGeocoder fronts another Geocoder with a Redis cache. Concurrent
// misses for the same postal code share one upstream call.
type CachedGeocoder struct {
	next    Geocoder
	rdb     *rd.Client
	baseTTL time.Duration
	logger  *slog.Logger
	sfg     singleflight.Group
}

func NewCachedGeocoder(next Geocoder, rdb *rd.Client, baseTTL time.Duration, logger *slog.Logger) *CachedGeocoder {
	if baseTTL <= 0 {
		baseTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{next: next, rdb: rdb, baseTTL: baseTTL, logger: logger}
}

func (c *CachedGeocoder) Lookup(ctx context.Context, postalCode string) (Point, error) {
	postalCode = NormalizePostalCode(postalCode)
	if postalCode == "" {
		return Point{}, ErrPostalCodeNotFound
	}
	v, err, _ := c.sfg.Do(postalCode, func() (interface{}, error) {
		key := redis.GeocodeKey(postalCode)
		p, err := c.get(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, rd.Nil) {
			c.logger.Warn("geocode_cache_get_failed", "postal_code", postalCode, "err", err)
		}

		p, err = c.next.Lookup(ctx, postalCode)
		if err != nil {
			return Point{}, err
		}
		if err := c.set(ctx, key, p); err != nil {
			c.logger.Warn("geocode_cache_set_failed", "postal_code", postalCode, "err", err)
		}
		return p, nil
	})
	if err != nil {
		return Point{}, err
	}
	return v.(Point), nil
}

func (c *CachedGeocoder) get(ctx context.Context, key string) (Point, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return Point{}, err
	}
	var p Point
	if err := json.Unmarshal(b, &p); err != nil {
		return Point{}, fmt.Errorf("decode cached point: %w", err)
	}
	return p, nil
}

func (c *CachedGeocoder) set(ctx context.Context, key string, p Point) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// jitter keeps entries written together from expiring together
	jitter := time.Duration(rand.Int63n(int64(c.baseTTL/10) + 1))
	return c.rdb.Set(ctx, key, b, c.baseTTL+jitter).Err()
}
