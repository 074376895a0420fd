package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const maxResponseBytes = 1 << 20

// apiClient is the HTTP transport used by the provider adapters. Each
// adapter owns one client and one breaker.
type apiClient struct {
	provider  string
	baseURL   string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
	authorize func(*http.Request)
}

type apiRequest struct {
	method string
	path   string
	body   any
	header http.Header
}

func newAPIClient(provider, baseURL string, timeout time.Duration, authorize func(*http.Request)) *apiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &apiClient{
		provider:  provider,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		authorize: authorize,
		cb: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        provider,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// A 4xx means the provider is up and answering.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrProviderRejected)
			},
		}),
	}
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *apiClient) do(ctx context.Context, r apiRequest, out any) error {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.provider, err)
		}
		payload = b
	}

	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, r, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s circuit open", ErrProviderUnavailable, c.provider)
		}
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrProviderUnavailable, c.provider, err)
	}
	return nil
}

func (c *apiClient) send(ctx context.Context, r apiRequest, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s %s: %v", ErrProviderUnavailable, c.provider, r.method, r.path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %v", ErrProviderUnavailable, c.provider, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s %s %s: status %d", ErrProviderUnavailable, c.provider, r.method, r.path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &RejectedError{Provider: c.provider, Status: resp.StatusCode, Message: errorMessage(b)}
	}
	return b, nil
}

// errorMessage pulls a human readable message out of a provider error body.
func errorMessage(b []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
