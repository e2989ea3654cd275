// Package transport posts serialized reports to the collection endpoint.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "X-ApiKey"

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether retrying err can never succeed: the endpoint
// rejected the payload or the key.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestEntityTooLarge:
		return true
	}
	return false
}

// Config configures an HTTPTransport.
type Config struct {
	Endpoint string
	APIKey   string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RateLimit is the number of sends per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// HTTPTransport posts payloads through a rate limiter and a circuit breaker.
type HTTPTransport struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// New creates an HTTPTransport. client may be nil.
func New(cfg Config, client *http.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	t := &HTTPTransport{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "http_transport"),
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "faultline-endpoint",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A rejected payload proves the endpoint is up.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	})
	return t
}

// Send posts payload once. Any non-2xx status yields a *StatusError.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.post(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("endpoint unavailable: %w", err)
	}
	return err
}

// State reports the breaker state, e.g. "closed" or "open".
func (t *HTTPTransport) State() string {
	return t.breaker.State().String()
}

func (t *HTTPTransport) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(APIKeyHeader, t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
