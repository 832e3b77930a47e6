// Package httpbulk implements a sender.Sink that POSTs encoded payloads to
// an HTTP bulk-ingest endpoint, one at a time (sync) or newline-joined as a
// batch, with retry and client-side rate limiting.
package httpbulk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/SebastienMelki/loghub/internal/retrypolicy"
	"github.com/SebastienMelki/loghub/internal/sender"
)

// Config configures a Sink.
type Config struct {
	Endpoint  string        `env:"HTTP_BULK_ENDPOINT"`
	APIKey    string        `env:"HTTP_BULK_API_KEY"`
	Timeout   time.Duration `env:"HTTP_BULK_TIMEOUT" envDefault:"10s"`
	RateLimit float64       `env:"HTTP_BULK_RATE_LIMIT" envDefault:"100"`
	RateBurst int           `env:"HTTP_BULK_RATE_BURST" envDefault:"50"`
}

// Sink POSTs events to Config.Endpoint + "/v1/events/batch" (batched) or
// "/v1/events" (single). Grounded on sdk/go/transport.go's httpTransport,
// generalized from a fixed event type to arbitrary encoded payloads.
type Sink struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
	retry   retrypolicy.Strategy
}

// New constructs a Sink. retry defaults to retrypolicy.DefaultRetry if nil.
func New(cfg Config, retry retrypolicy.Strategy) *Sink {
	if retry == nil {
		retry = retrypolicy.DefaultRetry
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 50
	}
	return &Sink{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		retry:   retry,
	}
}

// Capabilities declares both sync and batch support.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{BatchCapable: true}
}

// SendSync posts a single payload to the non-batch endpoint.
func (s *Sink) SendSync(ctx context.Context, payload []byte) error {
	return s.post(ctx, "/v1/events", payload)
}

// FlushBatch posts every payload newline-delimited to the batch endpoint.
func (s *Sink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	var body bytes.Buffer
	for i, p := range payloads {
		if i > 0 {
			body.WriteByte('\n')
		}
		body.Write(p)
	}
	return s.post(ctx, "/v1/events/batch", body.Bytes())
}

// post sends body with retry on 5xx, matching sdk/go/transport.go's
// sendBatch: 4xx is not retried, connection errors and 5xx are.
func (s *Sink) post(ctx context.Context, path string, body []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			delay := s.retry.NextDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("httpbulk: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", s.cfg.APIKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("httpbulk: request failed: %w", err)
			continue
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("httpbulk: client error: status %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("httpbulk: server error: status %d", resp.StatusCode)
	}
	return lastErr
}
