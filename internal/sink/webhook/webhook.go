// Package webhook implements an async sender.Sink that POSTs encoded
// payloads to a configured webhook URL with HMAC/Basic/Bearer auth and
// retry. Grounded on internal/reaction/dispatcher.go's Dispatcher.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SebastienMelki/loghub/internal/retrypolicy"
	"github.com/SebastienMelki/loghub/internal/sender"
)

// AuthType selects how requests are authenticated.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthHMAC   AuthType = "hmac"
)

// ErrInvalidAuthType is returned when Config.AuthType is not recognized.
var ErrInvalidAuthType = fmt.Errorf("webhook: invalid auth type")

// ErrWebhookStatusError wraps a non-2xx response.
var ErrWebhookStatusError = fmt.Errorf("webhook: non-2xx response")

// Config configures the destination and auth for a webhook Sink.
type Config struct {
	URL            string `env:"WEBHOOK_URL"`
	Headers        map[string]string
	AuthType       AuthType      `env:"WEBHOOK_AUTH_TYPE" envDefault:"none"`
	BasicUsername  string        `env:"WEBHOOK_BASIC_USERNAME"`
	BasicPassword  string        `env:"WEBHOOK_BASIC_PASSWORD"`
	BearerToken    string        `env:"WEBHOOK_BEARER_TOKEN"`
	HMACSecret     string        `env:"WEBHOOK_HMAC_SECRET"`
	HMACHeader     string        `env:"WEBHOOK_HMAC_HEADER" envDefault:"X-Signature"`
	RequestTimeout time.Duration `env:"WEBHOOK_REQUEST_TIMEOUT" envDefault:"10s"`
}

// Sink delivers one event per webhook call, asynchronously.
type Sink struct {
	cfg        Config
	httpClient *http.Client
	retry      retrypolicy.Strategy
	logger     *slog.Logger
}

// New constructs a Sink. retry defaults to retrypolicy.DefaultRetry if nil.
func New(cfg Config, retry retrypolicy.Strategy, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if retry == nil {
		retry = retrypolicy.DefaultRetry
	}
	return &Sink{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		retry:      retry,
		logger:     logger.With("component", "webhook_sink"),
	}
}

// Capabilities declares async-only support: a webhook call per event.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{Async: true}
}

// SendAsync delivers payload in its own goroutine, retrying on failure
// according to s.retry, and completes future with the final outcome.
func (s *Sink) SendAsync(ctx context.Context, payload []byte, future *sender.Future) {
	go func() {
		var lastErr error
		for attempt := 0; attempt <= s.retry.MaxAttempts(); attempt++ {
			if attempt > 0 {
				delay := s.retry.NextDelay(attempt - 1)
				select {
				case <-ctx.Done():
					future.Fail(ctx.Err().Error())
					return
				case <-time.After(delay):
				}
			}
			statusCode, err := s.deliver(ctx, payload)
			if err == nil {
				future.Complete(true)
				return
			}
			lastErr = err
			s.logger.Warn("webhook delivery failed", "attempt", attempt+1, "status_code", statusCode, "error", err)
		}
		future.Fail(lastErr.Error())
	}()
}

func (s *Sink) deliver(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if err := s.addAuth(req, payload); err != nil {
		return 0, fmt.Errorf("failed to add auth: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	statusCode := resp.StatusCode
	if statusCode < 200 || statusCode >= 300 {
		return statusCode, fmt.Errorf("%w: status %d, body: %s", ErrWebhookStatusError, statusCode, string(body))
	}
	return statusCode, nil
}

func (s *Sink) addAuth(req *http.Request, payload []byte) error {
	switch s.cfg.AuthType {
	case AuthNone, "":
		return nil
	case AuthBasic:
		req.SetBasicAuth(s.cfg.BasicUsername, s.cfg.BasicPassword)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	case AuthHMAC:
		header := s.cfg.HMACHeader
		if header == "" {
			header = "X-Signature"
		}
		req.Header.Set(header, s.computeHMAC(payload))
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAuthType, s.cfg.AuthType)
	}
	return nil
}

func (s *Sink) computeHMAC(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.HMACSecret))
	mac.Write(payload)
	return "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
