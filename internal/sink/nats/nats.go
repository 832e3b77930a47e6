// Package nats implements a sender.Sink that publishes encoded payloads to
// a NATS JetStream stream, synchronously or fire-and-forget async.
// Grounded on internal/nats/publisher.go's Publisher, generalized from a
// protobuf EventEnvelope to opaque encoded bytes since the core, not the
// sink, owns encoding.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/SebastienMelki/loghub/internal/sender"
)

// Config configures connection and stream parameters.
type Config struct {
	URL           string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Name          string        `env:"NATS_CLIENT_NAME" envDefault:"loghub-sender"`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"60"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
	Timeout       time.Duration `env:"NATS_TIMEOUT" envDefault:"5s"`
	Subject       string        `env:"NATS_SUBJECT" envDefault:"events.loghub"`
}

// Sink publishes payloads to js on the configured subject.
type Sink struct {
	js      jetstream.JetStream
	subject string
	logger  *slog.Logger
}

// New creates a Sink. logger defaults to slog.Default() when nil, matching
// the teacher's Publisher constructor.
func New(js jetstream.JetStream, subject string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = "events.loghub"
	}
	return &Sink{js: js, subject: subject, logger: logger.With("component", "nats_sink")}
}

// Capabilities declares async and batch support.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{Async: true, BatchCapable: true}
}

// SendAsync publishes payload without blocking on the ack; the future is
// completed once the publish-ack future resolves, in a goroutine per call,
// matching Publisher.PublishAsync's jetstream.PubAckFuture shape.
func (s *Sink) SendAsync(ctx context.Context, payload []byte, future *sender.Future) {
	ackFuture, err := s.js.PublishAsync(s.subject, payload)
	if err != nil {
		future.Fail(fmt.Sprintf("nats: publish async: %v", err))
		return
	}

	go func() {
		select {
		case ack := <-ackFuture.Ok():
			s.logger.Debug("event published", "subject", s.subject, "stream", ack.Stream, "sequence", ack.Sequence)
			future.Complete(true)
		case err := <-ackFuture.Err():
			future.Fail(fmt.Sprintf("nats: ack error: %v", err))
		case <-ctx.Done():
			future.Fail(ctx.Err().Error())
		}
	}()
}

// FlushBatch publishes every payload to the stream, synchronously, failing
// the whole batch if any of the publishes fails (matching
// PublishEventBatch's "continue on per-event failure" style, collapsed to
// the core's all-or-nothing FlushBatch contract).
func (s *Sink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	published := 0
	for _, p := range payloads {
		if _, err := s.js.Publish(ctx, s.subject, p); err != nil {
			s.logger.Error("failed to publish event in batch", "error", err)
			continue
		}
		published++
	}
	if published < len(payloads) {
		return fmt.Errorf("nats: published %d of %d events", published, len(payloads))
	}
	return nil
}
