// Package ingest feeds a sender.Upstream event.Queue from a NATS JetStream
// consumer, deferring ACK/NAK until the sender core reports the event's
// delivery outcome. Grounded on internal/warehouse/consumer.go's fetch-loop
// worker pool and poison-message handling, trimmed of its own batching and
// partitioning since that is now the sender core's job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/SebastienMelki/loghub/internal/event"
)

// Config configures a NATSFeed.
type Config struct {
	StreamName   string        `env:"INGEST_STREAM" envDefault:"LOGHUB_INGEST"`
	ConsumerName string        `env:"INGEST_CONSUMER" envDefault:"loghub-agent"`
	Workers      int           `env:"INGEST_WORKERS" envDefault:"2"`
	FetchSize    int           `env:"INGEST_FETCH_SIZE" envDefault:"100"`
	FetchMaxWait time.Duration `env:"INGEST_FETCH_MAX_WAIT" envDefault:"5s"`
}

// NATSFeed pulls messages from a JetStream consumer and pushes them onto an
// event.Queue, one fetch-worker per Config.Workers. Each message's ACK/NAK
// is deferred to the event's End callback, so delivery outcome is only
// acknowledged back to NATS once the sender core (or its sink) has decided
// it. A message whose event ultimately fails is handed to onFailure (the
// dead-letter spool, typically) before being terminated, rather than
// redelivered forever.
type NATSFeed struct {
	js        jetstream.JetStream
	cfg       Config
	queue     *event.Queue
	onFailure func(ctx context.Context, payload []byte)
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a NATSFeed. queue is the destination event.Queue, typically
// the same Queue passed to sender.Sender.Start as its Upstream. onFailure
// may be nil, in which case failed events are simply NAKed for redelivery.
func New(js jetstream.JetStream, cfg Config, queue *event.Queue, onFailure func(ctx context.Context, payload []byte), logger *slog.Logger) *NATSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FetchSize < 1 {
		cfg.FetchSize = 100
	}
	if cfg.FetchMaxWait <= 0 {
		cfg.FetchMaxWait = 5 * time.Second
	}
	return &NATSFeed{
		js:        js,
		cfg:       cfg,
		queue:     queue,
		onFailure: onFailure,
		logger:    logger.With("component", "ingest_feed"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start looks up the stream and consumer and launches the fetch-worker pool.
func (f *NATSFeed) Start(ctx context.Context) error {
	stream, err := f.js.Stream(ctx, f.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("ingest: get stream %q: %w", f.cfg.StreamName, err)
	}

	consumer, err := stream.Consumer(ctx, f.cfg.ConsumerName)
	if err != nil {
		return fmt.Errorf("ingest: get consumer %q: %w", f.cfg.ConsumerName, err)
	}

	f.logger.Info("starting ingest feed",
		"stream", f.cfg.StreamName,
		"consumer", f.cfg.ConsumerName,
		"workers", f.cfg.Workers,
	)

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f.workerLoop(ctx, consumer, id)
		}(i)
	}

	go func() {
		wg.Wait()
		close(f.doneCh)
	}()

	return nil
}

func (f *NATSFeed) workerLoop(ctx context.Context, consumer jetstream.Consumer, id int) {
	logger := f.logger.With("worker_id", id)
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
			msgs, err := consumer.Fetch(f.cfg.FetchSize, jetstream.FetchMaxWait(f.cfg.FetchMaxWait))
			if err != nil {
				if !errors.Is(err, context.DeadlineExceeded) {
					logger.Error("fetch failed", "error", err)
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					case <-f.stopCh:
						return
					}
				}
				continue
			}

			for msg := range msgs.Messages() {
				f.processMessage(ctx, msg)
			}
			if err := msgs.Error(); err != nil {
				logger.Error("messages iteration error", "error", err)
			}
		}
	}
}

// processMessage wraps one NATS message as an event.Event and pushes it
// onto the queue. A message that can't even be enqueued (queue full past
// ctx) is NAKed for redelivery; a message whose End callback later reports
// failure is handed to onFailure and terminated at that point, or NAKed
// when onFailure is nil.
func (f *NATSFeed) processMessage(ctx context.Context, msg jetstream.Msg) {
	data := msg.Data()
	e := event.New(msg.Headers().Get("App-Id"), msg.Subject(), data, func(success bool, message string) {
		if success {
			if err := msg.Ack(); err != nil {
				f.logger.Error("failed to ack message", "error", err)
			}
			return
		}

		if f.onFailure != nil {
			f.logger.Warn("event delivery failed, spooling to dead-letter store", "reason", message)
			f.onFailure(ctx, data)
			if err := msg.Term(); err != nil {
				f.logger.Error("failed to terminate spooled message", "error", err)
			}
			return
		}

		f.logger.Warn("event delivery failed, NAKing for redelivery", "reason", message)
		if err := msg.Nak(); err != nil {
			f.logger.Error("failed to nak message", "error", err)
		}
	})

	if err := f.queue.Put(ctx, e); err != nil {
		f.logger.Error("failed to enqueue event, NAKing", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			f.logger.Error("failed to nak message after enqueue failure", "error", nakErr)
		}
	}
}

// Stop signals workers to stop and waits for them to finish or ctx to
// expire.
func (f *NATSFeed) Stop(ctx context.Context) error {
	close(f.stopCh)
	select {
	case <-f.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
