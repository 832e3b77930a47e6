// Package sender implements the Sender Core: a generic, concurrent
// dispatch engine that moves events from an upstream queue to a
// pluggable sink, synchronously, asynchronously or in size/age-bounded
// batches, with graceful shutdown and per-event completion tracking.
package sender

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SebastienMelki/loghub/internal/event"
)

// Upstream supplies events one at a time. event.Queue satisfies this.
type Upstream interface {
	Take(ctx context.Context) (event.Event, error)
}

// Sender is the Lifecycle Controller (SPEC_FULL.md §4.9): it owns the
// feeder loop, the optional worker pool and flush scheduler, and the
// current-batch cell, and drives them through Start/Stop.
type Sender struct {
	cfg      Config
	mode     Mode
	sink     Sink
	pipeline *pipeline
	reporter Reporter
	logger   *slog.Logger

	cell  *cell
	queue *batchQueue

	closed    atomic.Bool
	lastFlush atomic.Int64

	barrier       chan struct{}
	stopScheduler chan struct{}
	stopOnce      sync.Once

	wg           sync.WaitGroup
	feederCancel context.CancelFunc
}

// Option configures optional Sender dependencies beyond the required
// Config, Sink and Encoder.
type Option func(*Sender)

// WithReporter overrides the default no-op Reporter.
func WithReporter(r Reporter) Option {
	return func(s *Sender) { s.reporter = r }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// WithFilters appends filters to the encode pipeline, applied in order
// after the encoder.
func WithFilters(filters ...Filter) Option {
	return func(s *Sender) {
		s.pipeline.filters = append(s.pipeline.filters, filters...)
	}
}

// New constructs a Sender. It does not start any goroutines; call Start
// to begin processing. Verify is run against the encoder and every filter
// that implements Verifier; a failure there is wrapped in ErrFatal and no
// partially-initialized Sender is returned.
func New(cfg Config, sink Sink, enc Encoder, opts ...Option) (*Sender, error) {
	caps := sink.Capabilities()
	cfg = cfg.normalize(caps)

	s := &Sender{
		cfg:           cfg,
		mode:          decideMode(caps, cfg),
		sink:          sink,
		pipeline:      newPipeline(enc),
		reporter:      noopReporter{},
		logger:        slog.Default(),
		barrier:       make(chan struct{}, 1),
		stopScheduler: make(chan struct{}),
	}
	s.barrier <- struct{}{}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.pipeline.verify(); err != nil {
		return nil, wrapFatal(err)
	}

	if s.mode == ModeBatched {
		s.queue = newBatchQueue(cfg.queueCapacity())
	}
	s.cell = newCell(newBatch(s))
	s.lastFlush.Store(time.Now().UnixNano())

	return s, nil
}

func wrapFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalErr{cause: err}
}

type fatalErr struct{ cause error }

func (e *fatalErr) Error() string { return ErrFatal.Error() + ": " + e.cause.Error() }
func (e *fatalErr) Unwrap() error { return ErrFatal }

// Mode reports the dispatch mode decided at construction.
func (s *Sender) Mode() Mode { return s.mode }

// Start launches the feeder goroutine (and, in batched mode, the worker
// pool and flush scheduler) reading from upstream until ctx is done or
// Stop is called.
func (s *Sender) Start(ctx context.Context, upstream Upstream) {
	feederCtx, cancel := context.WithCancel(ctx)
	s.feederCancel = cancel

	s.wg.Add(1)
	go s.runFeeder(feederCtx, upstream)

	if s.mode == ModeBatched {
		for i := 0; i < s.cfg.Workers; i++ {
			s.wg.Add(1)
			go s.runWorker(feederCtx)
		}
		s.wg.Add(1)
		go s.runScheduler(feederCtx)
	}
}

// Stop begins the shutdown sequence described in SPEC_FULL.md §4.9 and
// blocks until it completes. ctx is handed to the unregister hook and the
// sink's Stop; the final wait for the sender's goroutines is bounded by one
// second per worker, not by ctx. Safe to call more than once; only the
// first call runs the sequence.
func (s *Sender) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		<-s.barrier // exclude any in-flight feeder dispatch step

		s.closed.Store(true)

		if s.mode == ModeBatched {
			s.drainOnShutdown(ctx)
			close(s.stopScheduler)
			s.queue.closeWith(s.cfg.Workers)
		}

		if s.cfg.UnregisterHook != nil {
			if err := s.cfg.UnregisterHook(ctx); err != nil {
				s.reportError(err.Error())
			}
		}

		if stopper, ok := s.sink.(Stopper); ok {
			if err := stopper.Stop(ctx); err != nil {
				s.reportError(err.Error())
			}
		}

		if s.feederCancel != nil {
			s.feederCancel()
		}

		// Hand the barrier back so a feeder waiting on it sees closed and
		// fails the event it holds instead of blocking forever.
		s.barrier <- struct{}{}

		waitWithTimeout(&s.wg, perStageBudget(s.cfg.Workers))
	})
	return nil
}

// drainOnShutdown empties the batch queue and the current batch into
// terminal failures, so no future is left pending once Stop returns. Every
// drained batch is finalized exactly like a worker-flushed one (SPEC_FULL.md
// §8 invariant 4), and every failure it produces moves the failed-events
// counter.
func (s *Sender) drainOnShutdown(ctx context.Context) {
	for {
		select {
		case b := <-s.queue.ch:
			if b != nil {
				n := b.failAll(ErrClosed.Error())
				s.reporter.IncEventsFailed(n)
				b.Finalize(s.reporter)
			}
		default:
			goto drainCell
		}
	}
drainCell:
	current := s.cell.swap(newBatch(s))
	if current != nil {
		n := current.failAll(ErrClosed.Error())
		s.reporter.IncEventsFailed(n)
		current.Finalize(s.reporter)
	}
}

func perStageBudget(workers int) time.Duration {
	if workers < 1 {
		workers = 1
	}
	return time.Duration(workers) * time.Second
}

func waitWithTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

func (s *Sender) reportError(message string) {
	s.reporter.ReportError(message)
	s.logger.Error("sender error", "name", s.cfg.Name, "message", message)
}
