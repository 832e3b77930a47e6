package sender

import (
	"context"

	"github.com/SebastienMelki/loghub/internal/event"
)

// runFeeder is the single goroutine that removes events from upstream and
// routes them according to the sender's mode (SPEC_FULL.md §4.7).
func (s *Sender) runFeeder(ctx context.Context, upstream Upstream) {
	defer s.wg.Done()
	for {
		e, err := upstream.Take(ctx)
		if err != nil {
			return
		}
		s.dispatch(ctx, e)
	}
}

// dispatch acquires the stop barrier so Stop never begins mid-dispatch,
// then routes e to the mode-appropriate path.
func (s *Sender) dispatch(ctx context.Context, e event.Event) {
	<-s.barrier
	defer func() { s.barrier <- struct{}{} }()

	s.reporter.IncEventsAccepted(1)

	if s.closed.Load() {
		f := newFuture(e)
		if f.Fail(ErrClosed.Error()) {
			s.reporter.IncEventsFailed(1)
		}
		return
	}

	switch s.mode {
	case ModeBatched:
		if !s.enqueueEvent(ctx, e) {
			f := newFuture(e)
			if f.Fail(ErrClosed.Error()) {
				s.reporter.IncEventsFailed(1)
			}
		}
	case ModeAsync:
		s.dispatchAsync(ctx, e)
	default:
		s.dispatchSync(ctx, e)
	}
}

// enqueueEvent appends e to the current batch, sealing and enqueuing it
// for a worker if it just reached BatchSize. Returns false if the sender
// was closed concurrently.
func (s *Sender) enqueueEvent(ctx context.Context, e event.Event) bool {
	if s.closed.Load() {
		return false
	}
	current := s.cell.load()
	current.Append(e)

	if current.Len() < s.cfg.batchSize() {
		return true
	}

	fresh := newBatch(s)
	old := s.cell.swap(fresh)
	if old == nil || old.Len() == 0 {
		return true
	}
	s.reporter.IncFlush("size")
	if err := s.queue.enqueue(ctx, old); err != nil {
		// e's future is in old, so failAll has already completed it.
		old.failAll(ErrClosed.Error())
		return true
	}
	if qlen := len(s.queue.ch); qlen > s.cfg.Workers {
		s.logger.Warn("batch queue backing up, consider more workers",
			"name", s.cfg.Name, "queued", qlen, "workers", s.cfg.Workers)
	}
	return true
}

func (s *Sender) dispatchAsync(ctx context.Context, e event.Event) {
	f := newFuture(e)
	out, dropped, err := s.pipeline.process(e)
	if err != nil {
		f.Fail(err.Error())
		return
	}
	if dropped {
		if f.Complete(true) {
			s.reporter.IncDropped(1)
		}
		return
	}
	sink, ok := s.sink.(AsyncSink)
	if !ok {
		f.Fail(ErrFatal.Error())
		return
	}
	sink.SendAsync(ctx, out, f)
}

func (s *Sender) dispatchSync(ctx context.Context, e event.Event) {
	f := newFuture(e)
	out, dropped, err := s.pipeline.process(e)
	if err != nil {
		f.Fail(err.Error())
		s.reporter.IncEventsFailed(1)
		return
	}
	if dropped {
		if f.Complete(true) {
			s.reporter.IncDropped(1)
		}
		return
	}
	sink, ok := s.sink.(SyncSink)
	if !ok {
		f.Fail(ErrFatal.Error())
		return
	}
	if err := sink.SendSync(ctx, out); err != nil {
		f.Fail(err.Error())
		s.reporter.IncEventsFailed(1)
		s.reportError(err.Error())
		return
	}
	if f.Complete(true) {
		s.reporter.IncEventsDelivered(1)
	}
}
