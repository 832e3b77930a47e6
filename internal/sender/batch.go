package sender

import (
	"iter"
	"log/slog"
	"sync"

	"github.com/SebastienMelki/loghub/internal/event"
)

// Batch is an append-only collection of event futures bound to a single
// Sender. It is mutable only while it is the "current" batch held in the
// sender's cell; once swapped out it is sealed and read by exactly one
// worker. Grounded on sdk/go/batch.go's batcher.events slice + drain swap,
// generalized from []Event to []*Future (DESIGN.md).
type Batch struct {
	sender *Sender

	mu       sync.Mutex
	futures  []*Future
	sealed   bool
	finalize sync.Once
}

func newBatch(s *Sender) *Batch {
	return &Batch{sender: s}
}

// Append adds a new event to the batch and returns its Future. Calling
// Append on a sealed batch is a programming error (the owning cell should
// already have been swapped); rather than panicking, it is a logged no-op
// returning a pre-failed future, since a racing scheduler tick and an
// in-flight queue() call can legitimately land here (SPEC_FULL.md §4.2).
func (b *Batch) Append(e event.Event) *Future {
	f := newFuture(e)

	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		if b.sender != nil {
			b.sender.reportError(ErrAppendAfterSeal.Error())
			b.sender.logger.Warn("append after seal", "event_id", e.ID)
		}
		f.Fail(ErrAppendAfterSeal.Error())
		return f
	}
	b.futures = append(b.futures, f)
	b.mu.Unlock()
	return f
}

// Len reports the number of futures appended so far (pending or not).
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.futures)
}

// Seal marks the batch as no longer current. Must be called by whoever
// removes it from the current-batch cell, before handing it to the batch
// queue.
func (b *Batch) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// PendingIter visits only the futures that are still pending, in append
// order, so encoders and worker completion logic never touch a future that
// raced to completion already (e.g. failed during shutdown drain).
func (b *Batch) PendingIter() iter.Seq[*Future] {
	b.mu.Lock()
	snapshot := make([]*Future, len(b.futures))
	copy(snapshot, b.futures)
	b.mu.Unlock()

	return func(yield func(*Future) bool) {
		for _, f := range snapshot {
			if !f.IsPending() {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Finalize invokes per-future status reporting exactly once per non-empty
// seal, after the sink attempt (success or failure) has already completed
// every future. It is idempotent: a second call is a no-op.
func (b *Batch) Finalize(reporter Reporter) {
	b.finalize.Do(func() {
		b.mu.Lock()
		n := len(b.futures)
		b.mu.Unlock()
		if n == 0 || reporter == nil {
			return
		}
		reporter.ObserveBatchSize(n)
	})
}

// failAll completes every still-pending future as a failure with the given
// message, returning how many futures actually transitioned (so callers can
// move a failure counter without double-counting a future that raced to
// completion already). Used during shutdown drain and on sink errors.
func (b *Batch) failAll(message string) int {
	n := 0
	for f := range b.PendingIter() {
		if f.Fail(message) {
			n++
		}
	}
	return n
}

// succeedAll completes every still-pending future as a success. Used after
// a FlushBatch call returns nil.
func (b *Batch) succeedAll() {
	for f := range b.PendingIter() {
		f.Complete(true)
	}
}

func logBatchDrop(logger *slog.Logger, reason string, n int) {
	if logger == nil || n == 0 {
		return
	}
	logger.Warn("dropping batch", "reason", reason, "futures", n)
}
