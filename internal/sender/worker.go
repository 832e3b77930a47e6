package sender

import (
	"context"
	"time"
)

// runWorker drains the batch queue until it sees the shutdown sentinel
// (nil). Each worker is independent: there is no shared state between
// workers besides the queue and the reporter, so a slow sink delivery on
// one worker never blocks another. Grounded on sdk/go/batch.go's single
// flush goroutine, generalized to a pool of N (SPEC_FULL.md §4.5).
func (s *Sender) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		b, err := s.queue.dequeue(ctx)
		if err != nil {
			return
		}
		if b == nil {
			return
		}
		s.deliver(ctx, b)
	}
}

// deliver runs the sink appropriate to the batch's originating mode and
// completes every pending future, then reports the flush. Grounded on
// SPEC_FULL.md §4.5: record lastFlush as soon as a non-empty batch is
// picked up, run the batch-capable encode path when the encoder supports
// it and fall back to one Encode call per future otherwise, then complete
// and finalize.
func (s *Sender) deliver(ctx context.Context, b *Batch) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.failAll(ErrFatal.Error())
			s.reportError(ErrFatal.Error())
		}
	}()

	s.lastFlush.Store(time.Now().UnixNano())

	var payloads [][]byte
	var futures []*Future

	if out, dropped, err, ok := s.pipeline.processBatch(b.PendingIter()); ok {
		switch {
		case err != nil:
			n := b.failAll(err.Error())
			s.reporter.IncEventsFailed(n)
			b.Finalize(s.reporter)
			return
		case dropped:
			n := 0
			for f := range b.PendingIter() {
				if f.Complete(true) {
					n++
				}
			}
			s.reporter.IncDropped(n)
			b.Finalize(s.reporter)
			return
		default:
			for f := range b.PendingIter() {
				futures = append(futures, f)
			}
			payloads = [][]byte{out}
		}
	} else {
		payloads = make([][]byte, 0, b.Len())
		futures = make([]*Future, 0, b.Len())
		for f := range b.PendingIter() {
			out, dropped, err := s.pipeline.process(f.Event())
			if err != nil {
				if f.Fail(err.Error()) {
					s.reporter.IncEventsFailed(1)
				}
				continue
			}
			if dropped {
				if f.Complete(true) {
					s.reporter.IncDropped(1)
				}
				continue
			}
			payloads = append(payloads, out)
			futures = append(futures, f)
		}
	}

	if len(payloads) == 0 {
		b.Finalize(s.reporter)
		return
	}

	sink, ok := s.sink.(BatchSink)
	if !ok {
		for _, f := range futures {
			f.Fail(ErrFatal.Error())
		}
		s.reportError("worker: batch delivered to non-batch sink")
		b.Finalize(s.reporter)
		return
	}

	err := sink.FlushBatch(ctx, payloads)
	if err != nil {
		n := 0
		for _, f := range futures {
			if f.Fail(err.Error()) {
				n++
			}
		}
		s.reporter.IncEventsFailed(n)
		s.reportError(err.Error())
	} else {
		n := 0
		for _, f := range futures {
			if f.Complete(true) {
				n++
			}
		}
		s.reporter.IncEventsDelivered(n)
	}

	s.reporter.ObserveFlushLatency(time.Since(start).Seconds())
	b.Finalize(s.reporter)
}
