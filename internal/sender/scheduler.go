package sender

import (
	"context"
	"time"
)

// schedulerPollInterval is the scheduler's fixed wake-up cadence
// (SPEC_FULL.md §4.6), independent of the configured FlushInterval: the
// poll rate and the staleness threshold are two different timescales.
const schedulerPollInterval = 5 * time.Second

// defaultFlushInterval is the staleness threshold a batched Sender applies
// when Config leaves FlushInterval unset.
const defaultFlushInterval = 5 * time.Second

// runScheduler wakes every schedulerPollInterval and seals/enqueues the
// current batch only once it has gone stale (older than
// cfg.flushInterval()), skipping empty batches so an idle Sender produces
// no sink traffic. Grounded on the teacher's fixed-cadence ticker pattern in
// internal/compaction (periodic run loop), adapted to the sender's
// swap-then-seal cell.
func (s *Sender) runScheduler(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(schedulerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastFlush.Load())
			if time.Since(last) > s.cfg.flushInterval() {
				s.flushCurrent(ctx, "interval")
			}
		case <-s.stopScheduler:
			return
		}
	}
}

// flushCurrent swaps out the current batch, and if it holds any futures,
// seals and enqueues it for a worker to deliver.
func (s *Sender) flushCurrent(ctx context.Context, trigger string) {
	fresh := newBatch(s)
	old := s.cell.swap(fresh)
	if old == nil || old.Len() == 0 {
		return
	}
	s.reporter.IncFlush(trigger)
	if err := s.queue.enqueue(ctx, old); err != nil {
		logBatchDrop(s.logger, err.Error(), old.Len())
		old.failAll(ErrClosed.Error())
	}
}
