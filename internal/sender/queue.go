package sender

import "context"

// batchQueue is the bounded hand-off between whoever seals a batch (the
// feeder loop on a size trigger, or the flush scheduler on a time trigger)
// and the worker pool that drains it to the sink. Capacity is
// Config.Workers * Config.QueueCapacityMultiplier (SPEC_FULL.md §4.4), giving
// workers a little slack before a slow sink applies backpressure all the
// way back to the feeder.
//
// Shutdown is signaled with one nil sentinel per worker rather than closing
// the channel, because a close would race a concurrent send from a
// scheduler tick that fires during drain (sdk/go/batch.go's stop channel +
// sentinel pattern, generalized from one worker to N).
type batchQueue struct {
	ch chan *Batch
}

func newBatchQueue(capacity int) *batchQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &batchQueue{ch: make(chan *Batch, capacity)}
}

// enqueue blocks until there is room or ctx is done.
func (q *batchQueue) enqueue(ctx context.Context, b *Batch) error {
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dequeue blocks until a batch (or a nil shutdown sentinel) is available.
func (q *batchQueue) dequeue(ctx context.Context) (*Batch, error) {
	select {
	case b := <-q.ch:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// closeWith pushes one nil sentinel per worker so every worker goroutine
// observes shutdown and exits after finishing whatever it is already
// holding.
func (q *batchQueue) closeWith(workers int) {
	for i := 0; i < workers; i++ {
		q.ch <- nil
	}
}
