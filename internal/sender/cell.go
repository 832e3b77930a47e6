package sender

import "sync/atomic"

// cell holds the current, still-open batch for a Sender behind an
// atomic.Pointer so the feeder loop can append to it without taking a lock
// shared with the scheduler/worker swap path. Grounded on the teacher's use
// of atomic.Pointer for lock-free hot-path swaps (internal/nats/publisher.go
// connection handle), generalized here to the batch slot (DESIGN.md).
type cell struct {
	ptr atomic.Pointer[Batch]
}

func newCell(initial *Batch) *cell {
	c := &cell{}
	c.ptr.Store(initial)
	return c
}

// load returns the current batch.
func (c *cell) load() *Batch {
	return c.ptr.Load()
}

// swap atomically replaces the current batch with fresh and returns the
// batch that was replaced, sealing it first so any straggling Append sees
// sealed=true instead of racing a torn read.
func (c *cell) swap(fresh *Batch) *Batch {
	old := c.ptr.Swap(fresh)
	if old != nil {
		old.Seal()
	}
	return old
}
