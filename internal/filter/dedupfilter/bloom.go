// Package dedupfilter implements a sender.Filter that drops events whose
// idempotency key has already been seen within a sliding time window, using
// a rotating pair of bloom filters.
package dedupfilter

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a sliding-window bloom filter deduplicator. Keys are always
// added to the "current" filter, while lookups check both "current" and
// "previous". Periodic rotation swaps current to previous and creates a
// fresh current filter, providing a bounded time window for deduplication.
// Adapted from internal/dedup/internal/domain/bloom.go's BloomFilterSet.
type Filter struct {
	keyFunc func(payload []byte) string

	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	mu       sync.RWMutex
	window   time.Duration
	capacity uint
	fpRate   float64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Filter with the given sliding window duration, expected
// capacity (events per window), false positive rate, and a function
// extracting the idempotency key from an already-encoded payload.
//
// Typical defaults: window 10 minutes, capacity 1,000,000, fpRate 0.0001.
func New(window time.Duration, capacity uint, fpRate float64, keyFunc func(payload []byte) string) *Filter {
	return &Filter{
		keyFunc:  keyFunc,
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Apply returns payload unchanged if its key has not been seen in the
// current window, or a zero-length non-nil slice (the sender.Filter "drop"
// signal) if it is a duplicate.
func (f *Filter) Apply(payload []byte) ([]byte, error) {
	key := f.keyFunc(payload)
	if key == "" {
		return payload, nil
	}
	if f.isDuplicate(key) {
		return []byte{}, nil
	}
	return payload, nil
}

// isDuplicate checks whether the key exists in either the current or
// previous bloom filter. If found, it returns true (duplicate). If not
// found, it adds the key to the current filter and returns false. Safe for
// concurrent use.
func (f *Filter) isDuplicate(key string) bool {
	data := []byte(key)

	f.mu.RLock()
	if f.current.Test(data) || f.previous.Test(data) {
		f.mu.RUnlock()
		return true
	}
	f.mu.RUnlock()

	f.mu.Lock()
	if f.current.Test(data) || f.previous.Test(data) {
		f.mu.Unlock()
		return true
	}
	f.current.Add(data)
	f.mu.Unlock()

	return false
}

// rotate swaps the current filter to previous and creates a fresh current
// filter, called every window/2 to create a sliding overlap that ensures
// keys are visible for at least one full window duration.
func (f *Filter) rotate() {
	f.mu.Lock()
	f.previous = f.current
	f.current = bloom.NewWithEstimates(f.capacity, f.fpRate)
	f.mu.Unlock()
}

// Start launches the background rotation goroutine. Stop must be called to
// release it.
func (f *Filter) Start() {
	rotateInterval := f.window / 2
	go func() {
		defer close(f.doneCh)
		ticker := time.NewTicker(rotateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				f.rotate()
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Stop signals the rotation goroutine to stop and waits for it to finish.
// Idempotent.
func (f *Filter) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		<-f.doneCh
	})
}
