package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SebastienMelki/loghub/internal/event"
	"github.com/SebastienMelki/loghub/internal/filter/dedupfilter"
)

// --- Fakes ---

// identityEncoder echoes an event's payload unchanged, so tests can control
// exactly what bytes reach the sink.
type identityEncoder struct{}

func (identityEncoder) Encode(e event.Event) ([]byte, error) {
	return e.Payload, nil
}

// syncSink is a SyncSink fake that records every call and can be made to
// fail.
type syncSink struct {
	mu        sync.Mutex
	sendCount int
	failEvery bool
	sleep     time.Duration
}

func (s *syncSink) Capabilities() Capabilities { return Capabilities{} }

func (s *syncSink) SendSync(ctx context.Context, payload []byte) error {
	if s.sleep > 0 {
		time.Sleep(s.sleep)
	}
	s.mu.Lock()
	s.sendCount++
	s.mu.Unlock()
	if s.failEvery {
		return errors.New("sync sink: simulated failure")
	}
	return nil
}

func (s *syncSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCount
}

// batchSink is a BatchSink fake recording the size of every flushed batch.
type batchSink struct {
	mu     sync.Mutex
	sizes  []int
	sleep  time.Duration
	failed bool
}

func (b *batchSink) Capabilities() Capabilities { return Capabilities{BatchCapable: true} }

func (b *batchSink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	if b.sleep > 0 {
		time.Sleep(b.sleep)
	}
	b.mu.Lock()
	b.sizes = append(b.sizes, len(payloads))
	failed := b.failed
	b.mu.Unlock()
	if failed {
		return errors.New("batch sink: simulated failure")
	}
	return nil
}

func (b *batchSink) flushedSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, len(b.sizes))
	copy(out, b.sizes)
	return out
}

func (b *batchSink) totalFlushed() int {
	n := 0
	for _, s := range b.flushedSizes() {
		n += s
	}
	return n
}

// fakeReporter records every observation passed to it, for tests that need
// to assert on counters the core is responsible for moving correctly.
type fakeReporter struct {
	mu         sync.Mutex
	accepted   int
	delivered  int
	failed     int
	dropped    int
	flushes    map[string]int
	errors     []string
	batchSizes []int
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{flushes: map[string]int{}}
}

func (r *fakeReporter) ObserveBatchSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchSizes = append(r.batchSizes, n)
}

func (r *fakeReporter) IncEventsAccepted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted += n
}

func (r *fakeReporter) IncEventsDelivered(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered += n
}

func (r *fakeReporter) IncEventsFailed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed += n
}

func (r *fakeReporter) IncDropped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += n
}

func (r *fakeReporter) IncFlush(trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes[trigger]++
}

func (r *fakeReporter) ObserveFlushLatency(float64) {}

func (r *fakeReporter) ReportError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *fakeReporter) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *fakeReporter) droppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func intPtr(n int) *int { return &n }

// putEvents appends n events to queue, each invoking wg.Done and recording
// its outcome in results[i], then closes queue once every Put has returned.
func putEvents(t *testing.T, queue *event.Queue, n int, payload func(i int) []byte) (wg *sync.WaitGroup, results []bool) {
	t.Helper()
	wg = &sync.WaitGroup{}
	wg.Add(n)
	results = make([]bool, n)
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		idx := i
		e := event.New("app", "kind", payload(i), func(success bool, message string) {
			mu.Lock()
			results[idx] = success
			mu.Unlock()
			wg.Done()
		})
		if err := queue.Put(context.Background(), e); err != nil {
			t.Fatalf("put event %d: %v", i, err)
		}
	}
	return wg, results
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for events to complete")
	}
}

// --- S1: synchronous, success ---

func TestSender_SyncSuccess(t *testing.T) {
	sink := &syncSink{}
	s, err := New(Config{Name: "s1"}, sink, identityEncoder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 10, func(i int) []byte { return []byte("payload") })
	waitOrTimeout(t, wg, 2*time.Second)

	for i, ok := range results {
		if !ok {
			t.Errorf("event %d: expected success", i)
		}
	}
	if got := sink.count(); got != 10 {
		t.Errorf("sendCount = %d, want 10", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- S2: synchronous, failure ---

func TestSender_SyncFailure(t *testing.T) {
	sink := &syncSink{failEvery: true}
	reporter := newFakeReporter()
	s, err := New(Config{Name: "s2"}, sink, identityEncoder{}, WithReporter(reporter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 5, func(i int) []byte { return []byte("payload") })
	waitOrTimeout(t, wg, 2*time.Second)

	for i, ok := range results {
		if ok {
			t.Errorf("event %d: expected failure", i)
		}
	}
	if got := sink.count(); got != 5 {
		t.Errorf("sendCount = %d, want 5", got)
	}
	if got := reporter.failedCount(); got != 5 {
		t.Errorf("reporter failedCount = %d, want 5", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- S3: batched, size-trigger ---

func TestSender_BatchedSizeTrigger(t *testing.T) {
	sink := &batchSink{}
	cfg := Config{Name: "s3", BatchSize: intPtr(10), Workers: 2, FlushInterval: 300 * time.Millisecond}
	s, err := New(cfg, sink, identityEncoder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 25, func(i int) []byte { return []byte("payload") })
	// The flush scheduler wakes on a fixed 5-second cadence regardless of
	// FlushInterval (SPEC_FULL.md §4.6); the remainder batch below the
	// size trigger isn't flushed until that poll notices it's stale, so
	// the wait budget must clear one scheduler tick.
	waitOrTimeout(t, wg, 7*time.Second)

	for i, ok := range results {
		if !ok {
			t.Errorf("event %d: expected success", i)
		}
	}
	if total := sink.totalFlushed(); total != 25 {
		t.Errorf("totalFlushed = %d, want 25", total)
	}

	sizes := sink.flushedSizes()
	fullBatches := 0
	for _, sz := range sizes {
		if sz == 10 {
			fullBatches++
		}
	}
	if fullBatches < 2 {
		t.Errorf("expected at least 2 full batches of size 10, got sizes %v", sizes)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- S4: batched, age-trigger ---

func TestSender_BatchedAgeTrigger(t *testing.T) {
	sink := &batchSink{}
	cfg := Config{Name: "s4", BatchSize: intPtr(1000), Workers: 1, FlushInterval: 200 * time.Millisecond}
	s, err := New(cfg, sink, identityEncoder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 3, func(i int) []byte { return []byte("payload") })
	// Same fixed 5-second scheduler cadence as S3: the age trigger only
	// fires on the next poll after FlushInterval has elapsed.
	waitOrTimeout(t, wg, 7*time.Second)

	for i, ok := range results {
		if !ok {
			t.Errorf("event %d: expected success", i)
		}
	}
	sizes := sink.flushedSizes()
	if len(sizes) != 1 || sizes[0] != 3 {
		t.Errorf("expected one flush of size 3, got %v", sizes)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- S5: shutdown drains to failure ---

func TestSender_ShutdownDrainsToFailure(t *testing.T) {
	sink := &batchSink{}
	reporter := newFakeReporter()
	cfg := Config{Name: "s5", BatchSize: intPtr(1000), Workers: 2, FlushInterval: 10 * time.Second}
	s, err := New(cfg, sink, identityEncoder{}, WithReporter(reporter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 50, func(i int) []byte { return []byte("payload") })

	stopDone := make(chan error, 1)
	go func() {
		stopDone <- s.Stop(context.Background())
	}()

	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return within 3s")
	}

	waitOrTimeout(t, wg, time.Second)
	for i, ok := range results {
		if ok {
			t.Errorf("event %d: expected failure after shutdown drain", i)
		}
	}
	if total := sink.totalFlushed(); total != 0 {
		t.Errorf("expected no successful flush, got %d events flushed", total)
	}
	if got := reporter.failedCount(); got != 50 {
		t.Errorf("reporter failedCount = %d, want 50", got)
	}
}

// --- S6: backpressure ---

func TestSender_Backpressure(t *testing.T) {
	sink := &batchSink{sleep: 50 * time.Millisecond}
	cfg := Config{Name: "s6", BatchSize: intPtr(1), Workers: 1, FlushInterval: 500 * time.Millisecond}
	s, err := New(cfg, sink, identityEncoder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	start := time.Now()
	wg, results := putEvents(t, queue, 10, func(i int) []byte { return []byte("payload") })
	waitOrTimeout(t, wg, 3*time.Second)
	elapsed := time.Since(start)

	for i, ok := range results {
		if !ok {
			t.Errorf("event %d: expected eventual success", i)
		}
	}
	// With a single worker and a 50ms sink, 10 size-1 batches cannot
	// complete faster than serial delivery: no event is silently dropped
	// to keep up.
	if elapsed < 400*time.Millisecond {
		t.Errorf("elapsed %v suggests events were dropped rather than queued under backpressure", elapsed)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- S7: dedup filter drops a repeated idempotency key ---

func TestSender_DedupFilterDropsRepeat(t *testing.T) {
	sink := &syncSink{}
	reporter := newFakeReporter()
	dedup := dedupfilter.New(time.Minute, 1000, 0.0001, func(payload []byte) string {
		return string(payload)
	})
	dedup.Start()
	defer dedup.Stop()

	s, err := New(Config{Name: "s7"}, sink, identityEncoder{}, WithFilters(dedup), WithReporter(reporter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 2, func(i int) []byte { return []byte("same-payload") })
	waitOrTimeout(t, wg, 2*time.Second)

	for i, ok := range results {
		if !ok {
			t.Errorf("event %d: expected success (duplicate drop still completes true)", i)
		}
	}
	if got := sink.count(); got != 1 {
		t.Errorf("sendCount = %d, want 1 (second event should have been dropped before reaching the sink)", got)
	}
	if got := reporter.droppedCount(); got != 1 {
		t.Errorf("reporter droppedCount = %d, want 1", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- batched FlushBatch failure moves the failed-events counter ---

func TestSender_BatchedFlushFailureCountsFailed(t *testing.T) {
	sink := &batchSink{failed: true}
	reporter := newFakeReporter()
	cfg := Config{Name: "s8", BatchSize: intPtr(5), Workers: 1, FlushInterval: 10 * time.Second}
	s, err := New(cfg, sink, identityEncoder{}, WithReporter(reporter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	wg, results := putEvents(t, queue, 5, func(i int) []byte { return []byte("payload") })
	waitOrTimeout(t, wg, 2*time.Second)

	for i, ok := range results {
		if ok {
			t.Errorf("event %d: expected failure", i)
		}
	}
	if got := reporter.failedCount(); got != 5 {
		t.Errorf("reporter failedCount = %d, want 5", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// --- Stop invokes the management-endpoint unregister hook, best effort ---

func TestSender_StopInvokesUnregisterHook(t *testing.T) {
	var called int32
	cfg := Config{
		Name: "s9",
		UnregisterHook: func(ctx context.Context) error {
			atomic.AddInt32(&called, 1)
			return errors.New("unregister: simulated failure")
		},
	}
	sink := &syncSink{}
	reporter := newFakeReporter()
	s, err := New(cfg, sink, identityEncoder{}, WithReporter(reporter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queue := event.NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if atomic.LoadInt32(&called) != 1 {
		t.Errorf("UnregisterHook called %d times, want 1", called)
	}
}
