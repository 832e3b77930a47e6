package sender

import "context"

// Mode is the dispatch mode a Sender operates in, decided once at
// construction time from the Sink's declared Capabilities.
type Mode int

const (
	// ModeSync delivers each event inline on the feeder goroutine via
	// SyncSink.SendSync before the next event is taken from upstream.
	ModeSync Mode = iota
	// ModeAsync hands each event's Future to AsyncSink.SendAsync and
	// returns immediately; the sink completes the future later.
	ModeAsync
	// ModeBatched accumulates events into a Batch and hands sealed
	// batches to BatchSink.FlushBatch from the worker pool.
	ModeBatched
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	case ModeBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// Capabilities declares which dispatch modes a Sink supports, following the
// declaration surface in SPEC_FULL.md §4.8/§6.
type Capabilities struct {
	// BatchCapable, combined with a configured BatchSize, selects ModeBatched.
	BatchCapable bool
	// BatchOnly clamps BatchSize/Workers to at least 1 regardless of
	// configuration, for sinks that have no meaningful per-event path
	// (e.g. a columnar warehouse writer).
	BatchOnly bool
	// Async selects ModeAsync when BatchCapable did not already apply.
	Async bool
}

// Sink is the minimum contract every sink implements: an encoder/filter
// pipeline it trusts the Sender to run, and its declared capabilities.
type Sink interface {
	Capabilities() Capabilities
}

// SyncSink delivers one event per call, blocking until the outcome is
// known.
type SyncSink interface {
	Sink
	SendSync(ctx context.Context, e []byte) error
}

// AsyncSink hands off one event and completes its Future whenever the
// outcome becomes known, possibly from another goroutine entirely (e.g. a
// NATS ack callback).
type AsyncSink interface {
	Sink
	SendAsync(ctx context.Context, payload []byte, future *Future)
}

// BatchSink accepts a whole encoded batch at once.
type BatchSink interface {
	Sink
	FlushBatch(ctx context.Context, payloads [][]byte) error
}

// Stopper is implemented by sinks that hold resources (connections, file
// handles) needing an explicit close on Sender.Stop. Checked with a type
// assertion rather than folded into Sink, since most sinks are stateless
// (DESIGN.md).
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reporter receives status/metric observations from the sender core. The
// concrete implementation lives in internal/telemetry; tests use a
// hand-written fake (no mocking library, matching the teacher's style).
type Reporter interface {
	ObserveBatchSize(n int)
	IncEventsAccepted(n int)
	IncEventsDelivered(n int)
	IncEventsFailed(n int)
	IncDropped(n int)
	IncFlush(trigger string)
	ObserveFlushLatency(seconds float64)
	ReportError(message string)
}

// noopReporter discards every observation. Used as the zero-value default
// so Sender never needs a nil check in the hot path.
type noopReporter struct{}

func (noopReporter) ObserveBatchSize(int)        {}
func (noopReporter) IncEventsAccepted(int)       {}
func (noopReporter) IncEventsDelivered(int)      {}
func (noopReporter) IncEventsFailed(int)         {}
func (noopReporter) IncDropped(int)              {}
func (noopReporter) IncFlush(string)             {}
func (noopReporter) ObserveFlushLatency(float64) {}
func (noopReporter) ReportError(string)          {}
