// Package event defines the opaque unit of log data the Sender Core moves
// from the upstream queue to a sink, and the bounded queue that feeds it.
package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is an opaque unit of log data. The sender core never inspects
// Payload or Attributes; it only calls End exactly once when the event's
// delivery outcome is known.
type Event struct {
	// ID uniquely identifies the event. Generated with uuid.New if empty.
	ID string

	// AppID and Kind are used for sink routing and metric/log labeling.
	AppID string
	Kind  string

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Payload is the raw, not-yet-encoded event body.
	Payload []byte

	// Attributes carries arbitrary key/value context alongside Payload.
	Attributes map[string]string

	// end is invoked exactly once with the final outcome. nil is a valid
	// no-op terminator for events that don't need one.
	end     func(success bool, message string)
	endOnce sync.Once
}

// New creates an Event with a freshly generated ID.
func New(appID, kind string, payload []byte, end func(success bool, message string)) Event {
	return Event{
		ID:        uuid.New().String(),
		AppID:     appID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		end:       end,
	}
}

// End invokes the terminal callback exactly once. Subsequent calls are
// no-ops, matching the "end() invoked exactly once" contract in the spec.
func (e *Event) End(success bool, message string) {
	e.endOnce.Do(func() {
		if e.end != nil {
			e.end(success, message)
		}
	})
}

// ErrQueueClosed is returned by Take once the queue has been closed and
// drained.
var ErrQueueClosed = errors.New("event: queue closed")

// Queue is a bounded, multi-producer single-consumer channel of events,
// modeling the "unbounded-producer / bounded-consumer" upstream contract
// the sender core depends on (sender.Upstream).
type Queue struct {
	ch chan Event
}

// NewQueue creates a Queue with the given channel capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Put enqueues an event, blocking if the queue is full or until ctx is done.
func (q *Queue) Put(ctx context.Context, e Event) error {
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take removes the next event, blocking until one is available or ctx is
// done.
func (q *Queue) Take(ctx context.Context) (Event, error) {
	select {
	case e, ok := <-q.ch:
		if !ok {
			return Event{}, ErrQueueClosed
		}
		return e, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close closes the underlying channel. Put must not be called after Close.
func (q *Queue) Close() {
	close(q.ch)
}

// Len reports the number of events currently buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}
