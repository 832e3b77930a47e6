package sender

import (
	"iter"

	"github.com/SebastienMelki/loghub/internal/event"
)

// Encoder turns an Event's Payload/Attributes into the wire bytes a sink
// sends. Encoders are pure and stateless; the sender calls Encode once per
// event, never concurrently for the same event. This is the EncodeOne entry
// point of SPEC_FULL.md §4.10; the method is named Encode to match the
// teacher's single-event codec naming.
type Encoder interface {
	Encode(e event.Event) ([]byte, error)
}

// BatchEncoder is the optional EncodeBatch entry point of SPEC_FULL.md
// §4.10: an encoder that can produce one combined payload for an entire
// batch instead of one payload per event. futures yields only the batch's
// still-pending futures, so the encoder never touches one that raced to
// completion. worker.deliver checks for this with a type assertion and
// falls back to calling Encode once per future when an encoder doesn't
// implement it.
type BatchEncoder interface {
	EncodeBatch(futures iter.Seq[*Future]) ([]byte, error)
}

// Filter runs after Encoder and before the sink sees the bytes. A filter
// that passes an event through returns the (possibly transformed) bytes to
// forward. A filter that wants to drop an event silently (treat it as
// delivered, skip the sink entirely) returns a non-nil, zero-length slice;
// the Sender recognizes len(out) == 0 && out != nil as "drop" and completes
// the future as a success without invoking the sink (SPEC_FULL.md §4.10,
// DESIGN.md open question 3). A filter that wants to reject the event
// outright returns a non-nil error instead.
type Filter interface {
	Apply(payload []byte) ([]byte, error)
}

// Verifier is implemented by encoders/filters that need to validate
// external preconditions (e.g. a schema registry reachable, a bloom filter
// sized sanely) before the Sender starts accepting events. Checked once at
// Sender construction; a failure there is ErrFatal.
type Verifier interface {
	Verify() error
}

func isDrop(out []byte, err error) bool {
	return err == nil && out != nil && len(out) == 0
}

// pipeline runs the encoder then every filter in order, short-circuiting on
// the first drop or error.
type pipeline struct {
	encoder Encoder
	filters []Filter
}

func newPipeline(enc Encoder, filters ...Filter) *pipeline {
	return &pipeline{encoder: enc, filters: filters}
}

// process returns the final bytes, whether the event was dropped, and any
// error.
func (p *pipeline) process(e event.Event) (out []byte, dropped bool, err error) {
	out, err = p.encoder.Encode(e)
	if err != nil {
		return nil, false, err
	}
	for _, f := range p.filters {
		next, ferr := f.Apply(out)
		if isDrop(next, ferr) {
			return nil, true, nil
		}
		if ferr != nil {
			return nil, false, ferr
		}
		out = next
	}
	return out, false, nil
}

// processBatch runs the encoder's EncodeBatch entry point, if it implements
// BatchEncoder, over futures, then every filter on the combined payload. ok
// is false when the encoder has no batch entry point, so the caller should
// fall back to process per future.
func (p *pipeline) processBatch(futures iter.Seq[*Future]) (out []byte, dropped bool, err error, ok bool) {
	be, isBatch := p.encoder.(BatchEncoder)
	if !isBatch {
		return nil, false, nil, false
	}
	out, err = be.EncodeBatch(futures)
	if err != nil {
		return nil, false, err, true
	}
	for _, f := range p.filters {
		next, ferr := f.Apply(out)
		if isDrop(next, ferr) {
			return nil, true, nil, true
		}
		if ferr != nil {
			return nil, false, ferr, true
		}
		out = next
	}
	return out, false, nil, true
}

func (p *pipeline) verify() error {
	if v, ok := p.encoder.(Verifier); ok {
		if err := v.Verify(); err != nil {
			return err
		}
	}
	for _, f := range p.filters {
		if v, ok := f.(Verifier); ok {
			if err := v.Verify(); err != nil {
				return err
			}
		}
	}
	return nil
}
