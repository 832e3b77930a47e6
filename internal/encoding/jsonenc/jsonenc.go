// Package jsonenc implements a sender.Encoder producing the wire envelope
// the rest of the repository's sinks expect, following the field shape of
// the original SDK's causality.Event (event_type/timestamp/app_id/...).
package jsonenc

import (
	"encoding/json"
	"iter"

	"github.com/SebastienMelki/loghub/internal/event"
	"github.com/SebastienMelki/loghub/internal/sender"
)

// envelope is the JSON wire shape for a single event.
type envelope struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	Timestamp string            `json:"timestamp"`
	AppID     string            `json:"app_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// Encoder marshals events to JSON. The zero value is ready to use.
type Encoder struct{}

// Encode implements sender.Encoder, the EncodeOne entry point.
func (Encoder) Encode(e event.Event) ([]byte, error) {
	env, err := envelopeFor(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// EncodeBatch implements sender.BatchEncoder, the EncodeBatch entry point:
// it marshals every pending future's event as one JSON array instead of one
// object per event, so a batch-capable sink gets a single combined payload
// per flush.
func (Encoder) EncodeBatch(futures iter.Seq[*sender.Future]) ([]byte, error) {
	var envs []envelope
	for f := range futures {
		env, err := envelopeFor(f.Event())
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return json.Marshal(envs)
}

func envelopeFor(e event.Event) (envelope, error) {
	env := envelope{
		ID:        e.ID,
		EventType: e.Kind,
		Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		AppID:     e.AppID,
		Metadata:  e.Attributes,
	}
	if len(e.Payload) > 0 && json.Valid(e.Payload) {
		env.Payload = e.Payload
	} else if len(e.Payload) > 0 {
		raw, err := json.Marshal(string(e.Payload))
		if err != nil {
			return envelope{}, err
		}
		env.Payload = raw
	}
	return env, nil
}
