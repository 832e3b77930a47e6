package jsonenc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SebastienMelki/loghub/internal/event"
	"github.com/SebastienMelki/loghub/internal/sender"
)

func TestEncoder_EncodePreservesRawJSONPayload(t *testing.T) {
	e := event.New("app-1", "page_view", []byte(`{"url":"/home"}`), nil)
	e.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e.Attributes = map[string]string{"region": "us-east-1"}

	out, err := Encoder{}.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal encoded output: %v", err)
	}

	if got["event_type"] != "page_view" {
		t.Errorf("event_type = %v, want page_view", got["event_type"])
	}
	if got["app_id"] != "app-1" {
		t.Errorf("app_id = %v, want app-1", got["app_id"])
	}
	if got["timestamp"] != "2026-01-02T03:04:05.000Z" {
		t.Errorf("timestamp = %v, want 2026-01-02T03:04:05.000Z", got["timestamp"])
	}
	payload, ok := got["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not decoded as object: %v", got["payload"])
	}
	if payload["url"] != "/home" {
		t.Errorf("payload.url = %v, want /home", payload["url"])
	}
}

func TestEncoder_EncodeWrapsNonJSONPayload(t *testing.T) {
	e := event.New("app-1", "raw_line", []byte("not json at all"), nil)

	out, err := Encoder{}.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal encoded output: %v", err)
	}
	if got["payload"] != "not json at all" {
		t.Errorf("payload = %v, want %q", got["payload"], "not json at all")
	}
}

func TestEncoder_EncodeEmptyPayloadOmitsField(t *testing.T) {
	e := event.New("app-1", "heartbeat", nil, nil)

	out, err := Encoder{}.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal encoded output: %v", err)
	}
	if _, present := got["payload"]; present {
		t.Errorf("payload field should be omitted for an empty payload, got %v", got["payload"])
	}
}

// captureSink is a sender.BatchSink fake recording every flushed payload,
// used to verify EncodeBatch hands the worker one combined payload per
// flush instead of one per event.
type captureSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureSink) Capabilities() sender.Capabilities {
	return sender.Capabilities{BatchCapable: true}
}

func (c *captureSink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payloads...)
	return nil
}

func TestEncoder_EncodeBatchProducesOneCombinedArray(t *testing.T) {
	sink := &captureSink{}
	size := 2
	cfg := sender.Config{Name: "jsonenc-batch", BatchSize: &size, Workers: 1, FlushInterval: 10 * time.Second}
	s, err := sender.New(cfg, sink, Encoder{})
	if err != nil {
		t.Fatalf("sender.New: %v", err)
	}

	queue := event.NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		e := event.New("app-1", "page_view", []byte(fmt.Sprintf(`{"n":%d}`, i)), func(bool, string) { wg.Done() })
		if err := queue.Put(ctx, e); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events did not complete in time")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.payloads) != 1 {
		t.Fatalf("flushed payload count = %d, want 1 (one combined EncodeBatch payload)", len(sink.payloads))
	}
	var envs []map[string]any
	if err := json.Unmarshal(sink.payloads[0], &envs); err != nil {
		t.Fatalf("unmarshal combined payload as array: %v", err)
	}
	if len(envs) != 2 {
		t.Errorf("combined payload has %d events, want 2", len(envs))
	}
}
