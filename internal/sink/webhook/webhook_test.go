package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SebastienMelki/loghub/internal/event"
	"github.com/SebastienMelki/loghub/internal/sender"
)

type testRetry struct {
	maxRetries int
	delay      time.Duration
}

func (r *testRetry) NextDelay(attempt int) time.Duration {
	if attempt >= r.maxRetries {
		return 0
	}
	return r.delay
}

func (r *testRetry) MaxAttempts() int { return r.maxRetries }

var fastRetry = &testRetry{maxRetries: 3, delay: 5 * time.Millisecond}

// identityEncoder echoes an event's payload unchanged, mirroring the
// sender package's own test fixture, so the webhook receives exactly the
// bytes the test put in.
type identityEncoder struct{}

func (identityEncoder) Encode(e event.Event) ([]byte, error) { return e.Payload, nil }

// deliverOne wires sink behind a Sender (webhook only declares Async
// capability, so this drives it through ModeAsync exactly as production
// does) and returns the single event's terminal outcome.
func deliverOne(t *testing.T, sink *Sink, payload []byte) (bool, string) {
	t.Helper()
	s, err := sender.New(sender.Config{Name: "webhook-test"}, sink, identityEncoder{})
	if err != nil {
		t.Fatalf("sender.New: %v", err)
	}

	queue := event.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, queue)

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	var success bool
	var message string
	e := event.New("app", "kind", payload, func(ok bool, msg string) {
		mu.Lock()
		success, message = ok, msg
		mu.Unlock()
		wg.Done()
	})
	if err := queue.Put(ctx, e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event did not complete in time")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return success, message
}

func TestSink_DeliversSuccessfully(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, Headers: map[string]string{"X-Custom": "v1"}, AuthType: AuthNone}
	sink := New(cfg, fastRetry, nil)

	ok, _ := deliverOne(t, sink, []byte("payload"))
	if !ok {
		t.Error("expected success")
	}
	if gotHeader != "v1" {
		t.Errorf("X-Custom header = %q, want v1", gotHeader)
	}
}

func TestSink_HMACSignature(t *testing.T) {
	secret := "shh"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = append([]byte(nil), buf[:n]...)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, AuthType: AuthHMAC, HMACSecret: secret}
	sink := New(cfg, fastRetry, nil)

	payload := []byte(`{"event":"test"}`)
	ok, _ := deliverOne(t, sink, payload)
	if !ok {
		t.Fatal("expected success")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("X-Signature = %q, want %q", gotSig, want)
	}
	if string(gotBody) != string(payload) {
		t.Errorf("body = %q, want %q", gotBody, payload)
	}
}

func TestSink_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := New(Config{URL: srv.URL, AuthType: AuthNone}, fastRetry, nil)
	ok, _ := deliverOne(t, sink, []byte("x"))
	if !ok {
		t.Error("expected eventual success")
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSink_FailsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := New(Config{URL: srv.URL, AuthType: AuthNone}, fastRetry, nil)
	ok, message := deliverOne(t, sink, []byte("x"))
	if ok {
		t.Error("expected failure after exhausting retries")
	}
	if message == "" {
		t.Error("expected a non-empty failure message")
	}
}

func TestSink_Capabilities(t *testing.T) {
	sink := New(Config{URL: "http://example.invalid"}, fastRetry, nil)
	caps := sink.Capabilities()
	if !caps.Async || caps.BatchCapable {
		t.Errorf("Capabilities = %+v, want Async-only", caps)
	}
}
