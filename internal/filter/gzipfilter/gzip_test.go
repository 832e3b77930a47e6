package gzipfilter

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestFilter_ApplyRoundTrips(t *testing.T) {
	f := New(gzip.BestCompression)
	original := []byte(`{"id":"abc","payload":"some fairly repetitive repetitive repetitive data"}`)

	compressed, err := f.Apply(original)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if bytes.Equal(compressed, original) {
		t.Fatal("Apply returned input unchanged")
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read decompressed: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Errorf("round-tripped payload mismatch: got %q, want %q", decompressed, original)
	}
}

func TestFilter_ApplyZeroValueUsesDefaultLevel(t *testing.T) {
	var f Filter
	out, err := f.Apply([]byte("hello"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()
	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read decompressed: %v", err)
	}
	if string(decompressed) != "hello" {
		t.Errorf("decompressed = %q, want hello", decompressed)
	}
}
