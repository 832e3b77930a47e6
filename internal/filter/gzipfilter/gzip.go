// Package gzipfilter implements a sender.Filter that gzip-compresses
// already-encoded payloads before they reach a sink.
package gzipfilter

import (
	"bytes"
	"compress/gzip"
)

// Filter compresses payloads at the given gzip level. The zero value uses
// gzip.DefaultCompression.
type Filter struct {
	Level int
}

// New creates a Filter at the given compression level (gzip.BestSpeed
// through gzip.BestCompression).
func New(level int) *Filter {
	return &Filter{Level: level}
}

// Apply gzip-compresses payload.
func (f *Filter) Apply(payload []byte) ([]byte, error) {
	level := f.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
