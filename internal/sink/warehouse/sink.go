// Package warehouse implements a batch-only sender.Sink that writes
// encoded payloads as Parquet, partitioned by processing time, to S3 or an
// S3-compatible store (MinIO). Grounded on
// internal/warehouse/{s3,parquet,consumer}.go.
package warehouse

import (
	"context"
	"log/slog"

	"github.com/SebastienMelki/loghub/internal/sender"
)

// Sink writes each flushed batch as one Parquet object.
type Sink struct {
	s3     *s3Client
	writer *parquetWriter
	logger *slog.Logger
}

// New constructs a Sink, establishing the S3 client eagerly so startup
// fails fast on misconfiguration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := newS3Client(ctx, cfg.S3, logger)
	if err != nil {
		return nil, err
	}
	return &Sink{
		s3:     client,
		writer: newParquetWriter(cfg.Parquet),
		logger: logger.With("component", "warehouse_sink"),
	}, nil
}

// Capabilities declares this sink as batch-only: there is no meaningful
// per-event warehouse write.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{BatchCapable: true, BatchOnly: true}
}

// FlushBatch converts every payload to one or more rows (a combined
// EncodeBatch payload expands to many), writes one Parquet file, and
// uploads it under a time-partitioned key.
func (s *Sink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	now := nowFunc().UTC()
	rows := make([]EventRow, 0, len(payloads))
	for _, p := range payloads {
		rows = append(rows, rowsFromPayload(p, now)...)
	}

	data, err := s.writer.write(rows)
	if err != nil {
		return err
	}

	year, month, day := now.Date()
	key := s.s3.generateKey(year, int(month), day, now.Hour())
	if err := s.s3.upload(ctx, key, data); err != nil {
		return err
	}

	s.logger.Info("warehouse batch written", "key", key, "rows", len(rows), "bytes", len(data))
	return nil
}
