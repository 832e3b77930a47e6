package warehouse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// ErrNoRowsToWrite mirrors internal/warehouse/errors.go's sentinel.
var ErrNoRowsToWrite = errors.New("no rows to write")

// EventRow is the flattened structure for Parquet storage, trimmed from
// internal/warehouse/parquet.go's device-context-heavy schema down to the
// fields the sender core's generic wire envelope (internal/encoding/jsonenc)
// actually carries.
type EventRow struct {
	ID          string `parquet:"id,snappy"`
	AppID       string `parquet:"app_id,snappy,dict,optional"`
	EventType   string `parquet:"event_type,snappy,dict"`
	TimestampMS int64  `parquet:"timestamp_ms"`
	PayloadJSON string `parquet:"payload_json,snappy"`

	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
	Hour  int `parquet:"hour,dict"`
}

// wireEnvelope mirrors jsonenc's envelope shape for the fields the
// warehouse sink needs to partition and query by.
type wireEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	AppID     string          `json:"app_id"`
	Payload   json.RawMessage `json:"payload"`
}

// rowsFromPayload turns one FlushBatch payload into rows. jsonenc's
// EncodeBatch produces one JSON array covering the whole batch; its Encode
// (the per-event fallback, used when the sink's encoder doesn't implement
// sender.BatchEncoder) produces one JSON object per payload. Both shapes
// are accepted so the sink works either way.
func rowsFromPayload(payload []byte, partitionTime time.Time) []EventRow {
	var envs []wireEnvelope
	if err := json.Unmarshal(payload, &envs); err == nil {
		rows := make([]EventRow, 0, len(envs))
		for _, env := range envs {
			rows = append(rows, rowFromEnvelope(env, partitionTime))
		}
		return rows
	}

	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err == nil {
		return []EventRow{rowFromEnvelope(env, partitionTime)}
	}
	return []EventRow{rowFromEnvelope(wireEnvelope{}, partitionTime)}
}

func rowFromEnvelope(env wireEnvelope, partitionTime time.Time) EventRow {
	year, month, day := partitionTime.Date()
	row := EventRow{
		TimestampMS: partitionTime.UnixMilli(),
		Year:        year,
		Month:       int(month),
		Day:         day,
		Hour:        partitionTime.Hour(),
		PayloadJSON: "{}",
		ID:          env.ID,
		AppID:       env.AppID,
		EventType:   env.EventType,
	}
	if len(env.Payload) > 0 {
		row.PayloadJSON = string(env.Payload)
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.000Z07:00", env.Timestamp); err == nil {
		row.TimestampMS = ts.UnixMilli()
	}
	return row
}

// parquetWriter writes event rows to Parquet format. Grounded on
// internal/warehouse/parquet.go's ParquetWriter.
type parquetWriter struct {
	config ParquetConfig
}

func newParquetWriter(cfg ParquetConfig) *parquetWriter {
	return &parquetWriter{config: cfg}
}

func (w *parquetWriter) write(rows []EventRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRowsToWrite
	}

	var buf bytes.Buffer
	codec := w.compressionCodec()

	writer := parquet.NewGenericWriter[EventRow](&buf,
		parquet.Compression(codec),
		parquet.CreatedBy("loghub-warehouse-sink", "1.0.0", ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *parquetWriter) compressionCodec() compress.Codec {
	switch w.config.Compression {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
