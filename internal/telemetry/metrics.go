package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments shared across sender instances and
// the concrete sinks. Instruments are created once at startup.
type Metrics struct {
	// Sender core metrics
	ActiveBatches  otelmetric.Int64UpDownCounter
	BatchSize      otelmetric.Int64Histogram
	FlushDuration  otelmetric.Float64Histogram
	FlushTotal     otelmetric.Int64Counter
	EventsSent     otelmetric.Int64Counter
	EventsAccepted otelmetric.Int64Counter
	FailedSend     otelmetric.Int64Counter
	SenderErrors   otelmetric.Int64Counter

	// NATS sink metrics
	NATSMessagesProcessed otelmetric.Int64Counter
	NATSAckLatency        otelmetric.Float64Histogram

	// Warehouse (S3/Parquet) sink metrics
	S3FilesWritten otelmetric.Int64Counter
	S3FileSize     otelmetric.Int64Histogram

	// Deduplication filter metrics
	DedupDropped otelmetric.Int64Counter

	// DLQ spool sink metrics
	DLQDepth otelmetric.Int64UpDownCounter

	// Webhook sink metrics
	WebhookSuccess otelmetric.Int64Counter
	WebhookFailure otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.ActiveBatches, err = meter.Int64UpDownCounter(
		"sender.batches.active",
		otelmetric.WithDescription("Batches currently open across all senders"),
	)
	if err != nil {
		return nil, err
	}

	m.BatchSize, err = meter.Int64Histogram(
		"sender.batch.size",
		otelmetric.WithDescription("Batch sizes at flush"),
	)
	if err != nil {
		return nil, err
	}

	m.FlushDuration, err = meter.Float64Histogram(
		"sender.flush.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Batch flush duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.FlushTotal, err = meter.Int64Counter(
		"sender.flush.total",
		otelmetric.WithDescription("Batch flushes, labeled by trigger (size, interval)"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsAccepted, err = meter.Int64Counter(
		"sender.events.accepted",
		otelmetric.WithDescription("Events accepted by the feeder"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsSent, err = meter.Int64Counter(
		"sender.events.sent",
		otelmetric.WithDescription("Events delivered successfully"),
	)
	if err != nil {
		return nil, err
	}

	m.FailedSend, err = meter.Int64Counter(
		"sender.events.failed",
		otelmetric.WithDescription("Events that failed delivery"),
	)
	if err != nil {
		return nil, err
	}

	m.SenderErrors, err = meter.Int64Counter(
		"sender.errors",
		otelmetric.WithDescription("Sender errors, labeled by message"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSMessagesProcessed, err = meter.Int64Counter(
		"nats.messages.processed",
		otelmetric.WithDescription("NATS messages published"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSAckLatency, err = meter.Float64Histogram(
		"nats.ack.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("NATS ACK latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.S3FilesWritten, err = meter.Int64Counter(
		"s3.files.written",
		otelmetric.WithDescription("S3 objects written"),
	)
	if err != nil {
		return nil, err
	}

	m.S3FileSize, err = meter.Int64Histogram(
		"s3.file.size",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("S3 object sizes in bytes"),
	)
	if err != nil {
		return nil, err
	}

	m.DedupDropped, err = meter.Int64Counter(
		"dedup.dropped",
		otelmetric.WithDescription("Events dropped as duplicates"),
	)
	if err != nil {
		return nil, err
	}

	m.DLQDepth, err = meter.Int64UpDownCounter(
		"dlq.depth",
		otelmetric.WithDescription("Dead-letter spool depth"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhookSuccess, err = meter.Int64Counter(
		"webhook.success",
		otelmetric.WithDescription("Webhook deliveries successful"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhookFailure, err = meter.Int64Counter(
		"webhook.failure",
		otelmetric.WithDescription("Webhook deliveries failed"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// Reporter adapts Metrics to the sender.Reporter contract for a single
// sender instance, labeling every instrument with that sender's name.
type Reporter struct {
	metrics *Metrics
	name    string
}

// NewReporter builds a sender.Reporter-compatible adapter labeled with name.
func NewReporter(metrics *Metrics, name string) *Reporter {
	return &Reporter{metrics: metrics, name: name}
}

func (r *Reporter) attrs() otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("sender", r.name))
}

func (r *Reporter) ObserveBatchSize(n int) {
	r.metrics.BatchSize.Record(context.Background(), int64(n), r.attrs())
}

func (r *Reporter) IncEventsAccepted(n int) {
	r.metrics.EventsAccepted.Add(context.Background(), int64(n), r.attrs())
}

func (r *Reporter) IncEventsDelivered(n int) {
	r.metrics.EventsSent.Add(context.Background(), int64(n), r.attrs())
}

func (r *Reporter) IncEventsFailed(n int) {
	r.metrics.FailedSend.Add(context.Background(), int64(n), r.attrs())
}

// IncDropped records events a Filter discarded before reaching a sink (e.g.
// the dedup filter's bloom-filter hits), backed by the DedupDropped
// instrument.
func (r *Reporter) IncDropped(n int) {
	r.metrics.DedupDropped.Add(context.Background(), int64(n), r.attrs())
}

func (r *Reporter) IncFlush(trigger string) {
	r.metrics.FlushTotal.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("sender", r.name),
		attribute.String("trigger", trigger),
	))
}

func (r *Reporter) ObserveFlushLatency(seconds float64) {
	r.metrics.FlushDuration.Record(context.Background(), seconds*1000, r.attrs())
}

func (r *Reporter) ReportError(message string) {
	r.metrics.SenderErrors.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("sender", r.name),
		attribute.String("message", message),
	))
}
