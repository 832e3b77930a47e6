// Command loghub-agent pulls events from a NATS JetStream ingest stream and
// dispatches them through the sender core to a configurable destination
// sink, spooling undeliverable events to a local SQLite dead-letter store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SebastienMelki/loghub/internal/config"
	"github.com/SebastienMelki/loghub/internal/encoding/jsonenc"
	"github.com/SebastienMelki/loghub/internal/event"
	"github.com/SebastienMelki/loghub/internal/filter/dedupfilter"
	"github.com/SebastienMelki/loghub/internal/filter/gzipfilter"
	"github.com/SebastienMelki/loghub/internal/ingest"
	"github.com/SebastienMelki/loghub/internal/nats"
	"github.com/SebastienMelki/loghub/internal/retrypolicy"
	"github.com/SebastienMelki/loghub/internal/sender"
	"github.com/SebastienMelki/loghub/internal/sink/dlqspool"
	"github.com/SebastienMelki/loghub/internal/sink/httpbulk"
	natssink "github.com/SebastienMelki/loghub/internal/sink/nats"
	"github.com/SebastienMelki/loghub/internal/sink/postgres"
	"github.com/SebastienMelki/loghub/internal/sink/warehouse"
	"github.com/SebastienMelki/loghub/internal/sink/webhook"
	"github.com/SebastienMelki/loghub/internal/telemetry"
)

// Config holds all loghub-agent configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text).
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Sink selects the destination: http_bulk, nats, warehouse, webhook, postgres.
	Sink string `env:"SINK" envDefault:"http_bulk"`

	// QueueCapacity bounds the event.Queue between the ingest feed and the
	// sender core.
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"1000"`

	// GzipEnabled gzip-compresses every encoded payload before it reaches
	// the sink.
	GzipEnabled bool `env:"GZIP_ENABLED" envDefault:"false"`

	// DedupEnabled drops payloads identical to one already seen within the
	// configured window; the dedup key is the whole encoded payload.
	DedupEnabled  bool          `env:"DEDUP_ENABLED" envDefault:"false"`
	DedupWindow   time.Duration `env:"DEDUP_WINDOW" envDefault:"10m"`
	DedupCapacity uint          `env:"DEDUP_CAPACITY" envDefault:"1000000"`
	DedupFPRate   float64       `env:"DEDUP_FP_RATE" envDefault:"0.0001"`

	NATS      nats.Config      `envPrefix:""`
	Ingest    ingest.Config    `envPrefix:""`
	Sender    sender.Config    `envPrefix:"SENDER_"`
	HTTPBulk  httpbulk.Config  `envPrefix:""`
	Warehouse warehouse.Config `envPrefix:""`
	Webhook   webhook.Config   `envPrefix:""`
	Postgres  postgres.Config  `envPrefix:"PG_"`
	NATSSink  natssink.Config  `envPrefix:"OUT_"`

	// DLQSpoolPath is where undeliverable events are persisted.
	DLQSpoolPath string `env:"DLQ_SPOOL_PATH" envDefault:"./loghub-dlq.sqlite"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load[Config]()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting loghub agent", "sink", cfg.Sink, "nats_url", cfg.NATS.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// --- Telemetry ---
	telem, err := telemetry.New("loghub-agent")
	if err != nil {
		return fmt.Errorf("failed to create telemetry module: %w", err)
	}
	metrics, err := telemetry.NewMetrics(telem.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: telem.MetricsHandler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// --- Dead-letter spool ---
	spool, err := dlqspool.New(cfg.DLQSpoolPath)
	if err != nil {
		return fmt.Errorf("failed to open DLQ spool: %w", err)
	}

	onFailure := func(spoolCtx context.Context, payload []byte) {
		if err := spool.SendSync(spoolCtx, payload); err != nil {
			logger.Error("failed to spool undeliverable event", "error", err)
		}
	}

	// --- NATS connection and ingest feed ---
	natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	streamMgr := nats.NewStreamManager(natsClient.JetStream(), cfg.NATS.Stream, logger)
	if _, err := streamMgr.EnsureStream(ctx); err != nil {
		return err
	}

	queue := event.NewQueue(cfg.QueueCapacity)
	feed := ingest.New(natsClient.JetStream(), cfg.Ingest, queue, onFailure, logger)
	if err := feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingest feed: %w", err)
	}

	// --- Output sink ---
	outSink, stopOutSink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var opts []sender.Option
	opts = append(opts,
		sender.WithReporter(telemetry.NewReporter(metrics, "loghub-agent")),
		sender.WithLogger(logger),
	)
	if cfg.GzipEnabled {
		opts = append(opts, sender.WithFilters(gzipfilter.New(0)))
	}
	if cfg.DedupEnabled {
		dedup := dedupfilter.New(cfg.DedupWindow, cfg.DedupCapacity, cfg.DedupFPRate, func(payload []byte) string {
			return string(payload)
		})
		dedup.Start()
		defer dedup.Stop()
		opts = append(opts, sender.WithFilters(dedup))
	}

	mainSender, err := sender.New(cfg.Sender, outSink, jsonenc.Encoder{}, opts...)
	if err != nil {
		return fmt.Errorf("failed to construct sender: %w", err)
	}

	mainSender.Start(ctx, queue)

	logger.Info("loghub agent started", "mode", mainSender.Mode().String())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := feed.Stop(shutdownCtx); err != nil {
		logger.Error("ingest feed shutdown error", "error", err)
	}
	if err := mainSender.Stop(shutdownCtx); err != nil {
		logger.Error("sender shutdown error", "error", err)
	}
	if err := spool.Stop(shutdownCtx); err != nil {
		logger.Error("DLQ spool shutdown error", "error", err)
	}
	if stopOutSink != nil {
		if err := stopOutSink(shutdownCtx); err != nil {
			logger.Error("sink shutdown error", "error", err)
		}
	}
	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}
	if err := telem.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("loghub agent stopped")
	return nil
}

// buildSink constructs the configured output sink and returns its Stop
// hook, if it has one.
func buildSink(ctx context.Context, cfg Config, logger *slog.Logger) (sender.Sink, func(context.Context) error, error) {
	switch cfg.Sink {
	case "http_bulk":
		s := httpbulk.New(cfg.HTTPBulk, retrypolicy.DefaultRetry)
		return s, nil, nil
	case "nats":
		outClient, err := nats.NewClient(ctx, cfg.NATS, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect output NATS client: %w", err)
		}
		s := natssink.New(outClient.JetStream(), cfg.NATSSink.Subject, logger)
		return s, func(context.Context) error { outClient.Close(); return nil }, nil
	case "warehouse":
		s, err := warehouse.New(ctx, cfg.Warehouse, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to construct warehouse sink: %w", err)
		}
		return s, nil, nil
	case "webhook":
		s := webhook.New(cfg.Webhook, retrypolicy.DefaultRetry, logger)
		return s, nil, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to construct postgres sink: %w", err)
		}
		return s, s.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink kind %q", cfg.Sink)
	}
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
