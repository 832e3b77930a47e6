package sender

import (
	"context"
	"time"
)

// Config is a Sender's immutable-after-start configuration. It is sourced
// from the process environment via github.com/caarlos0/env, following the
// teacher's env-tag config pattern (internal/observability config,
// sdk/mobile transport options), or constructed directly in tests.
type Config struct {
	// BatchSize enables batching when present and > 0. A nil BatchSize
	// with a sink that only declares Async/Sync keeps the Sender in that
	// mode regardless of Workers/FlushInterval.
	BatchSize *int `env:"BATCH_SIZE"`

	// Workers is the worker-pool size when batching. Clamped to at least
	// 1 by Config.normalize.
	Workers int `env:"WORKERS" envDefault:"2"`

	// FlushInterval bounds the maximum age of the current batch before
	// the scheduler forces a seal.
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`

	// QueueCapacityMultiplier multiplies Workers for the batch queue's
	// channel capacity.
	QueueCapacityMultiplier int `env:"QUEUE_CAPACITY_MULTIPLIER" envDefault:"8"`

	// Name labels this sender's metrics and log lines.
	Name string `env:"NAME"`

	// UnregisterHook, if set, is invoked once during Stop as a best-effort
	// management/monitoring-endpoint deregistration step; its error is
	// logged but never fails shutdown (SPEC_FULL.md §4.9 step 3). Not
	// sourced from the environment: callers inject it in code.
	UnregisterHook func(context.Context) error `env:"-"`
}

// normalize clamps Workers/QueueCapacityMultiplier to sane minimums and
// applies a sink's BatchOnly declaration, without mutating the caller's
// Config value.
func (c Config) normalize(caps Capabilities) Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueCapacityMultiplier < 1 {
		c.QueueCapacityMultiplier = 1
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if caps.BatchOnly {
		one := 1
		if c.BatchSize == nil || *c.BatchSize < 1 {
			c.BatchSize = &one
		}
	}
	return c
}

func (c Config) flushInterval() time.Duration {
	if c.FlushInterval <= 0 {
		return defaultFlushInterval
	}
	return c.FlushInterval
}

func (c Config) batchSize() int {
	if c.BatchSize == nil {
		return 0
	}
	return *c.BatchSize
}

func (c Config) batching() bool {
	return c.batchSize() > 0
}

func (c Config) queueCapacity() int {
	mult := c.QueueCapacityMultiplier
	if mult < 1 {
		mult = 1
	}
	return c.Workers * mult
}
