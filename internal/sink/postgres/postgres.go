// Package postgres implements a batch-capable sender.Sink that bulk-inserts
// encoded payloads into a PostgreSQL table inside a single transaction.
// Grounded on internal/reaction/db/client.go's connection setup and
// internal/reaction/db/deliveries.go's CreateBatch transactional insert
// pattern.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/SebastienMelki/loghub/internal/sender"
)

// ErrConnection indicates a database connection error.
var ErrConnection = errors.New("postgres sink: database connection error")

// Config holds PostgreSQL connection settings and the target table.
type Config struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"loghub"`
	Password        string        `env:"PASSWORD" envDefault:"loghub"`
	Name            string        `env:"NAME" envDefault:"loghub"`
	SSLMode         string        `env:"SSL_MODE" envDefault:"disable"`
	Table           string        `env:"TABLE" envDefault:"events"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// Sink bulk-inserts each flushed batch into a PostgreSQL table, one row per
// payload, inside a single transaction.
type Sink struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "postgres_sink")

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	logger.Info("connected to postgres", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)

	return &Sink{db: db, table: cfg.Table, logger: logger}, nil
}

// Capabilities declares batch-only support: every write goes through one
// transaction, so there is no cheaper per-event path worth offering.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{BatchCapable: true, BatchOnly: true}
}

// FlushBatch inserts every payload as one row in a single transaction,
// rolling back entirely on any failure.
func (s *Sink) FlushBatch(ctx context.Context, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres sink: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (payload, received_at) VALUES ($1, $2)`, s.table)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres sink: prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, payload := range payloads {
		if _, err := stmt.ExecContext(ctx, payload, now); err != nil {
			return fmt.Errorf("postgres sink: insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres sink: commit transaction: %w", err)
	}

	s.logger.Debug("batch inserted", "rows", len(payloads), "table", s.table)
	return nil
}

// Stop closes the connection pool, implementing sender.Stopper.
func (s *Sink) Stop(ctx context.Context) error {
	return s.db.Close()
}
