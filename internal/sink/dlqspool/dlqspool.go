// Package dlqspool implements a synchronous sender.Sink that spools payloads
// a primary sink gave up on into a local SQLite database for later
// inspection or replay. Grounded structurally on
// sdk/mobile/internal/storage/{db,queue}.go's pure-Go SQLite access pattern
// and conceptually on internal/dlq/module.go's role as a dead-letter
// capture point.
package dlqspool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SebastienMelki/loghub/internal/sender"
	_ "modernc.org/sqlite"
)

// Sink writes every payload it's handed into a local "spooled" table. It
// never fails a send once the database write succeeds, by design: a DLQ
// spool is the last stop before an event is truly lost.
type Sink struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath in WAL mode and
// ensures the spool table exists.
func New(dbPath string) (*Sink, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dlqspool: database path must not be empty")
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dlqspool: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dlqspool: ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("dlqspool: run migrations: %w", err)
	}

	return &Sink{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS spooled_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload BLOB NOT NULL,
			spooled_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_spooled_events_spooled_at ON spooled_events(spooled_at);
	`)
	return err
}

// Capabilities declares sync-only support; the DLQ spool is always the
// final destination for a single already-failed event, never a batch.
func (s *Sink) Capabilities() sender.Capabilities {
	return sender.Capabilities{}
}

// SendSync writes payload to the spool table.
func (s *Sink) SendSync(ctx context.Context, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spooled_events (payload, spooled_at) VALUES (?, ?)`,
		payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("dlqspool: insert: %w", err)
	}
	return nil
}

// Depth returns the number of spooled events currently retained.
func (s *Sink) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spooled_events`).Scan(&n)
	return n, err
}

// Drain returns up to n spooled payloads (oldest first) without removing
// them; call Delete after a successful re-delivery.
func (s *Sink) Drain(ctx context.Context, n int) ([]SpooledEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, spooled_at FROM spooled_events ORDER BY spooled_at ASC, id ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("dlqspool: query: %w", err)
	}
	defer rows.Close()

	events := []SpooledEvent{}
	for rows.Next() {
		var e SpooledEvent
		if err := rows.Scan(&e.ID, &e.Payload, &e.SpooledAt); err != nil {
			return nil, fmt.Errorf("dlqspool: scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes spooled events by ID.
func (s *Sink) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM spooled_events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("dlqspool: delete %d: %w", id, err)
		}
	}
	return nil
}

// Stop closes the underlying database, implementing sender.Stopper.
func (s *Sink) Stop(ctx context.Context) error {
	return s.db.Close()
}

// SpooledEvent is one row in the spool table.
type SpooledEvent struct {
	ID        int64
	Payload   []byte
	SpooledAt int64
}
