// Package postgres provides the durable audit archive. The table is
// append-only; rows are never updated or deleted.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"zkattend/internal/audit"
)

// Store implements audit.Store over PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the archive database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit archive: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertEvent = `
INSERT INTO audit_events (id, occurred_at, action, subject, event_id, decision, reason, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, insertEvent,
		uuid.New(),
		event.Timestamp,
		string(event.Action),
		event.Subject,
		event.EventID,
		event.Decision,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
