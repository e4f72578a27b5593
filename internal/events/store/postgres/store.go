// Package postgres persists the event trail in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"veris/internal/events"
	"veris/pkg/domain"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the events table if it is missing. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS registry_events (
			id         UUID PRIMARY KEY,
			kind       TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			identifier BYTEA NOT NULL,
			actor      BYTEA NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			client_ip  TEXT NOT NULL DEFAULT '',
			device     TEXT NOT NULL DEFAULT '',
			payload    JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS registry_events_identifier_ts_idx
			ON registry_events (identifier, ts);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure events schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec events.Record) error {
	const query = `
		INSERT INTO registry_events (id, kind, ts, identifier, actor, request_id, client_ip, device, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(), string(rec.Kind), rec.Timestamp, rec.Identifier, rec.Actor,
		rec.RequestID, rec.ClientIP, rec.Device, []byte(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListByIdentity(ctx context.Context, id domain.Identifier) ([]events.Record, error) {
	const query = `
		SELECT kind, ts, identifier, actor, request_id, client_ip, device, payload
		FROM registry_events
		WHERE identifier = $1
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByKinds returns the trail for an identity restricted to the given event
// kinds, oldest first.
func (s *Store) ListByKinds(ctx context.Context, id domain.Identifier, kinds []events.Kind) ([]events.Record, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	const query = `
		SELECT kind, ts, identifier, actor, request_id, client_ip, device, payload
		FROM registry_events
		WHERE identifier = $1 AND kind = ANY($2)
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, id, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list events by kind: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]events.Record, error) {
	var out []events.Record
	for rows.Next() {
		var rec events.Record
		var kind string
		var payload []byte
		if err := rows.Scan(&kind, &rec.Timestamp, &rec.Identifier, &rec.Actor,
			&rec.RequestID, &rec.ClientIP, &rec.Device, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Kind = events.Kind(kind)
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
