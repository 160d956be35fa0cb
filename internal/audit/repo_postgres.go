package audit

import (
	"context"
	"database/sql"
	"fmt"

	"voice-relay/pkg/utils"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id          UUID PRIMARY KEY,
		call_id     TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		payload     JSONB,
		received_at TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS webhook_events_call_idx ON webhook_events (call_id, received_at)`,
}

// PostgresRepo stores the journal in Postgres through database/sql (pgx
// stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the journal table if it doesn't exist.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, schema...); err != nil {
		return fmt.Errorf("audit: create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, call_id, event_type, payload, received_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.CallID, e.Type, payload, e.ReceivedAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, event_type, payload, received_at, created_at
		 FROM webhook_events WHERE call_id = $1 ORDER BY received_at, created_at`, callID)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e       Event
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.Type, &payload, &e.ReceivedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
