package audit

import (
	"encoding/json"
	"time"
)

// Event is one journaled webhook delivery.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; deliveries without one never reach the journal.
// - Journaling is best-effort; a failed append never fails the delivery.
//
// Storage (Postgres): table webhook_events, INSERT-only, indexed on
// (call_id, received_at).
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Type is the provider event name (call_started, call_ended, ...).
	Type string `json:"event" db:"event_type"`

	// Payload is the verified delivery body as received.
	Payload json.RawMessage `json:"payload,omitempty" db:"payload"`

	ReceivedAt time.Time `json:"received_at" db:"received_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
