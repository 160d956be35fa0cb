package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the webhook journal.
//
// It MUST be append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

// Service journals verified webhook deliveries.
//
// Callers should treat journaling as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent  = errors.New("audit: invalid event")
	ErrNotConfigured = errors.New("audit: repository not configured")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return ErrNotConfigured
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// RecordDelivery journals one webhook delivery. A payload that isn't valid
// JSON is stored as a JSON string so the column type holds.
func (s *Service) RecordDelivery(ctx context.Context, callID, eventType string, payload []byte, receivedAt time.Time) error {
	raw := json.RawMessage(payload)
	if len(payload) > 0 && !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		raw = quoted
	}
	return s.Append(ctx, Event{
		CallID:     callID,
		Type:       eventType,
		Payload:    raw,
		ReceivedAt: receivedAt,
	})
}

// History returns the journaled deliveries for one call, oldest first.
func (s *Service) History(ctx context.Context, callID string) ([]Event, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	return s.repo.ListByCall(ctx, callID)
}
