package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"voice-relay/internal/calls"
	"voice-relay/internal/retell"
	"voice-relay/pkg/logger"
)

var (
	ErrCallNotFound  = errors.New("relay: call not found")
	ErrNoCallID      = errors.New("relay: provider returned no call id")
	ErrInvalidNumber = errors.New("relay: to_number is required")
	ErrTooManyCalls  = errors.New("relay: outbound call limit reached")
)

// DefaultListLimit is how many provider calls ListCalls asks for when the
// caller doesn't say.
const DefaultListLimit = 100

// Provider is the subset of the Retell client the relay needs.
type Provider interface {
	CreatePhoneCall(ctx context.Context, toNumber string) (retell.Call, error)
	GetCall(ctx context.Context, callID string) (retell.Call, error)
	ListCalls(ctx context.Context, limit int) ([]retell.Call, error)
}

// CallCap limits concurrent outbound call creation.
type CallCap interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Options struct {
	Log *slog.Logger

	// CallCap is optional; nil means no limit.
	CallCap CallCap
}

// Service combines live provider data with the call store. Responses are
// always assembled from the store, so webhook-fed and poll-fed data share one
// shape and one set of merge rules.
type Service struct {
	provider Provider
	store    calls.Store
	cap      CallCap
	log      *slog.Logger
}

func NewService(provider Provider, store calls.Store, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{provider: provider, store: store, cap: opts.CallCap, log: log}
}

// View is the authoritative record returned for a status read. Stale is set
// when the live refresh failed and the record is whatever the store held.
type View struct {
	calls.Record
	Stale bool `json:"stale"`
}

// Summary is one row of the calls listing.
type Summary struct {
	CallID              string     `json:"call_id"`
	CallStatus          string     `json:"call_status"`
	ToNumber            string     `json:"to_number"`
	FromNumber          string     `json:"from_number"`
	AgentName           string     `json:"agent_name"`
	AgentID             string     `json:"agent_id"`
	Direction           string     `json:"direction"`
	StartTimestamp      *int64     `json:"start_timestamp"`
	EndTimestamp        *int64     `json:"end_timestamp"`
	DurationMs          *int64     `json:"duration_ms"`
	DisconnectionReason *string    `json:"disconnection_reason"`
	CreatedAt           *time.Time `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at"`
	HasAnalysis         bool       `json:"has_analysis"`
	HasRecording        bool       `json:"has_recording"`
	CallCost            *float64   `json:"call_cost"`
}

// CreateCall places an outbound call and seeds the store with status
// "created". The provider request runs detached from ctx cancellation: once
// a call may have been placed, it must be recorded.
func (s *Service) CreateCall(ctx context.Context, toNumber string) (string, error) {
	toNumber = strings.TrimSpace(toNumber)
	if toNumber == "" {
		return "", ErrInvalidNumber
	}
	ctx = context.WithoutCancel(ctx)
	log := logger.From(ctx, s.log)

	if s.cap != nil {
		ok, err := s.cap.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("relay: acquire call cap: %w", err)
		}
		if !ok {
			return "", ErrTooManyCalls
		}
		defer func() {
			if err := s.cap.Release(ctx); err != nil {
				log.Error("release call cap failed", "err", err)
			}
		}()
	}

	call, err := s.provider.CreatePhoneCall(ctx, toNumber)
	if err != nil {
		return "", err
	}
	if call.CallID == "" {
		return "", ErrNoCallID
	}

	u := call.ToUpdate()
	u.Status = calls.Ptr(calls.StatusCreated)
	u.ToNumber = &toNumber
	s.store.Merge(call.CallID, u)

	log.Info("call created", "call_id", call.CallID, "to", toNumber)
	return call.CallID, nil
}

// GetCall refreshes the stored record from the provider (best effort) and
// returns the store's view of it.
//
// A failed refresh is logged and swallowed; the read then serves whatever the
// store already holds. ErrCallNotFound means neither source knows the call.
func (s *Service) GetCall(ctx context.Context, callID string) (View, error) {
	stale := false
	log := logger.From(ctx, s.log)

	live, err := s.provider.GetCall(ctx, callID)
	if err != nil {
		stale = true
		log.Warn("live call refresh failed, using stored record",
			"call_id", callID, "kind", string(retell.KindOf(err)), "err", err)
	} else {
		if len(live.Skipped) > 0 {
			log.Warn("provider call fields had unexpected types", "call_id", callID, "fields", live.Skipped)
		}
		u := live.ToUpdate()
		analysis := u.Analysis
		u.Analysis = nil
		s.store.Merge(callID, u)
		if analysis != nil {
			s.store.SetAnalysis(callID, *analysis)
		}
	}

	rec, ok := s.store.Get(callID)
	if !ok {
		return View{}, ErrCallNotFound
	}
	return View{Record: rec, Stale: stale}, nil
}

// ListCalls returns the provider's most recent calls annotated with local
// store data, newest first by start time (falling back to end time).
func (s *Service) ListCalls(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	remote, err := s.provider.ListCalls(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(remote))
	for _, c := range remote {
		sum := Summary{
			CallID:              c.CallID,
			CallStatus:          valueOr(c.CallStatus, calls.StatusUnknown),
			ToNumber:            valueOr(c.ToNumber, ""),
			FromNumber:          valueOr(c.FromNumber, ""),
			AgentName:           valueOr(c.AgentName, ""),
			AgentID:             valueOr(c.AgentID, ""),
			Direction:           valueOr(c.Direction, ""),
			StartTimestamp:      c.StartTimestamp,
			EndTimestamp:        c.EndTimestamp,
			DurationMs:          c.DurationMs,
			DisconnectionReason: c.DisconnectionReason,
			HasAnalysis:         c.CallAnalysis != nil,
			HasRecording:        c.HasRecording(),
		}
		if c.CallCost != nil {
			sum.CallCost = c.CallCost.CombinedCost
		}
		if c.CallID != "" {
			if local, ok := s.store.Get(c.CallID); ok {
				sum.CreatedAt = &local.CreatedAt
				sum.UpdatedAt = &local.UpdatedAt
				sum.HasAnalysis = sum.HasAnalysis || local.Analysis != nil
			}
		}
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool { return sortKey(out[i]) > sortKey(out[j]) })
	return out, nil
}

func sortKey(s Summary) int64 {
	switch {
	case s.StartTimestamp != nil && *s.StartTimestamp != 0:
		return *s.StartTimestamp
	case s.EndTimestamp != nil:
		return *s.EndTimestamp
	default:
		return 0
	}
}

func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
