package reporting

import (
	"context"
	"errors"

	"voice-relay/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source is anything that can snapshot the known calls. calls.MemoryStore
// satisfies it.
type Source interface {
	List() []calls.Record
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return CallsSummary{}, errors.New("reporting: source not configured")
	}
	if err := ctx.Err(); err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		ByStatus:             map[string]int{},
		DisconnectionReasons: map[string]int{},
	}
	var durationMs, withDuration int64
	for _, r := range s.src.List() {
		if !req.Range.contains(r.CreatedAt) {
			continue
		}
		if req.AgentID != "" && r.AgentID != req.AgentID {
			continue
		}

		out.TotalCalls++
		status := r.Status
		if status == "" {
			status = calls.StatusUnknown
		}
		out.ByStatus[status]++
		switch status {
		case calls.StatusCreated:
			out.CreatedCalls++
		case calls.StatusOngoing:
			out.OngoingCalls++
		case calls.StatusEnded:
			out.EndedCalls++
		}

		if r.DurationMs != nil {
			durationMs += *r.DurationMs
			withDuration++
		}
		if r.HasRecording() {
			out.RecordedCalls++
		}
		if r.Analysis != nil {
			out.AnalyzedCalls++
			if r.Analysis.CallSuccessful != nil && *r.Analysis.CallSuccessful {
				out.SuccessfulCalls++
			}
		}
		if r.Cost != nil && r.Cost.CombinedCost != nil {
			out.TotalCombinedCost += *r.Cost.CombinedCost
		}
		if r.DisconnectionReason != "" {
			out.DisconnectionReasons[r.DisconnectionReason]++
		}
	}

	out.TotalDurationSeconds = durationMs / 1000
	if withDuration > 0 {
		out.AverageDurationSeconds = durationMs / withDuration / 1000
	}
	return out, nil
}
