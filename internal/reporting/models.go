package reporting

import "time"

// TimeRange filters on record creation time. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// AgentID narrows the summary to one agent when set.
	AgentID string `json:"agent_id,omitempty"`
}

type CallsSummary struct {
	TotalCalls int            `json:"total_calls"`
	ByStatus   map[string]int `json:"by_status"`

	CreatedCalls int `json:"created_calls"`
	OngoingCalls int `json:"ongoing_calls"`
	EndedCalls   int `json:"ended_calls"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`

	RecordedCalls   int `json:"recorded_calls"`
	AnalyzedCalls   int `json:"analyzed_calls"`
	SuccessfulCalls int `json:"successful_calls"`

	// TotalCombinedCost sums the provider's combined_cost across calls that
	// report one.
	TotalCombinedCost float64 `json:"total_combined_cost"`

	DisconnectionReasons map[string]int `json:"disconnection_reasons"`
}
