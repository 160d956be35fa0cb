package calls

import (
	"encoding/json"
	"time"

	"voice-relay/pkg/utils"
)

// Record is the locally held view of one provider call.
//
// Invariants:
// - CallID is set on first write and never changes.
// - UpdatedAt is refreshed on every mutation.
// - Status only changes when an Update explicitly carries one.
//
// Records live for the lifetime of the process; nothing expires them.
type Record struct {
	CallID string `json:"call_id"`
	Status string `json:"call_status"`

	Direction  string `json:"direction,omitempty"`
	FromNumber string `json:"from_number,omitempty"`
	ToNumber   string `json:"to_number,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	AgentName  string `json:"agent_name,omitempty"`

	// Timestamps are epoch milliseconds as reported by the provider.
	StartTimestamp      *int64 `json:"start_timestamp,omitempty"`
	EndTimestamp        *int64 `json:"end_timestamp,omitempty"`
	DurationMs          *int64 `json:"duration_ms,omitempty"`
	DisconnectionReason string `json:"disconnection_reason,omitempty"`

	RecordingURL                      string `json:"recording_url,omitempty"`
	RecordingMultiChannelURL          string `json:"recording_multi_channel_url,omitempty"`
	ScrubbedRecordingURL              string `json:"scrubbed_recording_url,omitempty"`
	ScrubbedRecordingMultiChannelURL  string `json:"scrubbed_recording_multi_channel_url,omitempty"`
	PublicLogURL                      string `json:"public_log_url,omitempty"`
	KnowledgeBaseRetrievedContentsURL string `json:"knowledge_base_retrieved_contents_url,omitempty"`

	Latency    Latency     `json:"latency,omitempty"`
	Cost       *Cost       `json:"call_cost,omitempty"`
	TokenUsage *TokenUsage `json:"llm_token_usage,omitempty"`

	Transcript              string            `json:"transcript,omitempty"`
	TranscriptObject        []TranscriptEntry `json:"transcript_object,omitempty"`
	TranscriptWithToolCalls []TranscriptEntry `json:"transcript_with_tool_calls,omitempty"`

	DynamicVariables          map[string]any `json:"retell_llm_dynamic_variables,omitempty"`
	CollectedDynamicVariables map[string]any `json:"collected_dynamic_variables,omitempty"`

	Analysis *Analysis `json:"call_analysis,omitempty"`

	// Webhook bookkeeping.
	LastEvent           string          `json:"last_event,omitempty"`
	WebhookData         json.RawMessage `json:"webhook_data,omitempty"`
	LastWebhookReceived *int64          `json:"last_webhook_received,omitempty"`

	// ProviderData is the raw payload of the last create or fetch response.
	ProviderData json.RawMessage `json:"provider_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRecording reports whether any recording variant is known.
func (r Record) HasRecording() bool {
	return r.RecordingURL != "" || r.RecordingMultiChannelURL != "" ||
		r.ScrubbedRecordingURL != "" || r.ScrubbedRecordingMultiChannelURL != ""
}

// Status values set by this service. Provider-reported values (registered,
// not_connected, error, ...) pass through untouched.
const (
	StatusCreated = "created"
	StatusOngoing = "ongoing"
	StatusEnded   = "ended"
	StatusUnknown = "unknown"
)

// Latency maps a pipeline stage to its metrics. The stage set is open; the
// provider adds stages over time.
type Latency map[string]LatencyMetrics

type LatencyMetrics struct {
	P50    *float64  `json:"p50,omitempty"`
	P90    *float64  `json:"p90,omitempty"`
	P95    *float64  `json:"p95,omitempty"`
	P99    *float64  `json:"p99,omitempty"`
	Max    *float64  `json:"max,omitempty"`
	Min    *float64  `json:"min,omitempty"`
	Num    *int      `json:"num,omitempty"`
	Values []float64 `json:"values,omitempty"`
}

type Cost struct {
	ProductCosts           []ProductCost `json:"product_costs,omitempty"`
	TotalDurationSeconds   *float64      `json:"total_duration_seconds,omitempty"`
	TotalDurationUnitPrice *float64      `json:"total_duration_unit_price,omitempty"`
	CombinedCost           *float64      `json:"combined_cost,omitempty"`
}

type ProductCost struct {
	Product   string   `json:"product"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
}

type TokenUsage struct {
	Values      []float64 `json:"values,omitempty"`
	Average     *float64  `json:"average,omitempty"`
	NumRequests *int      `json:"num_requests,omitempty"`
}

// Analysis is the post-call analysis produced by the provider.
type Analysis struct {
	CallSummary        string         `json:"call_summary,omitempty"`
	InVoicemail        *bool          `json:"in_voicemail,omitempty"`
	UserSentiment      string         `json:"user_sentiment,omitempty"`
	CallSuccessful     *bool          `json:"call_successful,omitempty"`
	CustomAnalysisData map[string]any `json:"custom_analysis_data,omitempty"`
}

// UnmarshalJSON drops fields with an unexpected type rather than the whole
// analysis.
func (a *Analysis) UnmarshalJSON(b []byte) error {
	type plain Analysis
	var p plain
	if _, err := utils.DecodeJSONFields(b, &p); err != nil {
		return err
	}
	*a = Analysis(p)
	return nil
}

// TranscriptEntry covers utterances as well as tool invocation and result
// entries; Role tells them apart.
type TranscriptEntry struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Words      []TranscriptWord `json:"words,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Arguments  json.RawMessage  `json:"arguments,omitempty"`
	Successful *bool            `json:"successful,omitempty"`
	Result     string           `json:"result,omitempty"`
	TimeSec    *float64         `json:"time_sec,omitempty"`
	Type       string           `json:"type,omitempty"`
}

type TranscriptWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
