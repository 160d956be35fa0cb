package retell

import (
	"encoding/json"

	"voice-relay/internal/calls"
	"voice-relay/pkg/utils"
)

// Call is the provider's call object as returned by get-call, list-calls,
// create-phone-call and carried in webhook events.
//
// Optional scalars are pointers so "absent" and "zero" stay distinguishable;
// only present fields make it into a store update. Raw keeps the original
// bytes so provider extensions we don't model survive.
type Call struct {
	CallID     string  `json:"call_id"`
	CallType   *string `json:"call_type,omitempty"`
	CallStatus *string `json:"call_status,omitempty"`
	Direction  *string `json:"direction,omitempty"`
	FromNumber *string `json:"from_number,omitempty"`
	ToNumber   *string `json:"to_number,omitempty"`
	AgentID    *string `json:"agent_id,omitempty"`
	AgentName  *string `json:"agent_name,omitempty"`

	StartTimestamp      *int64  `json:"start_timestamp,omitempty"`
	EndTimestamp        *int64  `json:"end_timestamp,omitempty"`
	DurationMs          *int64  `json:"duration_ms,omitempty"`
	DisconnectionReason *string `json:"disconnection_reason,omitempty"`

	RecordingURL                      *string `json:"recording_url,omitempty"`
	RecordingMultiChannelURL          *string `json:"recording_multi_channel_url,omitempty"`
	ScrubbedRecordingURL              *string `json:"scrubbed_recording_url,omitempty"`
	ScrubbedRecordingMultiChannelURL  *string `json:"scrubbed_recording_multi_channel_url,omitempty"`
	PublicLogURL                      *string `json:"public_log_url,omitempty"`
	KnowledgeBaseRetrievedContentsURL *string `json:"knowledge_base_retrieved_contents_url,omitempty"`

	Latency       calls.Latency     `json:"latency,omitempty"`
	CallCost      *calls.Cost       `json:"call_cost,omitempty"`
	LLMTokenUsage *calls.TokenUsage `json:"llm_token_usage,omitempty"`

	Transcript              *string                 `json:"transcript,omitempty"`
	TranscriptObject        []calls.TranscriptEntry `json:"transcript_object,omitempty"`
	TranscriptWithToolCalls []calls.TranscriptEntry `json:"transcript_with_tool_calls,omitempty"`

	RetellLLMDynamicVariables map[string]any `json:"retell_llm_dynamic_variables,omitempty"`
	CollectedDynamicVariables map[string]any `json:"collected_dynamic_variables,omitempty"`

	CallAnalysis *calls.Analysis `json:"call_analysis,omitempty"`

	Raw json.RawMessage `json:"-"`
	// Skipped lists top-level fields whose value had a type we couldn't
	// decode. They are left unset; Raw still has them.
	Skipped []string `json:"-"`
}

func (c *Call) UnmarshalJSON(b []byte) error {
	type plain Call
	var p plain
	skipped, err := utils.DecodeJSONFields(b, &p)
	if err != nil {
		return err
	}
	*c = Call(p)
	c.Raw = append(json.RawMessage(nil), b...)
	c.Skipped = skipped
	return nil
}

// ToUpdate converts every field present in the payload into a store update,
// including status and analysis. The raw payload is kept as provider data.
func (c Call) ToUpdate() calls.Update {
	return calls.Update{
		Status:     c.CallStatus,
		Direction:  c.Direction,
		FromNumber: c.FromNumber,
		ToNumber:   c.ToNumber,
		AgentID:    c.AgentID,
		AgentName:  c.AgentName,

		StartTimestamp:      c.StartTimestamp,
		EndTimestamp:        c.EndTimestamp,
		DurationMs:          c.DurationMs,
		DisconnectionReason: c.DisconnectionReason,

		RecordingURL:                      c.RecordingURL,
		RecordingMultiChannelURL:          c.RecordingMultiChannelURL,
		ScrubbedRecordingURL:              c.ScrubbedRecordingURL,
		ScrubbedRecordingMultiChannelURL:  c.ScrubbedRecordingMultiChannelURL,
		PublicLogURL:                      c.PublicLogURL,
		KnowledgeBaseRetrievedContentsURL: c.KnowledgeBaseRetrievedContentsURL,

		Latency:    c.Latency,
		Cost:       c.CallCost,
		TokenUsage: c.LLMTokenUsage,

		Transcript:              c.Transcript,
		TranscriptObject:        c.TranscriptObject,
		TranscriptWithToolCalls: c.TranscriptWithToolCalls,

		DynamicVariables:          c.RetellLLMDynamicVariables,
		CollectedDynamicVariables: c.CollectedDynamicVariables,

		Analysis: c.CallAnalysis,

		ProviderData: c.Raw,
	}
}

// HasRecording reports whether the payload carries any recording URL.
func (c Call) HasRecording() bool {
	for _, u := range []*string{c.RecordingURL, c.RecordingMultiChannelURL, c.ScrubbedRecordingURL, c.ScrubbedRecordingMultiChannelURL} {
		if u != nil && *u != "" {
			return true
		}
	}
	return false
}
