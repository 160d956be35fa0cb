package calls

import "encoding/json"

// Update is a partial record. Nil fields are "not supplied" and leave the
// stored value alone; there is no way to clear a field through an Update.
type Update struct {
	Status *string

	Direction  *string
	FromNumber *string
	ToNumber   *string
	AgentID    *string
	AgentName  *string

	StartTimestamp      *int64
	EndTimestamp        *int64
	DurationMs          *int64
	DisconnectionReason *string

	RecordingURL                      *string
	RecordingMultiChannelURL          *string
	ScrubbedRecordingURL              *string
	ScrubbedRecordingMultiChannelURL  *string
	PublicLogURL                      *string
	KnowledgeBaseRetrievedContentsURL *string

	Latency    Latency
	Cost       *Cost
	TokenUsage *TokenUsage

	Transcript              *string
	TranscriptObject        []TranscriptEntry
	TranscriptWithToolCalls []TranscriptEntry

	DynamicVariables          map[string]any
	CollectedDynamicVariables map[string]any

	Analysis *Analysis

	LastEvent           *string
	WebhookData         json.RawMessage
	LastWebhookReceived *int64

	ProviderData json.RawMessage
}

// Ptr returns a pointer to v. Handy for building Updates.
func Ptr[T any](v T) *T { return &v }

func (u Update) applyTo(r *Record) {
	setString(&r.Status, u.Status)
	setString(&r.Direction, u.Direction)
	setString(&r.FromNumber, u.FromNumber)
	setString(&r.ToNumber, u.ToNumber)
	setString(&r.AgentID, u.AgentID)
	setString(&r.AgentName, u.AgentName)

	setInt(&r.StartTimestamp, u.StartTimestamp)
	setInt(&r.EndTimestamp, u.EndTimestamp)
	setInt(&r.DurationMs, u.DurationMs)
	setString(&r.DisconnectionReason, u.DisconnectionReason)

	setString(&r.RecordingURL, u.RecordingURL)
	setString(&r.RecordingMultiChannelURL, u.RecordingMultiChannelURL)
	setString(&r.ScrubbedRecordingURL, u.ScrubbedRecordingURL)
	setString(&r.ScrubbedRecordingMultiChannelURL, u.ScrubbedRecordingMultiChannelURL)
	setString(&r.PublicLogURL, u.PublicLogURL)
	setString(&r.KnowledgeBaseRetrievedContentsURL, u.KnowledgeBaseRetrievedContentsURL)

	if u.Latency != nil {
		r.Latency = u.Latency
	}
	if u.Cost != nil {
		r.Cost = u.Cost
	}
	if u.TokenUsage != nil {
		r.TokenUsage = u.TokenUsage
	}

	setString(&r.Transcript, u.Transcript)
	if u.TranscriptObject != nil {
		r.TranscriptObject = u.TranscriptObject
	}
	if u.TranscriptWithToolCalls != nil {
		r.TranscriptWithToolCalls = u.TranscriptWithToolCalls
	}
	if u.DynamicVariables != nil {
		r.DynamicVariables = u.DynamicVariables
	}
	if u.CollectedDynamicVariables != nil {
		r.CollectedDynamicVariables = u.CollectedDynamicVariables
	}
	if u.Analysis != nil {
		r.Analysis = u.Analysis
	}

	setString(&r.LastEvent, u.LastEvent)
	if u.WebhookData != nil {
		r.WebhookData = u.WebhookData
	}
	setInt(&r.LastWebhookReceived, u.LastWebhookReceived)
	if u.ProviderData != nil {
		r.ProviderData = u.ProviderData
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst **int64, v *int64) {
	if v != nil {
		n := *v
		*dst = &n
	}
}
