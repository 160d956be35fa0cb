package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-relay/internal/calls"
	"voice-relay/internal/retell"
	"voice-relay/pkg/logger"
)

// Event names the provider sends. The set is open: anything else still gets
// the bookkeeping update.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

var (
	ErrMalformedPayload = errors.New("webhooks: malformed payload")
	ErrMissingCallID    = errors.New("webhooks: missing call_id in webhook payload")
)

// Event is one webhook delivery: {"event": "...", "call": {...}}.
type Event struct {
	Event string
	Call  retell.Call
	// Timestamp is the delivery time in unix ms, nil when absent or not
	// usable.
	Timestamp *int64

	// Raw is the full delivery body, stored as the call's webhook_data and
	// journaled.
	Raw []byte
}

// ParseEvent decodes a raw webhook body and checks it names a call.
//
// Only a body that isn't a JSON object is malformed. Envelope and call
// fields with unexpected types are dropped (see retell.Call.Skipped) so the
// delivery still gets its bookkeeping.
func ParseEvent(body []byte) (Event, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := Event{
		Event:     eventName(env["event"]),
		Timestamp: eventTime(env["timestamp"]),
		Raw:       body,
	}
	if raw, ok := env["call"]; ok {
		if err := json.Unmarshal(raw, &ev.Call); err != nil {
			// Not an object, so there is no call id to apply it to.
			ev.Call = retell.Call{Raw: raw}
		}
	}
	if ev.Call.CallID == "" {
		return Event{}, ErrMissingCallID
	}
	return ev, nil
}

func eventName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// eventTime accepts unix ms as a number or numeric string, or an RFC 3339
// string. Non-positive values count as absent.
func eventTime(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var ms int64
	var n json.Number
	var s string
	switch {
	case json.Unmarshal(raw, &n) == nil:
		ms = numberMillis(n)
	case json.Unmarshal(raw, &s) == nil:
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ms = t.UnixMilli()
		} else {
			ms = numberMillis(json.Number(s))
		}
	}
	if ms <= 0 {
		return nil
	}
	return &ms
}

func numberMillis(n json.Number) int64 {
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// Journal records verified deliveries. Failures never fail the delivery.
type Journal interface {
	RecordDelivery(ctx context.Context, callID, eventType string, payload []byte, receivedAt time.Time) error
}

// Dispatcher applies webhook events to the call store.
type Dispatcher struct {
	store   calls.Store
	journal Journal
	log     *slog.Logger
	now     func() time.Time
}

func NewDispatcher(store calls.Store, journal Journal, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: store, journal: journal, log: log, now: time.Now}
}

// Dispatch applies ev to the store. The typed field subset and the
// bookkeeping fields go in as a single merge, so a delivery is never
// half-applied from another request's point of view.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	callID := ev.Call.CallID
	if callID == "" {
		return ErrMissingCallID
	}

	u := fieldsFor(ev)

	received := d.now().UnixMilli()
	if ev.Timestamp != nil && *ev.Timestamp > 0 {
		received = *ev.Timestamp
	}
	u.LastEvent = calls.Ptr(ev.Event)
	u.WebhookData = json.RawMessage(ev.Raw)
	if u.WebhookData == nil {
		u.WebhookData = ev.Call.Raw
	}
	u.LastWebhookReceived = &received

	rec := d.store.Merge(callID, u)
	log := logger.From(ctx, d.log)
	if len(ev.Call.Skipped) > 0 {
		log.Warn("webhook call fields had unexpected types", "call_id", callID, "event", ev.Event, "fields", ev.Call.Skipped)
	}
	log.Info("webhook applied", "call_id", callID, "event", ev.Event, "status", rec.Status)

	if d.journal != nil {
		if err := d.journal.RecordDelivery(ctx, callID, ev.Event, ev.Raw, time.UnixMilli(received).UTC()); err != nil {
			log.Warn("webhook journal append failed", "call_id", callID, "event", ev.Event, "err", err)
		}
	}
	return nil
}

// fieldsFor picks the fields each known event carries.
func fieldsFor(ev Event) calls.Update {
	c := ev.Call
	switch ev.Event {
	case EventCallStarted:
		return calls.Update{
			Status:         calls.Ptr(calls.StatusOngoing),
			StartTimestamp: c.StartTimestamp,
			Transcript:     c.Transcript,
			AgentID:        c.AgentID,
			AgentName:      c.AgentName,
			FromNumber:     c.FromNumber,
			ToNumber:       c.ToNumber,
			Direction:      c.Direction,
		}
	case EventCallEnded:
		return calls.Update{
			Status:                            calls.Ptr(calls.StatusEnded),
			EndTimestamp:                      c.EndTimestamp,
			DurationMs:                        c.DurationMs,
			DisconnectionReason:               c.DisconnectionReason,
			RecordingURL:                      c.RecordingURL,
			RecordingMultiChannelURL:          c.RecordingMultiChannelURL,
			ScrubbedRecordingURL:              c.ScrubbedRecordingURL,
			ScrubbedRecordingMultiChannelURL:  c.ScrubbedRecordingMultiChannelURL,
			PublicLogURL:                      c.PublicLogURL,
			KnowledgeBaseRetrievedContentsURL: c.KnowledgeBaseRetrievedContentsURL,
			Transcript:                        c.Transcript,
			TranscriptObject:                  c.TranscriptObject,
			TranscriptWithToolCalls:           c.TranscriptWithToolCalls,
			Latency:                           c.Latency,
			Cost:                              c.CallCost,
			TokenUsage:                        c.LLMTokenUsage,
			DynamicVariables:                  c.RetellLLMDynamicVariables,
			CollectedDynamicVariables:         c.CollectedDynamicVariables,
		}
	case EventCallAnalyzed:
		analysis := c.CallAnalysis
		if analysis == nil {
			analysis = &calls.Analysis{}
		}
		return calls.Update{
			Analysis:                analysis,
			Transcript:              c.Transcript,
			TranscriptObject:        c.TranscriptObject,
			TranscriptWithToolCalls: c.TranscriptWithToolCalls,
			Latency:                 c.Latency,
			Cost:                    c.CallCost,
			TokenUsage:              c.LLMTokenUsage,
		}
	default:
		return calls.Update{}
	}
}
