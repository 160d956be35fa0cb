package calls

import (
	"sort"
	"sync"
	"time"
)

// Store is the call state contract shared by reconciliation and webhook
// dispatch. Each Merge is atomic for its call; nothing orders merges across
// calls, and concurrent merges on one call resolve last-write-wins per field.
type Store interface {
	Merge(callID string, u Update) Record
	Get(callID string) (Record, bool)
	SetStatus(callID, status string) Record
	SetAnalysis(callID string, a Analysis) Record
	List() []Record
}

// MemoryStore keeps records for the lifetime of the process. It never evicts,
// so memory grows with the number of distinct calls seen.
type MemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*Record
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]*Record{}, clock: time.Now}
}

// Merge applies u on top of the record for callID, creating it if needed,
// and returns a snapshot of the result.
func (s *MemoryStore) Merge(callID string, u Update) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	rec, ok := s.calls[callID]
	if !ok {
		rec = &Record{CallID: callID, CreatedAt: now}
		s.calls[callID] = rec
	}
	u.applyTo(rec)
	if now.Before(rec.UpdatedAt) {
		// wall clock stepped back; keep updated_at non-decreasing
		now = rec.UpdatedAt
	}
	rec.UpdatedAt = now
	return rec.clone()
}

func (s *MemoryStore) Get(callID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.calls[callID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

func (s *MemoryStore) SetStatus(callID, status string) Record {
	return s.Merge(callID, Update{Status: &status})
}

func (s *MemoryStore) SetAnalysis(callID string, a Analysis) Record {
	return s.Merge(callID, Update{Analysis: &a})
}

// List returns snapshots of every record, most recently updated first.
func (s *MemoryStore) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.calls))
	for _, rec := range s.calls {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// clone copies the top-level containers so callers can't mutate stored state.
// Nested sub-records are replaced wholesale on merge, never edited in place,
// so sharing them is safe.
func (r *Record) clone() Record {
	out := *r
	if r.TranscriptObject != nil {
		out.TranscriptObject = append([]TranscriptEntry(nil), r.TranscriptObject...)
	}
	if r.TranscriptWithToolCalls != nil {
		out.TranscriptWithToolCalls = append([]TranscriptEntry(nil), r.TranscriptWithToolCalls...)
	}
	if r.DynamicVariables != nil {
		out.DynamicVariables = copyMap(r.DynamicVariables)
	}
	if r.CollectedDynamicVariables != nil {
		out.CollectedDynamicVariables = copyMap(r.CollectedDynamicVariables)
	}
	if r.Latency != nil {
		out.Latency = make(Latency, len(r.Latency))
		for k, v := range r.Latency {
			out.Latency[k] = v
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
