package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-relay/internal/audit"
	"voice-relay/internal/auth"
	"voice-relay/internal/calls"
	"voice-relay/internal/relay"
	"voice-relay/internal/reporting"
	"voice-relay/internal/retell"
	"voice-relay/internal/webhooks"
	"voice-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verifyKey = []byte("verify-key")

type fakeProvider struct {
	createID  string
	createErr error
	get       map[string]string
	getErr    error
	list      string
	listErr   error
}

func decode(raw string) retell.Call {
	var c retell.Call
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		panic(err)
	}
	return c
}

func (p *fakeProvider) CreatePhoneCall(_ context.Context, _ string) (retell.Call, error) {
	if p.createErr != nil {
		return retell.Call{}, p.createErr
	}
	if p.createID == "" {
		return decode(`{"call_status":"registered"}`), nil
	}
	return decode(`{"call_id":"` + p.createID + `"}`), nil
}

func (p *fakeProvider) GetCall(_ context.Context, callID string) (retell.Call, error) {
	if p.getErr != nil {
		return retell.Call{}, p.getErr
	}
	raw, ok := p.get[callID]
	if !ok {
		return retell.Call{}, &retell.Error{Kind: retell.KindRejected, StatusCode: http.StatusNotFound}
	}
	return decode(raw), nil
}

func (p *fakeProvider) ListCalls(_ context.Context, _ int) ([]retell.Call, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	var out []retell.Call
	if err := json.Unmarshal([]byte(p.list), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type keyVerifier []byte

func (k keyVerifier) VerifySignature(body []byte, sig string) bool {
	return retell.VerifySignature(k, body, sig)
}

type fixture struct {
	router  *gin.Engine
	store   *calls.MemoryStore
	journal *audit.MemoryRepo
}

func newFixture(t *testing.T, p *fakeProvider, allowUnsigned bool) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	store := calls.NewMemoryStore()
	repo := audit.NewMemoryRepo()
	journal := audit.NewService(repo)

	h := Handlers{
		Relay:         relay.NewService(p, store, relay.Options{Log: log}),
		Webhooks:      webhooks.NewDispatcher(store, journal, log),
		Journal:       journal,
		Reporting:     reporting.NewService(store),
		Verifier:      keyVerifier(verifyKey),
		AllowUnsigned: allowUnsigned,
		Now:           func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}

	r := gin.New()
	r.Use(logger.Middleware(log))
	r.GET("/calls", h.ListCalls)
	r.POST("/calls", h.CreateCall)
	r.GET("/stats/calls", h.Stats)
	r.GET("/calls/:call_id", h.GetCall)
	r.GET("/calls/:call_id/events", h.CallEvents)
	r.POST("/webhooks/retell", h.RetellWebhook)
	r.GET("/webhooks/test", h.WebhookTest)
	return fixture{router: r, store: store, journal: repo}
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func signed(body string) map[string]string {
	return map[string]string{retell.SignatureHeader: retell.Sign(verifyKey, []byte(body))}
}

func TestCreateCall_ReturnsCallIDAndSeedsStore(t *testing.T) {
	f := newFixture(t, &fakeProvider{createID: "abc123"}, false)

	w := f.do(http.MethodPost, "/calls", `{"to_number":"+17578348255"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"call_id":"abc123"}`, w.Body.String())

	rec, ok := f.store.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, calls.StatusCreated, rec.Status)
}

func TestCreateCall_LogsRequestingSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := logger.NewWithWriter("production", &buf)
	store := calls.NewMemoryStore()
	h := Handlers{Relay: relay.NewService(&fakeProvider{createID: "abc123"}, store, relay.Options{Log: logger.Discard()})}

	r := gin.New()
	r.Use(logger.Middleware(log))
	r.POST("/calls", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "dashboard", "operator"))
		c.Next()
	}, h.CreateCall)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{"to_number":"+17578348255"}`))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Contains(t, buf.String(), `"msg":"call created"`)
	assert.Contains(t, buf.String(), `"requested_by":"dashboard"`)
}

func TestCreateCall_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		p    *fakeProvider
		body string
		want int
	}{
		{"invalid json", &fakeProvider{createID: "x"}, `{`, http.StatusBadRequest},
		{"empty number", &fakeProvider{createID: "x"}, `{"to_number":""}`, http.StatusBadRequest},
		{"no call id", &fakeProvider{}, `{"to_number":"+1"}`, http.StatusInternalServerError},
		{"timeout", &fakeProvider{createErr: &retell.Error{Kind: retell.KindTimeout}}, `{"to_number":"+1"}`, http.StatusGatewayTimeout},
		{"connection", &fakeProvider{createErr: &retell.Error{Kind: retell.KindConnection}}, `{"to_number":"+1"}`, http.StatusServiceUnavailable},
		{"rejected", &fakeProvider{createErr: &retell.Error{Kind: retell.KindRejected, StatusCode: 422}}, `{"to_number":"+1"}`, http.StatusBadGateway},
		{"malformed", &fakeProvider{createErr: &retell.Error{Kind: retell.KindMalformedResponse}}, `{"to_number":"+1"}`, http.StatusBadGateway},
		{"unexpected", &fakeProvider{createErr: errors.New("boom")}, `{"to_number":"+1"}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.p, false)
			w := f.do(http.MethodPost, "/calls", tc.body, nil)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestGetCall_LiveAndCacheHeader(t *testing.T) {
	p := &fakeProvider{get: map[string]string{"abc123": `{"call_id":"abc123","call_status":"ongoing"}`}}
	f := newFixture(t, p, false)

	w := f.do(http.MethodGet, "/calls/abc123", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Header().Get(DataSourceHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc123", body["call_id"])
	assert.Equal(t, "ongoing", body["call_status"])
	assert.Equal(t, false, body["stale"])

	p.getErr = &retell.Error{Kind: retell.KindTimeout}
	w = f.do(http.MethodGet, "/calls/abc123", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cache", w.Header().Get(DataSourceHeader))
	assert.Contains(t, w.Body.String(), `"stale":true`)
}

func TestGetCall_NotFound(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)
	w := f.do(http.MethodGet, "/calls/never-seen", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"call not found"}`, w.Body.String())
}

func TestListCalls(t *testing.T) {
	f := newFixture(t, &fakeProvider{list: `[{"call_id":"a","start_timestamp":1},{"call_id":"b","start_timestamp":2}]`}, false)

	w := f.do(http.MethodGet, "/calls", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []relay.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].CallID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/calls?limit=0", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/calls?limit=abc", "", nil).Code)
}

func TestListCalls_ProviderFailure(t *testing.T) {
	f := newFixture(t, &fakeProvider{listErr: &retell.Error{Kind: retell.KindConnection}}, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/calls", "", nil).Code)
}

func TestRetellWebhook_SignedDeliveryApplied(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)
	body := `{"event":"call_started","call":{"call_id":"abc123","agent_name":"Ava"}}`

	w := f.do(http.MethodPost, "/webhooks/retell", body, signed(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	rec, ok := f.store.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, calls.StatusOngoing, rec.Status)
	assert.Equal(t, "Ava", rec.AgentName)

	events := f.journal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "call_started", events[0].Type)

	w = f.do(http.MethodGet, "/calls/abc123/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"event":"call_started"`)
}

func TestRetellWebhook_BadSignatureDoesNotMutate(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, true)
	body := `{"event":"call_ended","call":{"call_id":"abc123"}}`
	tampered := strings.Replace(body, "ended", "Ended", 1)

	w := f.do(http.MethodPost, "/webhooks/retell", tampered, signed(body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, ok := f.store.Get("abc123")
	assert.False(t, ok)
	assert.Empty(t, f.journal.Events())
}

func TestRetellWebhook_UnsignedPolicy(t *testing.T) {
	body := `{"event":"call_ended","call":{"call_id":"abc123"}}`

	strict := newFixture(t, &fakeProvider{}, false)
	assert.Equal(t, http.StatusUnauthorized, strict.do(http.MethodPost, "/webhooks/retell", body, nil).Code)
	_, ok := strict.store.Get("abc123")
	assert.False(t, ok)

	lenient := newFixture(t, &fakeProvider{}, true)
	assert.Equal(t, http.StatusOK, lenient.do(http.MethodPost, "/webhooks/retell", body, nil).Code)
	rec, ok := lenient.store.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, calls.StatusEnded, rec.Status)
}

func TestRetellWebhook_MalformedAndMissingCallID(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)

	bad := `{"event":`
	w := f.do(http.MethodPost, "/webhooks/retell", bad, signed(bad))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noID := `{"event":"call_started","call":{}}`
	w = f.do(http.MethodPost, "/webhooks/retell", noID, signed(noID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "call_id")

	assert.Empty(t, f.store.List())
}

func TestRetellWebhook_WrongTypedFieldsStillApplied(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)

	cases := []struct {
		body      string
		callID    string
		lastEvent string
	}{
		{`{"event":"call_ended","call":{"call_id":"c1","duration_ms":12345.6}}`, "c1", "call_ended"},
		{`{"event":"some_new_event","call":{"call_id":"c2"},"timestamp":"2026-10-17T00:00:00Z"}`, "c2", "some_new_event"},
		{`{"event":"call_analyzed","call":{"call_id":"c3","call_analysis":{"in_voicemail":"false"}}}`, "c3", "call_analyzed"},
	}
	for _, tc := range cases {
		w := f.do(http.MethodPost, "/webhooks/retell", tc.body, signed(tc.body))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		rec, ok := f.store.Get(tc.callID)
		require.True(t, ok, tc.callID)
		assert.Equal(t, tc.lastEvent, rec.LastEvent)
		assert.JSONEq(t, tc.body, string(rec.WebhookData))
	}

	rec, _ := f.store.Get("c1")
	assert.Equal(t, calls.StatusEnded, rec.Status)
	assert.Nil(t, rec.DurationMs)

	rec, _ = f.store.Get("c2")
	require.NotNil(t, rec.LastWebhookReceived)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC).UnixMilli(), *rec.LastWebhookReceived)

	rec, _ = f.store.Get("c3")
	require.NotNil(t, rec.Analysis)
	assert.Nil(t, rec.Analysis.InVoicemail)
}

func TestWebhookTest(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)
	w := f.do(http.MethodGet, "/webhooks/test", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"webhook endpoint is accessible","timestamp":1700000000000}`, w.Body.String())
}

func TestStats(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, false)
	f.store.SetStatus("a", calls.StatusEnded)
	f.store.SetStatus("b", calls.StatusOngoing)

	w := f.do(http.MethodGet, "/stats/calls", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out reporting.CallsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.TotalCalls)
	assert.Equal(t, 1, out.EndedCalls)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/stats/calls?from=yesterday", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodGet, "/stats/calls?from=2026-10-17T10:00:00Z&to=2026-10-17T09:00:00Z", "", nil).Code)
}
