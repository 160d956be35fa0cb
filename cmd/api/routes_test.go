package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-relay/internal/audit"
	"voice-relay/internal/auth"
	"voice-relay/internal/calls"
	"voice-relay/internal/config"
	"voice-relay/internal/httpapi"
	"voice-relay/internal/relay"
	"voice-relay/internal/reporting"
	"voice-relay/internal/retell"
	"voice-relay/internal/webhooks"
	"voice-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

type stubProvider struct{}

func (stubProvider) CreatePhoneCall(context.Context, string) (retell.Call, error) {
	var c retell.Call
	err := json.Unmarshal([]byte(`{"call_id":"abc123"}`), &c)
	return c, err
}

func (stubProvider) GetCall(context.Context, string) (retell.Call, error) {
	return retell.Call{}, &retell.Error{Kind: retell.KindConnection}
}

func (stubProvider) ListCalls(context.Context, int) ([]retell.Call, error) {
	return nil, nil
}

func newRouter(t *testing.T, authMW gin.HandlerFunc) (*gin.Engine, *calls.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	store := calls.NewMemoryStore()
	journal := audit.NewService(audit.NewMemoryRepo())
	h := httpapi.Handlers{
		Relay:     relay.NewService(stubProvider{}, store, relay.Options{Log: log}),
		Webhooks:  webhooks.NewDispatcher(store, journal, log),
		Journal:   journal,
		Reporting: reporting.NewService(store),
	}

	r := gin.New()
	registerRoutes(r, h, authMW)
	return r, store
}

func serve(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCallThenReadFromCache(t *testing.T) {
	r, store := newRouter(t, nil)

	w := serve(r, http.MethodPost, "/calls", `{"to_number":"+17578348255"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"call_id":"abc123"}` {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	rec, ok := store.Get("abc123")
	if !ok || rec.Status != calls.StatusCreated {
		t.Fatalf("expected stored record with status created, got %+v (ok=%v)", rec, ok)
	}

	w = serve(r, http.MethodGet, "/api/calls/abc123", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(httpapi.DataSourceHeader) != "cache" {
		t.Fatalf("expected cache source when the provider is unreachable")
	}
}

func TestStatsDoesNotShadowCallIDs(t *testing.T) {
	r, store := newRouter(t, nil)
	store.SetStatus("stats", calls.StatusOngoing)

	w := serve(r, http.MethodGet, "/calls/stats", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"call_id":"stats"`) {
		t.Fatalf("expected call record for id stats, got %d: %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodGet, "/api/stats/calls", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_calls":1`) {
		t.Fatalf("expected stats, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPublicRoutes(t *testing.T) {
	r, _ := newRouter(t, nil)
	for _, path := range []string{"/", "/healthz", "/webhooks/test", "/api/webhooks/test"} {
		if w := serve(r, http.MethodGet, path, "", ""); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestCallRoutesRequireRoleWhenAuthEnabled(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	r, _ := newRouter(t, auth.RequireAccessToken(m))

	viewer, _ := m.Issue(time.Now(), "dash", "viewer", 0)
	operator, _ := m.Issue(time.Now(), "ops", "operator", 0)

	if w := serve(r, http.MethodGet, "/stats/calls", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/stats/calls", "", viewer); w.Code != http.StatusOK {
		t.Fatalf("expected viewer to read stats, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/calls", `{"to_number":"+1"}`, viewer); w.Code != http.StatusForbidden {
		t.Fatalf("expected viewer forbidden from creating calls, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/calls", `{"to_number":"+1"}`, operator); w.Code != http.StatusOK {
		t.Fatalf("expected operator to create calls, got %d", w.Code)
	}
	// webhooks stay public
	if w := serve(r, http.MethodGet, "/webhooks/test", "", ""); w.Code != http.StatusOK {
		t.Fatalf("expected public webhook test, got %d", w.Code)
	}
}
