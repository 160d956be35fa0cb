package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-relay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "voice-relay",
		JWTAudience:    "calls-api",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager(config.AuthConfig{})
	assert.Error(t, err)
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "dashboard", "operator", 0)
	require.NoError(t, err)

	claims, err := m.Verify(tok, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)
	assert.Equal(t, "operator", claims.Role)
	assert.NotEmpty(t, claims.ID, "jti")
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.Issue(now, "dashboard", "viewer", time.Minute)
	require.NoError(t, err)
	_, err = m.Verify(tok, now.Add(time.Hour))
	assert.Error(t, err)
}

func TestVerifyRejectsOtherSecretAndIssuer(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	other, err := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "voice-relay", JWTAudience: "calls-api"})
	require.NoError(t, err)
	tok, err := other.Issue(now, "x", "viewer", 0)
	require.NoError(t, err)
	_, err = m.Verify(tok, now)
	assert.Error(t, err, "signature mismatch")

	wrongIss, err := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "someone-else", JWTAudience: "calls-api"})
	require.NoError(t, err)
	tok, err = wrongIss.Issue(now, "x", "viewer", 0)
	require.NoError(t, err)
	_, err = m.Verify(tok, now)
	assert.Error(t, err, "issuer mismatch")
}

func TestIssueRequiresSubjectAndRole(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Issue(time.Now(), "", "viewer", 0)
	assert.ErrorIs(t, err, ErrMissingSubject)
	_, err = m.Issue(time.Now(), "x", "", 0)
	assert.ErrorIs(t, err, ErrMissingRole)
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		sub, _ := Subject(c.Request.Context())
		role, _ := Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"sub": sub, "role": role})
	})
	get := func(authz string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer not-a-jwt").Code)

	tok, err := m.Issue(time.Now(), "dashboard", "viewer", 0)
	require.NoError(t, err)
	w := get("Bearer " + tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"sub":"dashboard","role":"viewer"}`, w.Body.String())
}
