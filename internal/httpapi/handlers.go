package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"voice-relay/internal/audit"
	"voice-relay/internal/relay"
	"voice-relay/internal/reporting"
	"voice-relay/internal/retell"
	"voice-relay/internal/webhooks"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Relay     *relay.Service
	Webhooks  *webhooks.Dispatcher
	Journal   *audit.Service
	Reporting *reporting.Service

	// Verifier checks webhook signatures. Usually the retell client.
	Verifier SignatureVerifier
	// AllowUnsigned accepts deliveries without a signature header.
	AllowUnsigned bool

	Now func() time.Time
}

type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// DataSourceHeader tells the caller whether GET /calls/:call_id was refreshed
// from the provider ("live") or served from the store alone ("cache").
const DataSourceHeader = "X-Call-Data-Source"

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Root is the service banner.
func (h Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "voice relay API is running"})
}

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createCallStatus maps a create-call failure to an HTTP status and message.
func createCallStatus(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrInvalidNumber):
		return http.StatusBadRequest, "to_number is required"
	case errors.Is(err, relay.ErrTooManyCalls):
		return http.StatusTooManyRequests, "too many calls in progress, retry shortly"
	case errors.Is(err, relay.ErrNoCallID):
		return http.StatusInternalServerError, "failed to create call: provider returned no call id"
	}

	var pe *retell.Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, "failed to create call"
	}
	switch pe.Kind {
	case retell.KindTimeout:
		return http.StatusGatewayTimeout, "failed to create call: provider timed out"
	case retell.KindConnection:
		return http.StatusServiceUnavailable, "failed to create call: provider unreachable"
	case retell.KindRejected:
		return http.StatusBadGateway, fmt.Sprintf("failed to create call: provider rejected request (status %d)", pe.StatusCode)
	default:
		return http.StatusBadGateway, "failed to create call: unreadable provider response"
	}
}

// listCallsStatus maps a list failure; only the provider can fail a list.
func listCallsStatus(err error) int {
	switch retell.KindOf(err) {
	case retell.KindTimeout:
		return http.StatusGatewayTimeout
	case retell.KindConnection:
		return http.StatusServiceUnavailable
	case retell.KindRejected, retell.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
