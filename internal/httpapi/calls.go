package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voice-relay/internal/auth"
	"voice-relay/internal/relay"
	"voice-relay/internal/reporting"
	"voice-relay/internal/retell"
	"voice-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 1000

type createCallRequest struct {
	ToNumber string `json:"to_number"`
}

// ListCalls returns the provider's recent calls joined with local data.
// Optional query: limit (1..1000).
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	out, err := h.Relay.ListCalls(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "kind", string(retell.KindOf(err)), "err", err)
		c.AbortWithStatusJSON(listCallsStatus(err), gin.H{"error": "failed to list calls"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateCall places an outbound call to to_number.
func (h Handlers) CreateCall(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	if sub, err := auth.Subject(ctx); err == nil {
		ctx = logger.With(ctx, logger.From(ctx, nil).With("requested_by", sub))
	}

	callID, err := h.Relay.CreateCall(ctx, req.ToNumber)
	if err != nil {
		status, msg := createCallStatus(err)
		log := logger.From(ctx, nil)
		if status >= http.StatusInternalServerError {
			log.Error("create call failed", "to", req.ToNumber, "kind", string(retell.KindOf(err)), "err", err)
		} else {
			log.Warn("create call refused", "to", req.ToNumber, "err", err)
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID})
}

// GetCall returns the stored view of a call after a best-effort refresh.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "relay not configured"})
		return
	}
	callID := c.Param("call_id")

	view, err := h.Relay.GetCall(c.Request.Context(), callID)
	if errors.Is(err, relay.ErrCallNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get call failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to get call status"})
		return
	}

	source := "live"
	if view.Stale {
		source = "cache"
	}
	c.Header(DataSourceHeader, source)
	c.JSON(http.StatusOK, view)
}

// CallEvents lists the journaled webhook deliveries for a call.
func (h Handlers) CallEvents(c *gin.Context) {
	if h.Journal == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "webhook journal not enabled"})
		return
	}
	callID := c.Param("call_id")

	events, err := h.Journal.History(c.Request.Context(), callID)
	if err != nil {
		logger.FromGin(c).Error("journal lookup failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "events": events})
}

// Stats aggregates the store. Optional query: from, to (RFC3339), agent_id.
func (h Handlers) Stats(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	req := reporting.CallsSummaryRequest{AgentID: c.Query("agent_id")}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &req.Range.From}, {"to", &req.Range.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.name + " must be RFC3339"})
			return
		}
		*p.dst = t
	}

	out, err := h.Reporting.CallsSummary(c.Request.Context(), req)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("stats failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
