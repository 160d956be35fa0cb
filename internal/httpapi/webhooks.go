package httpapi

import (
	"errors"
	"io"
	"net/http"

	"voice-relay/internal/retell"
	"voice-relay/internal/webhooks"
	"voice-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 5 << 20

// RetellWebhook verifies and applies a provider webhook delivery.
//
// Order matters: the signature is checked over the raw bytes before anything
// is parsed, and nothing touches the store until the delivery verified and
// parsed cleanly.
func (h Handlers) RetellWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Webhooks == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhooks not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	sig := c.GetHeader(retell.SignatureHeader)
	switch {
	case sig == "" && !h.AllowUnsigned:
		log.Warn("unsigned webhook rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook signature"})
		return
	case sig == "":
		log.Warn("accepting unsigned webhook")
	case h.Verifier == nil || !h.Verifier.VerifySignature(body, sig):
		log.Warn("webhook signature mismatch")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	ev, err := webhooks.ParseEvent(body)
	if errors.Is(err, webhooks.ErrMissingCallID) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing call_id in webhook payload"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json payload"})
		return
	}

	if err := h.Webhooks.Dispatch(c.Request.Context(), ev); err != nil {
		log.Error("webhook processing failed", "call_id", ev.Call.CallID, "event", ev.Event, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// WebhookTest lets the provider (or an operator) confirm the webhook URL is
// reachable.
func (h Handlers) WebhookTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "webhook endpoint is accessible",
		"timestamp": h.now().UnixMilli(),
	})
}
