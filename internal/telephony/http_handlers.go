package telephony

import (
	"context"
	"errors"
	"io"
	"net/http"

	"carecall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Processor applies a verified callback. Outcome.Warning is surfaced in the acknowledgement.
type Processor interface {
	Process(ctx context.Context, ev WebhookEvent) (Outcome, error)
}

type Outcome struct {
	Warning string
}

// WebhookHandler verifies and acknowledges provider callbacks.
//
// Only a bad signature (401) or an unparseable body (400) produces a non-200.
// Processing errors are logged and acknowledged so the provider does not retry forever.
type WebhookHandler struct {
	Secret    string
	Processor Processor

	// MaxBodyBytes bounds the raw body read. Defaults to 5 MiB.
	MaxBodyBytes int64
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, limit))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := VerifySignature(h.Secret, raw, c.GetHeader(SignatureHeader)); err != nil {
		log.Warn("webhook signature rejected", "remote_ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := ParseWebhook(raw)
	if err != nil {
		log.Warn("webhook payload rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	log = log.With("event", string(ev.Event), "provider_call_id", ev.Call.CallID)
	if h.Processor == nil {
		log.Error("webhook processor not configured")
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "processor not configured"})
		return
	}

	out, err := h.Processor.Process(logger.With(c.Request.Context(), log), ev)
	resp := gin.H{"received": true}
	if out.Warning != "" {
		resp["warning"] = out.Warning
	}
	if err != nil {
		log.Error("webhook processing failed", "err", err)
		msg := "internal processing error"
		if errors.Is(err, context.Canceled) {
			msg = "request cancelled"
		}
		resp["error"] = msg
	}
	c.JSON(http.StatusOK, resp)
}
