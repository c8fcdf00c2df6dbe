package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"carecall-platform/internal/calls"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, raw body)).
const SignatureHeader = "X-Webhook-Signature"

type EventType string

const (
	EventCallStarted  EventType = "call_started"
	EventCallEnded    EventType = "call_ended"
	EventCallAnalyzed EventType = "call_analyzed"
)

// WebhookEvent is the callback envelope posted by the voice-agent platform.
type WebhookEvent struct {
	Event     EventType   `json:"event"`
	Call      WebhookCall `json:"call"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

type WebhookCall struct {
	CallID     string        `json:"call_id"`
	Direction  string        `json:"direction,omitempty"`
	FromNumber string        `json:"from_number,omitempty"`
	ToNumber   string        `json:"to_number,omitempty"`
	Metadata   *CallMetadata `json:"metadata,omitempty"`

	StartTimestamp int64  `json:"start_timestamp,omitempty"`
	EndTimestamp   int64  `json:"end_timestamp,omitempty"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
	EndReason      string `json:"end_reason,omitempty"`
	RecordingURL   string `json:"recording_url,omitempty"`

	Transcript       string           `json:"transcript,omitempty"`
	TranscriptObject []TranscriptTurn `json:"transcript_object,omitempty"`

	CallAnalysis *CallAnalysis `json:"call_analysis,omitempty"`
}

type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CallAnalysis struct {
	CallSummary     string   `json:"call_summary,omitempty"`
	UserSentiment   string   `json:"user_sentiment,omitempty"`
	TopicsDiscussed []string `json:"topics_discussed,omitempty"`
}

// InternalCallID returns the correlation id echoed from placement, if any.
func (c WebhookCall) InternalCallID() string {
	if c.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(c.Metadata.InternalCallID)
}

func (c WebhookCall) IsInbound() bool {
	return strings.EqualFold(c.Direction, "inbound")
}

// OccurredAt picks the event time, falling back to fallback when the provider sent none.
func (e WebhookEvent) OccurredAt(fallback time.Time) time.Time {
	if e.Timestamp > 0 {
		return time.UnixMilli(e.Timestamp).UTC()
	}
	return fallback.UTC()
}

// ParseWebhook decodes a raw callback body.
func ParseWebhook(raw []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ev, nil
}

// Sign returns the hex signature for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the header value against the raw body in constant time.
// A "sha256=" prefix on the header is accepted.
func VerifySignature(secret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "sha256=")
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// NormalizeTranscript returns the raw transcript for storage and a plain-text rendering.
// A structured turn list wins over the flat transcript and is flattened to "Speaker: text" lines.
func NormalizeTranscript(c WebhookCall) (raw string, plain string) {
	if len(c.TranscriptObject) > 0 {
		b, err := json.Marshal(c.TranscriptObject)
		if err == nil {
			raw = string(b)
		}
		var sb strings.Builder
		for _, turn := range c.TranscriptObject {
			text := strings.TrimSpace(turn.Content)
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(speakerLabel(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(text)
		}
		return raw, sb.String()
	}
	t := strings.TrimSpace(c.Transcript)
	return t, t
}

func speakerLabel(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "agent", "assistant":
		return "Agent"
	case "user", "resident", "customer":
		return "Resident"
	case "":
		return "Unknown"
	default:
		r := strings.TrimSpace(role)
		first, size := utf8.DecodeRuneInString(r)
		return string(unicode.ToUpper(first)) + r[size:]
	}
}

// TerminalStatus maps the provider's end reason onto a call outcome.
func TerminalStatus(endReason string) calls.Status {
	r := strings.ToLower(strings.TrimSpace(endReason))
	switch {
	case r == "":
		return calls.StatusCompleted
	case strings.Contains(r, "no_answer"), strings.Contains(r, "no-answer"),
		strings.Contains(r, "voicemail"), strings.Contains(r, "busy"):
		return calls.StatusNoAnswer
	case strings.HasPrefix(r, "error"), strings.Contains(r, "_error"),
		strings.Contains(r, "failed"), r == "invalid_destination":
		return calls.StatusFailed
	default:
		return calls.StatusCompleted
	}
}
