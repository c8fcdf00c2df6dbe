package memories

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidArgument = errors.New("memories: invalid argument")

// Memory is a durable fact about a resident, keyed by (resident, category, key).
type Memory struct {
	ID           string    `json:"id"`
	ResidentID   string    `json:"resident_id"`
	Category     string    `json:"category"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Confidence   float64   `json:"confidence"`
	MentionCount int       `json:"mention_count"`
	SourceCallID string    `json:"source_call_id,omitempty"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Normalize lowercases the composite key parts so repeated mentions collide.
func (m Memory) Normalize() Memory {
	m.Category = strings.ToLower(strings.TrimSpace(m.Category))
	m.Key = strings.ToLower(strings.TrimSpace(m.Key))
	m.Value = strings.TrimSpace(m.Value)
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	return m
}

func (m Memory) Validate() error {
	if m.ResidentID == "" || m.Category == "" || m.Key == "" || m.Value == "" {
		return ErrInvalidArgument
	}
	return nil
}

// Merge folds a new mention into an existing memory. The mention count always
// grows by one; the value and confidence are replaced only when the new mention
// is at least as confident, so a higher-confidence value is never lost.
func Merge(existing, incoming Memory) Memory {
	out := existing
	out.MentionCount = existing.MentionCount + 1
	if incoming.Confidence >= existing.Confidence {
		out.Value = incoming.Value
		out.Confidence = incoming.Confidence
		out.SourceCallID = incoming.SourceCallID
	}
	if incoming.LastSeenAt.After(out.LastSeenAt) {
		out.LastSeenAt = incoming.LastSeenAt
	}
	return out
}
