package calls

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	// ErrExpiringRecording is returned when a provider-hosted URL is offered as the permanent recording.
	ErrExpiringRecording = errors.New("calls: recording url is provider-hosted")
)

// Call is one phone conversation with a resident.
//
// Status is written only by the lifecycle processor. Processed, Summary-derived
// fields, and the permanent recording are written by the post-call pipeline.
type Call struct {
	ID         string    `json:"id"`
	ResidentID string    `json:"resident_id"`
	FacilityID string    `json:"facility_id"`
	Direction  Direction `json:"direction"`
	Status     Status    `json:"status"`

	// ProviderCallID stays empty until the telephony provider accepts the call.
	ProviderCallID string `json:"provider_call_id,omitempty"`
	CallNumber     int    `json:"call_number"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	EndReason       string     `json:"end_reason,omitempty"`

	TranscriptRaw string `json:"transcript_raw,omitempty"`
	Transcript    string `json:"transcript,omitempty"`

	RecordingURL          string `json:"recording_url,omitempty"`
	PermanentRecordingURL string `json:"permanent_recording_url,omitempty"`
	RecordingObjectKey    string `json:"recording_object_key,omitempty"`

	Summary   string   `json:"summary,omitempty"`
	Sentiment string   `json:"sentiment,omitempty"`
	Topics    []string `json:"topics,omitempty"`

	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInitiating Status = "initiating"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusNoAnswer   Status = "no_answer"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether a call still occupies the resident's line.
func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusInitiating, StatusInProgress:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s.IsTerminal() || s.IsActive()
}

// DurationMs is the call audio length used to bound segment timestamps.
func (c Call) DurationMs() int64 {
	return int64(c.DurationSeconds) * 1000
}

// NeedsDurableCopy reports whether the only recording is still the provider's expiring one.
func (c Call) NeedsDurableCopy() bool {
	if c.PermanentRecordingURL != "" {
		return false
	}
	return c.RecordingURL != ""
}

// SetPermanentRecording records the durable copy. A provider-hosted URL is rejected so the
// permanent URL can never regress to an expiring one.
func (c *Call) SetPermanentRecording(rawURL, objectKey string, providerHosts []string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: permanent recording url is empty", ErrInvalidArgument)
	}
	if IsProviderHosted(rawURL, providerHosts) {
		return ErrExpiringRecording
	}
	c.PermanentRecordingURL = rawURL
	c.RecordingObjectKey = objectKey
	return nil
}

// IsProviderHosted reports whether rawURL points at one of the telephony provider's recording hosts.
// Subdomains of a listed host match.
func IsProviderHosted(rawURL string, providerHosts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range providerHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
