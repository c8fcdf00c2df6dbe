package segments

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("segments: not found")
	ErrInvalidArgument = errors.New("segments: invalid argument")
)

type ClipStatus string

const (
	ClipPending    ClipStatus = "pending"
	ClipProcessing ClipStatus = "processing"
	ClipCompleted  ClipStatus = "completed"
	ClipFailed     ClipStatus = "failed"
)

// Segment is a short story cut out of a completed call.
// AudioClipURL is set exactly when AudioClipStatus is completed.
type Segment struct {
	ID         string `json:"id"`
	CallID     string `json:"call_id"`
	ResidentID string `json:"resident_id"`

	StartTimeMs int64 `json:"start_time_ms"`
	EndTimeMs   int64 `json:"end_time_ms"`

	Title        string   `json:"title"`
	Transcript   string   `json:"transcript"`
	Category     string   `json:"category"`
	QualityScore float64  `json:"quality_score"`
	Tone         string   `json:"tone"`
	Flags        []string `json:"flags,omitempty"`

	AudioClipStatus ClipStatus `json:"audio_clip_status"`
	AudioClipURL    string     `json:"audio_clip_url,omitempty"`
	AudioClipError  string     `json:"audio_clip_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Segment) Validate() error {
	if s.ID == "" || s.CallID == "" || s.ResidentID == "" {
		return ErrInvalidArgument
	}
	if s.StartTimeMs < 0 || s.StartTimeMs >= s.EndTimeMs {
		return ErrInvalidArgument
	}
	return nil
}

// StartSeconds and EndSeconds are what the media cutter is given.
func (s Segment) StartSeconds() float64 { return float64(s.StartTimeMs) / 1000 }
func (s Segment) EndSeconds() float64   { return float64(s.EndTimeMs) / 1000 }
