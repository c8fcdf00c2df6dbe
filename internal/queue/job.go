package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeProcessCall      Type = "process-call"
	TypeExtractAudioClip Type = "extract-audio-clip"
	TypeScheduledTick    Type = "scheduled-tick"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Priorities: lower runs first.
const (
	PriorityScheduledTick    = 1
	PriorityProcessCall      = 2
	PriorityExtractAudioClip = 3
)

// Payload is the closed set of job payloads. Each variant names its own Type.
type Payload interface {
	JobType() Type
}

type ProcessCall struct {
	CallID string `json:"callId"`
}

type ExtractAudioClip struct {
	SegmentID string `json:"segmentId"`
}

type ScheduledTick struct{}

func (ProcessCall) JobType() Type      { return TypeProcessCall }
func (ExtractAudioClip) JobType() Type { return TypeExtractAudioClip }
func (ScheduledTick) JobType() Type    { return TypeScheduledTick }

// Job is the stored envelope around a payload.
type Job struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      Status          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`

	RunAt      time.Time  `json:"run_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Options override the defaults NewJob picks for a payload.
type Options struct {
	// ID replaces the deterministic id. Enqueueing an id that is already
	// waiting or active is a no-op.
	ID          string
	MaxAttempts int
	Delay       time.Duration
}

// NewJob wraps p in a waiting job.
func NewJob(p Payload, opts Options, now time.Time) (Job, error) {
	if p == nil {
		return Job{}, fmt.Errorf("%w: nil payload", ErrInvalidJob)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", p.JobType(), err)
	}
	id := opts.ID
	if id == "" {
		id = DefaultID(p)
	}
	if id == "" {
		return Job{}, fmt.Errorf("%w: %s payload has no id", ErrInvalidJob, p.JobType())
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now = now.UTC()
	return Job{
		ID:          id,
		Type:        p.JobType(),
		Payload:     raw,
		Priority:    priorityOf(p.JobType()),
		MaxAttempts: maxAttempts,
		Status:      StatusWaiting,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DefaultID makes per-entity jobs deterministic so duplicate enqueues collapse.
func DefaultID(p Payload) string {
	switch v := p.(type) {
	case ProcessCall:
		if v.CallID == "" {
			return ""
		}
		return string(TypeProcessCall) + ":" + v.CallID
	case ExtractAudioClip:
		if v.SegmentID == "" {
			return ""
		}
		return string(TypeExtractAudioClip) + ":" + v.SegmentID
	case ScheduledTick:
		return string(TypeScheduledTick) + ":" + uuid.NewString()
	default:
		return ""
	}
}

// TickID names the tick job for the interval window containing now.
func TickID(now time.Time, interval time.Duration) string {
	if interval <= 0 {
		interval = time.Minute
	}
	return fmt.Sprintf("%s:%d", TypeScheduledTick, now.UTC().Truncate(interval).Unix())
}

// Decode returns the typed payload for a job.
func Decode(j Job) (Payload, error) {
	switch j.Type {
	case TypeProcessCall:
		var p ProcessCall
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		if p.CallID == "" {
			return nil, fmt.Errorf("%w: process-call without callId", ErrInvalidJob)
		}
		return p, nil
	case TypeExtractAudioClip:
		var p ExtractAudioClip
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		if p.SegmentID == "" {
			return nil, fmt.Errorf("%w: extract-audio-clip without segmentId", ErrInvalidJob)
		}
		return p, nil
	case TypeScheduledTick:
		return ScheduledTick{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, j.Type)
	}
}

func priorityOf(t Type) int {
	switch t {
	case TypeScheduledTick:
		return PriorityScheduledTick
	case TypeProcessCall:
		return PriorityProcessCall
	default:
		return PriorityExtractAudioClip
	}
}
