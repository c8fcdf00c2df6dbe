package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; callers never block call handling on audit failures.
type Event struct {
	ID         string    `json:"id"`
	FacilityID string    `json:"facility_id,omitempty"`
	Type       EventType `json:"type"`

	// Actor fields are set for admin actions only.
	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	CallID         string `json:"call_id,omitempty"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	SegmentID      string `json:"segment_id,omitempty"`
	JobID          string `json:"job_id,omitempty"`

	Message string `json:"message,omitempty"`
	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction        EventType = "admin_action"
	EventTypeUnresolvedCallback EventType = "unresolved_callback"
	EventTypeIllegalTransition  EventType = "illegal_transition"
	EventTypeSegmentClamped     EventType = "segment_clamped"
	EventTypeSegmentDropped     EventType = "segment_dropped"
)
