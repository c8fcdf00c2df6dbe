package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records anomalies and admin actions.
// Audit is internal-only; these records are not exposed to facility staff.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeAdminAction && e.ActorUserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Anomaly records something unexpected that was tolerated rather than failed.
func (s *Service) Anomaly(ctx context.Context, typ EventType, e Event, details map[string]any) error {
	e.Type = typ
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		e.Metadata = string(b)
	}
	return s.Append(ctx, e)
}

// LogAdminAction records an operator action such as a job requeue or a manual call.
func (s *Service) LogAdminAction(ctx context.Context, facilityID, actorUserID, actorRole, ip, message string, target Event) error {
	target.Type = EventTypeAdminAction
	target.FacilityID = facilityID
	target.ActorUserID = actorUserID
	target.ActorRole = actorRole
	target.IPAddress = ip
	target.Message = message
	return s.Append(ctx, target)
}
