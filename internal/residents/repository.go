package residents

import (
	"context"
	"time"
)

// Repository is the persistence contract the scheduler and lifecycle processor need.
// Resident CRUD lives with the facility admin product, not here.
type Repository interface {
	Get(ctx context.Context, id string) (Resident, error)
	// ListSchedulable returns active, consented residents whose suppression window has passed.
	ListSchedulable(ctx context.Context, now time.Time) ([]Resident, error)
	FindByPhone(ctx context.Context, phone string) (Resident, error)
	SetLastOutboundCall(ctx context.Context, id string, at time.Time) error
	SetLastInboundCall(ctx context.Context, id string, at time.Time) error
}
