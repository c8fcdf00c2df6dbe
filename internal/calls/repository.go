package calls

import (
	"context"
	"time"
)

// Repository persists calls. Update runs fn against a locked copy of the row and
// writes it back in the same transaction, so concurrent webhook redeliveries
// cannot lose each other's writes.
type Repository interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (Call, error)
	Update(ctx context.Context, id string, fn func(*Call) error) (Call, error)

	HasActiveCall(ctx context.Context, residentID string) (bool, error)
	// CompletedSince returns end times of completed calls for a resident ended at or after since.
	CompletedSince(ctx context.Context, residentID string, since time.Time) ([]time.Time, error)
	CountForResident(ctx context.Context, residentID string) (int, error)
	ListByFacility(ctx context.Context, facilityID string, from, to time.Time) ([]Call, error)
}
