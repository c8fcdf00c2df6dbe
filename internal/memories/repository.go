package memories

import "context"

type Repository interface {
	// Upsert inserts m or merges it into the row with the same composite key.
	Upsert(ctx context.Context, m Memory) (Memory, error)
	ListByResident(ctx context.Context, residentID string) ([]Memory, error)
}
