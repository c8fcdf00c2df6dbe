package segments

import "context"

// Repository persists story segments. Clip fields are written only through
// SetClipStatus and CompleteClip.
type Repository interface {
	CreateMany(ctx context.Context, segs []Segment) error
	Get(ctx context.Context, id string) (Segment, error)
	ListByCall(ctx context.Context, callID string) ([]Segment, error)
	SetClipStatus(ctx context.Context, id string, status ClipStatus, errMsg string) error
	// CompleteClip sets the clip URL and completed status together.
	CompleteClip(ctx context.Context, id, url string) error
}
