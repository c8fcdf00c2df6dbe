package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"carecall-platform/internal/calls"
	"carecall-platform/internal/storage"
)

// RecordingCopier mirrors a remote recording into durable storage.
type RecordingCopier interface {
	CopyFromURL(ctx context.Context, rawURL, key string) (storage.Object, error)
}

// RecordingKeeper moves a call's provider-hosted recording into durable storage.
// It is shared by the lifecycle processor (best effort, on call end) and the post-call pipeline.
type RecordingKeeper struct {
	Calls  calls.Repository
	Copier RecordingCopier
	// Hosts are the provider's expiring recording hosts.
	Hosts []string
}

// Persist copies the recording when the call has no permanent copy yet and returns the updated call.
func (k RecordingKeeper) Persist(ctx context.Context, c calls.Call) (calls.Call, error) {
	if !c.NeedsDurableCopy() {
		return c, nil
	}
	if k.Copier == nil {
		return c, fmt.Errorf("copy recording for call %s: copier not configured", c.ID)
	}
	key := storage.RecordingKey(c.ResidentID, c.ID, recordingExt(c.RecordingURL))
	obj, err := k.Copier.CopyFromURL(ctx, c.RecordingURL, key)
	if err != nil {
		return c, fmt.Errorf("copy recording for call %s: %w", c.ID, err)
	}
	return k.Calls.Update(ctx, c.ID, func(cur *calls.Call) error {
		if cur.PermanentRecordingURL != "" {
			return nil
		}
		return cur.SetPermanentRecording(obj.URL, obj.Key, k.Hosts)
	})
}

func recordingExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".wav", ".mp3", ".m4a", ".ogg":
		return ext
	default:
		return ""
	}
}
