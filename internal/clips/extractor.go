// Package clips cuts per-segment audio clips out of durable call recordings.
package clips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carecall-platform/internal/calls"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/segments"
	"carecall-platform/internal/storage"
	"carecall-platform/pkg/logger"
)

var ErrNoDurableRecording = errors.New("clips: call has no durable recording")

// Downloader fetches a URL to a local path.
type Downloader interface {
	Download(ctx context.Context, rawURL, dst string) error
}

type Deps struct {
	Segments segments.Repository
	Calls    calls.Repository
	Store    storage.Store
	// Fetcher is used when the recording has a URL but no object key in Store.
	Fetcher Downloader
	Cutter  Cutter
	TempDir string
	Logger  *slog.Logger
}

type Extractor struct {
	segments segments.Repository
	calls    calls.Repository
	store    storage.Store
	fetcher  Downloader
	cutter   Cutter
	tempDir  string
	log      *slog.Logger
}

func NewExtractor(d Deps) *Extractor {
	dir := d.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Extractor{
		segments: d.Segments,
		calls:    d.Calls,
		store:    d.Store,
		fetcher:  d.Fetcher,
		cutter:   d.Cutter,
		tempDir:  dir,
		log:      logger.OrDiscard(d.Logger),
	}
}

// ExtractAudioClip handles an extract-audio-clip job.
// A call without a durable recording fails the job without retries.
func (x *Extractor) ExtractAudioClip(ctx context.Context, job queue.ExtractAudioClip) error {
	log := x.log.With("segment_id", job.SegmentID)
	seg, err := x.segments.Get(ctx, job.SegmentID)
	if errors.Is(err, segments.ErrNotFound) {
		return queue.Fatal(err)
	}
	if err != nil {
		return err
	}
	if seg.AudioClipStatus == segments.ClipCompleted {
		return nil
	}

	c, err := x.calls.Get(ctx, seg.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		return queue.Fatal(err)
	}
	if err != nil {
		return err
	}
	log = log.With("call_id", c.ID)
	if c.PermanentRecordingURL == "" {
		x.markFailed(ctx, log, seg.ID, ErrNoDurableRecording)
		return queue.Fatal(ErrNoDurableRecording)
	}

	if err := x.segments.SetClipStatus(ctx, seg.ID, segments.ClipProcessing, ""); err != nil {
		return fmt.Errorf("mark clip processing: %w", err)
	}
	url, err := x.cut(ctx, seg, c)
	if err != nil {
		x.markFailed(ctx, log, seg.ID, err)
		return err
	}
	if err := x.segments.CompleteClip(ctx, seg.ID, url); err != nil {
		err = fmt.Errorf("complete clip: %w", err)
		x.markFailed(ctx, log, seg.ID, err)
		return err
	}
	log.Info("clip extracted", "url", url)
	return nil
}

// markFailed records cause on the segment. It runs even when ctx is already cancelled.
func (x *Extractor) markFailed(ctx context.Context, log *slog.Logger, segmentID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := x.segments.SetClipStatus(ctx, segmentID, segments.ClipFailed, cause.Error()); err != nil {
		log.Warn("mark clip failed", "err", err)
	}
}

// cut works in a directory named after the segment, removed on every return.
func (x *Extractor) cut(ctx context.Context, seg segments.Segment, c calls.Call) (string, error) {
	dir := filepath.Join(x.tempDir, "clip-"+seg.ID)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source"+filepath.Ext(c.RecordingObjectKey))
	if err := x.fetchRecording(ctx, c, src); err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}

	dst := filepath.Join(dir, "clip.mp3")
	if err := x.cutter.Cut(ctx, src, dst, seg.StartSeconds(), seg.EndSeconds()); err != nil {
		return "", err
	}

	f, err := os.Open(dst)
	if err != nil {
		return "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()
	obj, err := x.store.Put(ctx, storage.ClipKey(seg.ResidentID, seg.ID), f, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("upload clip: %w", err)
	}
	return obj.URL, nil
}

func (x *Extractor) fetchRecording(ctx context.Context, c calls.Call, dst string) error {
	if c.RecordingObjectKey == "" {
		if x.fetcher == nil {
			return errors.New("no object key and no fetcher")
		}
		return x.fetcher.Download(ctx, c.PermanentRecordingURL, dst)
	}
	rc, err := x.store.Get(ctx, c.RecordingObjectKey)
	if err != nil {
		return err
	}
	defer rc.Close()
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
