// Package pipeline runs post-call processing for completed calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carecall-platform/internal/audit"
	"carecall-platform/internal/calls"
	"carecall-platform/internal/memories"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/segments"
	"carecall-platform/internal/understanding"
	"carecall-platform/pkg/logger"

	"github.com/google/uuid"
)

// Understanding is the external transcript analysis service.
type Understanding interface {
	ExtractMemories(ctx context.Context, residentID, transcript string) ([]understanding.MemoryFact, error)
	ProposeSegments(ctx context.Context, transcript string, audioDurationSeconds float64) ([]understanding.SegmentProposal, error)
}

type MemoryStore interface {
	Upsert(ctx context.Context, m memories.Memory) (memories.Memory, error)
}

// Recordings makes the call's recording durable.
type Recordings interface {
	Persist(ctx context.Context, c calls.Call) (calls.Call, error)
}

type Enqueuer interface {
	Add(ctx context.Context, p queue.Payload) (queue.Job, bool, error)
}

type AnomalyRecorder interface {
	Anomaly(ctx context.Context, typ audit.EventType, e audit.Event, details map[string]any) error
}

type Deps struct {
	Calls         calls.Repository
	Segments      segments.Repository
	Memories      MemoryStore
	Understanding Understanding
	Recordings    Recordings
	Jobs          Enqueuer
	Audit         AnomalyRecorder
	Logger        *slog.Logger
}

type Pipeline struct {
	calls         calls.Repository
	segments      segments.Repository
	memories      MemoryStore
	understanding Understanding
	recordings    Recordings
	jobs          Enqueuer
	audit         AnomalyRecorder
	log           *slog.Logger
	now           func() time.Time
}

func New(d Deps) *Pipeline {
	return &Pipeline{
		calls:         d.Calls,
		segments:      d.Segments,
		memories:      d.Memories,
		understanding: d.Understanding,
		recordings:    d.Recordings,
		jobs:          d.Jobs,
		audit:         d.Audit,
		log:           logger.OrDiscard(d.Logger),
		now:           time.Now,
	}
}

// ProcessCall handles a process-call job.
//
// Each step runs even when an earlier one failed. Any failure fails the job so the
// queue retries it, and the call is marked processed only after a clean pass.
func (p *Pipeline) ProcessCall(ctx context.Context, job queue.ProcessCall) error {
	log := p.log.With("call_id", job.CallID)
	c, err := p.calls.Get(ctx, job.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		return queue.Fatal(err)
	}
	if err != nil {
		return err
	}
	if c.Status != calls.StatusCompleted || c.Processed {
		log.Debug("post-call processing skipped", "status", string(c.Status), "processed", c.Processed)
		return nil
	}
	log = log.With("resident_id", c.ResidentID)

	var errs []error
	if c.NeedsDurableCopy() {
		updated, err := p.recordings.Persist(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("persist recording: %w", err))
		} else {
			c = updated
		}
	}

	if strings.TrimSpace(c.Transcript) != "" {
		if err := p.extractMemories(ctx, log, c); err != nil {
			errs = append(errs, fmt.Errorf("extract memories: %w", err))
		}
	}

	segs, err := p.ensureSegments(ctx, log, c)
	if err != nil {
		errs = append(errs, fmt.Errorf("segments: %w", err))
	}

	switch {
	case c.PermanentRecordingURL != "":
		if err := p.enqueueClips(ctx, segs); err != nil {
			errs = append(errs, fmt.Errorf("enqueue clips: %w", err))
		}
	case c.RecordingURL == "" && len(segs) > 0:
		log.Warn("call has no recording; clips will not be cut", "segments", len(segs))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	now := p.now().UTC()
	if _, err := p.calls.Update(ctx, c.ID, func(cur *calls.Call) error {
		cur.Processed = true
		cur.ProcessedAt = &now
		return nil
	}); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	log.Info("post-call processing finished", "segments", len(segs))
	return nil
}

func (p *Pipeline) extractMemories(ctx context.Context, log *slog.Logger, c calls.Call) error {
	if p.understanding == nil || p.memories == nil {
		return nil
	}
	facts, err := p.understanding.ExtractMemories(ctx, c.ResidentID, c.Transcript)
	if err != nil {
		return err
	}
	seen := p.now().UTC()
	var errs []error
	for _, f := range facts {
		m := memories.Memory{
			ResidentID:   c.ResidentID,
			Category:     f.Category,
			Key:          f.Key,
			Value:        f.Value,
			Confidence:   f.Confidence,
			MentionCount: 1,
			SourceCallID: c.ID,
			FirstSeenAt:  seen,
			LastSeenAt:   seen,
		}.Normalize()
		if err := m.Validate(); err != nil {
			log.Warn("memory fact dropped", "category", f.Category, "key", f.Key, "err", err)
			continue
		}
		if _, err := p.memories.Upsert(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensureSegments returns the call's segments, asking for proposals only when none exist yet.
func (p *Pipeline) ensureSegments(ctx context.Context, log *slog.Logger, c calls.Call) ([]segments.Segment, error) {
	existing, err := p.segments.ListByCall(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 || p.understanding == nil || strings.TrimSpace(c.Transcript) == "" {
		return existing, nil
	}

	proposals, err := p.understanding.ProposeSegments(ctx, c.Transcript, float64(c.DurationSeconds))
	if err != nil {
		return nil, err
	}
	durationMs := c.DurationMs()
	var out []segments.Segment
	for i, prop := range proposals {
		sp := clampSpan(prop.StartSeconds, prop.EndSeconds, durationMs)
		details := map[string]any{
			"index":         i,
			"start_seconds": prop.StartSeconds,
			"end_seconds":   prop.EndSeconds,
			"duration_ms":   durationMs,
		}
		if sp.Drop != "" {
			details["reason"] = sp.Drop
			log.Warn("segment proposal dropped", "index", i, "reason", sp.Drop, "start_seconds", prop.StartSeconds, "end_seconds", prop.EndSeconds)
			p.anomaly(ctx, log, audit.EventTypeSegmentDropped, c, "", details)
			continue
		}
		seg := segments.Segment{
			ID:              uuid.NewString(),
			CallID:          c.ID,
			ResidentID:      c.ResidentID,
			StartTimeMs:     sp.StartMs,
			EndTimeMs:       sp.EndMs,
			Title:           strings.TrimSpace(prop.Title),
			Transcript:      strings.TrimSpace(prop.Transcript),
			Category:        strings.TrimSpace(prop.Category),
			QualityScore:    prop.QualityScore,
			Tone:            strings.TrimSpace(prop.Tone),
			Flags:           prop.Flags,
			AudioClipStatus: segments.ClipPending,
		}
		if sp.Clamped {
			details["start_ms"], details["end_ms"] = sp.StartMs, sp.EndMs
			log.Info("segment proposal clamped", "segment_id", seg.ID, "start_ms", sp.StartMs, "end_ms", sp.EndMs)
			p.anomaly(ctx, log, audit.EventTypeSegmentClamped, c, seg.ID, details)
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := p.segments.CreateMany(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) enqueueClips(ctx context.Context, segs []segments.Segment) error {
	if p.jobs == nil {
		return errors.New("job queue not configured")
	}
	var errs []error
	for _, s := range segs {
		if s.AudioClipStatus == segments.ClipCompleted {
			continue
		}
		if _, _, err := p.jobs.Add(ctx, queue.ExtractAudioClip{SegmentID: s.ID}); err != nil {
			errs = append(errs, fmt.Errorf("segment %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) anomaly(ctx context.Context, log *slog.Logger, typ audit.EventType, c calls.Call, segmentID string, details map[string]any) {
	if p.audit == nil {
		return
	}
	err := p.audit.Anomaly(ctx, typ, audit.Event{FacilityID: c.FacilityID, CallID: c.ID, SegmentID: segmentID}, details)
	if err != nil {
		log.Warn("audit append failed", "err", err)
	}
}
