package segments

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu   sync.Mutex
	segs map[string]Segment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{segs: make(map[string]Segment)}
}

func (r *MemoryRepo) CreateMany(_ context.Context, segs []Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range segs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for _, s := range segs {
		if s.AudioClipStatus == "" {
			s.AudioClipStatus = ClipPending
		}
		s.CreatedAt, s.UpdatedAt = now, now
		r.segs[s.ID] = s
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segs[id]
	if !ok {
		return Segment{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) ListByCall(_ context.Context, callID string) ([]Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Segment
	for _, s := range r.segs {
		if s.CallID == callID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeMs < out[j].StartTimeMs })
	return out, nil
}

func (r *MemoryRepo) SetClipStatus(_ context.Context, id string, status ClipStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segs[id]
	if !ok {
		return ErrNotFound
	}
	if status == ClipCompleted {
		return ErrInvalidArgument
	}
	s.AudioClipStatus = status
	s.AudioClipError = errMsg
	s.UpdatedAt = time.Now().UTC()
	r.segs[id] = s
	return nil
}

func (r *MemoryRepo) CompleteClip(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segs[id]
	if !ok {
		return ErrNotFound
	}
	if url == "" {
		return ErrInvalidArgument
	}
	s.AudioClipStatus = ClipCompleted
	s.AudioClipURL = url
	s.AudioClipError = ""
	s.UpdatedAt = time.Now().UTC()
	r.segs[id] = s
	return nil
}
