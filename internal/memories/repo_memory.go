package memories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Memory
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Memory)}
}

func compositeKey(m Memory) string {
	return m.ResidentID + "\x00" + m.Category + "\x00" + m.Key
}

func (r *MemoryRepo) Upsert(_ context.Context, m Memory) (Memory, error) {
	m = m.Normalize()
	if err := m.Validate(); err != nil {
		return Memory{}, err
	}
	if m.LastSeenAt.IsZero() {
		m.LastSeenAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := compositeKey(m)
	if existing, ok := r.rows[k]; ok {
		merged := Merge(existing, m)
		r.rows[k] = merged
		return merged, nil
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.MentionCount = 1
	m.FirstSeenAt = m.LastSeenAt
	r.rows[k] = m
	return m, nil
}

func (r *MemoryRepo) ListByResident(_ context.Context, residentID string) ([]Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Memory
	for _, m := range r.rows {
		if m.ResidentID == residentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
