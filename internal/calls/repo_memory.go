package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
	// writes counts successful mutations so tests can assert "no writes".
	writes int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: make(map[string]Call)}
}

func (r *MemoryRepo) Create(_ context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		return ErrInvalidArgument
	}
	if _, exists := r.calls[c.ID]; exists {
		return ErrInvalidArgument
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.calls[c.ID] = clone(c)
	r.writes++
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return clone(c), nil
}

func (r *MemoryRepo) GetByProviderCallID(_ context.Context, providerCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if providerCallID == "" {
		return Call{}, ErrNotFound
	}
	for _, c := range r.calls {
		if c.ProviderCallID == providerCallID {
			return clone(c), nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) Update(_ context.Context, id string, fn func(*Call) error) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	c = clone(c)
	if err := fn(&c); err != nil {
		return Call{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	r.calls[id] = c
	r.writes++
	return clone(c), nil
}

func (r *MemoryRepo) HasActiveCall(_ context.Context, residentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.ResidentID == residentID && c.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) CompletedSince(_ context.Context, residentID string, since time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Time
	for _, c := range r.calls {
		if c.ResidentID != residentID || c.Status != StatusCompleted || c.EndedAt == nil {
			continue
		}
		if !c.EndedAt.Before(since) {
			out = append(out, *c.EndedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *MemoryRepo) CountForResident(_ context.Context, residentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.ResidentID == residentID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ListByFacility(_ context.Context, facilityID string, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.FacilityID != facilityID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Writes returns the number of mutations applied so far.
func (r *MemoryRepo) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func clone(c Call) Call {
	if c.Topics != nil {
		c.Topics = append([]string(nil), c.Topics...)
	}
	return c
}
