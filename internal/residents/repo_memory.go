package residents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu        sync.Mutex
	residents map[string]Resident
}

func NewMemoryRepo(rs ...Resident) *MemoryRepo {
	r := &MemoryRepo{residents: make(map[string]Resident)}
	for _, res := range rs {
		r.residents[res.ID] = res
	}
	return r
}

func (r *MemoryRepo) Put(res Resident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.residents[res.ID] = res
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Resident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.residents[id]
	if !ok {
		return Resident{}, ErrNotFound
	}
	return res, nil
}

func (r *MemoryRepo) ListSchedulable(_ context.Context, now time.Time) ([]Resident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Resident
	for _, res := range r.residents {
		if res.Schedulable(now) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) FindByPhone(_ context.Context, phone string) (Resident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.residents {
		if res.PhoneNumber == phone {
			return res, nil
		}
	}
	return Resident{}, ErrNotFound
}

func (r *MemoryRepo) SetLastOutboundCall(_ context.Context, id string, at time.Time) error {
	return r.touch(id, func(res *Resident) { res.LastOutboundCallAt = &at })
}

func (r *MemoryRepo) SetLastInboundCall(_ context.Context, id string, at time.Time) error {
	return r.touch(id, func(res *Resident) { res.LastInboundCallAt = &at })
}

func (r *MemoryRepo) touch(id string, fn func(*Resident)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.residents[id]
	if !ok {
		return ErrNotFound
	}
	fn(&res)
	res.UpdatedAt = time.Now().UTC()
	r.residents[id] = res
	return nil
}
