package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// History bounds how many finished jobs are kept for inspection.
type History struct {
	Completed int
	Failed    int
}

func (h History) withDefaults() History {
	if h.Completed <= 0 {
		h.Completed = 100
	}
	if h.Failed <= 0 {
		h.Failed = 1000
	}
	return h
}

// MemoryQueue is a process-local Queue for tests and single-node development.
type MemoryQueue struct {
	mu        sync.Mutex
	history   History
	jobs      map[string]Job
	completed []string
	failed    []string
}

func NewMemoryQueue(h History) *MemoryQueue {
	return &MemoryQueue{history: h.withDefaults(), jobs: make(map[string]Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, j Job) (bool, error) {
	if j.ID == "" || j.Type == "" {
		return false, ErrInvalidJob
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.jobs[j.ID]; ok && (cur.Status == StatusWaiting || cur.Status == StatusActive) {
		return false, nil
	}
	j.Status = StatusWaiting
	q.jobs[j.ID] = j
	q.completed = without(q.completed, j.ID)
	q.failed = without(q.failed, j.ID)
	return true, nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, now time.Time) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []Job
	for _, j := range q.jobs {
		if j.Status == StatusWaiting && !j.RunAt.After(now) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(a, b int) bool {
		if ready[a].Priority != ready[b].Priority {
			return ready[a].Priority < ready[b].Priority
		}
		return ready[a].CreatedAt.Before(ready[b].CreatedAt)
	})

	j := ready[0]
	j.Status = StatusActive
	j.Attempts++
	j.UpdatedAt = now.UTC()
	q.jobs[j.ID] = j
	return &j, nil
}

func (q *MemoryQueue) Complete(_ context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.Status = StatusCompleted
	q.jobs[j.ID] = j
	q.completed = q.pushHistory(q.completed, j.ID, StatusCompleted, q.history.Completed)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, j Job, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.Status = StatusWaiting
	j.RunAt = runAt.UTC()
	q.jobs[j.ID] = j
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.Status = StatusFailed
	q.jobs[j.ID] = j
	q.failed = q.pushHistory(q.failed, j.ID, StatusFailed, q.history.Failed)
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (q *MemoryQueue) Completed(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list(q.completed, StatusCompleted, limit), nil
}

func (q *MemoryQueue) Failed(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list(q.failed, StatusFailed, limit), nil
}

func (q *MemoryQueue) Requeue(_ context.Context, id string, now time.Time) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if j.Status != StatusFailed {
		return Job{}, ErrNotFailed
	}
	j = resetForRequeue(j, now)
	q.jobs[id] = j
	q.failed = without(q.failed, id)
	return j, nil
}

// pushHistory keeps id once at the head and prunes the oldest beyond max.
func (q *MemoryQueue) pushHistory(list []string, id string, status Status, max int) []string {
	list = append([]string{id}, without(list, id)...)
	for len(list) > max {
		old := list[len(list)-1]
		list = list[:len(list)-1]
		if j, ok := q.jobs[old]; ok && j.Status == status {
			delete(q.jobs, old)
		}
	}
	return list
}

func (q *MemoryQueue) list(ids []string, status Status, limit int) []Job {
	var out []Job
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		if j, ok := q.jobs[id]; ok && j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

func without(list []string, id string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func resetForRequeue(j Job, now time.Time) Job {
	now = now.UTC()
	j.Status = StatusWaiting
	j.Attempts = 0
	j.LastError = ""
	j.FinishedAt = nil
	j.RunAt = now
	j.UpdatedAt = now
	return j
}
