package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepo_UpdateIsAtomicPerRow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.Create(ctx, Call{ID: "c1", ResidentID: "r1", Status: StatusInitiating}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := repo.Update(ctx, "c1", func(c *Call) error {
		c.Status = StatusFailed
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := repo.Get(ctx, "c1")
	if got.Status != StatusInitiating {
		t.Fatalf("failed update must not persist, got %s", got.Status)
	}
}

func TestMemoryRepo_CompletedSinceAndActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	before := weekStart.Add(-time.Hour)
	after := weekStart.Add(26 * time.Hour)

	_ = repo.Create(ctx, Call{ID: "old", ResidentID: "r1", Status: StatusCompleted, EndedAt: &before})
	_ = repo.Create(ctx, Call{ID: "new", ResidentID: "r1", Status: StatusCompleted, EndedAt: &after})
	_ = repo.Create(ctx, Call{ID: "missed", ResidentID: "r1", Status: StatusNoAnswer, EndedAt: &after})

	times, err := repo.CompletedSince(ctx, "r1", weekStart)
	if err != nil {
		t.Fatalf("completed since: %v", err)
	}
	if len(times) != 1 || !times[0].Equal(after) {
		t.Fatalf("expected one completed call this week, got %v", times)
	}

	active, _ := repo.HasActiveCall(ctx, "r1")
	if active {
		t.Fatalf("expected no active call")
	}
	_ = repo.Create(ctx, Call{ID: "live", ResidentID: "r1", Status: StatusInProgress})
	active, _ = repo.HasActiveCall(ctx, "r1")
	if !active {
		t.Fatalf("expected active call")
	}
}
