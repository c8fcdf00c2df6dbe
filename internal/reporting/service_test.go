package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"carecall-platform/internal/calls"
)

func TestCallsSummary(t *testing.T) {
	repo := calls.NewMemoryRepo()
	ctx := context.Background()
	seed := []calls.Call{
		{ID: "1", FacilityID: "f1", Direction: calls.DirectionOutbound, Status: calls.StatusCompleted, DurationSeconds: 600, PermanentRecordingURL: "https://d/1", Processed: true},
		{ID: "2", FacilityID: "f1", Direction: calls.DirectionOutbound, Status: calls.StatusNoAnswer},
		{ID: "3", FacilityID: "f1", Direction: calls.DirectionOutbound, Status: calls.StatusFailed},
		{ID: "4", FacilityID: "f1", Direction: calls.DirectionOutbound, Status: calls.StatusCompleted, DurationSeconds: 300},
		{ID: "5", FacilityID: "f1", Direction: calls.DirectionInbound, Status: calls.StatusInProgress},
		{ID: "6", FacilityID: "f2", Direction: calls.DirectionOutbound, Status: calls.StatusCompleted, DurationSeconds: 100},
	}
	for _, c := range seed {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	now := time.Now()
	got, err := NewService(repo).CallsSummary(ctx, CallsSummaryRequest{
		FacilityID: "f1",
		Range:      TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.TotalCalls != 5 || got.InboundCalls != 1 || got.OutboundCalls != 4 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.CompletedCalls != 2 || got.NoAnswerCalls != 1 || got.FailedCalls != 1 || got.InProgressCalls != 1 {
		t.Fatalf("unexpected status counts: %+v", got)
	}
	if got.TotalDurationSeconds != 900 || got.AverageDurationSeconds != 450 {
		t.Fatalf("unexpected durations: %+v", got)
	}
	if got.DurableRecordings != 1 || got.ProcessedCalls != 1 {
		t.Fatalf("unexpected pipeline counts: %+v", got)
	}
	if got.AnswerRate != 0.5 {
		t.Fatalf("expected answer rate 0.5, got %v", got.AnswerRate)
	}
}

func TestCallsSummary_RejectsBadRange(t *testing.T) {
	now := time.Now()
	_, err := NewService(calls.NewMemoryRepo()).CallsSummary(context.Background(), CallsSummaryRequest{
		FacilityID: "f1",
		Range:      TimeRange{From: now, To: now},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
