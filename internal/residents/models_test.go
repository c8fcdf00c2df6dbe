package residents

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSchedule(t *testing.T) {
	base := Resident{TargetCallsPerWeek: 3, MinDaysBetweenCalls: 2, MaxDaysBetweenCalls: 5}
	if err := base.ValidateSchedule(); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}

	bad := base
	bad.MinDaysBetweenCalls = 5
	if err := bad.ValidateSchedule(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for min == max, got %v", err)
	}

	bad = base
	bad.TargetCallsPerWeek = 0
	if err := bad.ValidateSchedule(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for zero target, got %v", err)
	}

	bad = base
	bad.PreferredCallTimes = PreferredCallTimes{Windows: []TimeWindow{{Start: "14:00", End: "10:00"}}}
	if err := bad.ValidateSchedule(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for inverted window, got %v", err)
	}
}

func TestLastCallAt_PicksLatest(t *testing.T) {
	out := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	in := out.Add(48 * time.Hour)

	r := Resident{}
	if r.LastCallAt() != nil {
		t.Fatalf("expected nil for no calls")
	}
	r.LastOutboundCallAt = &out
	if got := r.LastCallAt(); !got.Equal(out) {
		t.Fatalf("expected outbound, got %v", got)
	}
	r.LastInboundCallAt = &in
	if got := r.LastCallAt(); !got.Equal(in) {
		t.Fatalf("expected inbound, got %v", got)
	}
}

func TestSchedulable(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := Resident{Status: StatusActive, CallConsent: true}
	if !r.Schedulable(now) {
		t.Fatalf("expected schedulable")
	}

	later := now.Add(time.Hour)
	r.UnavailableUntil = &later
	if r.Schedulable(now) {
		t.Fatalf("expected suppression window to block")
	}

	r.UnavailableUntil = nil
	r.CallConsent = false
	if r.Schedulable(now) {
		t.Fatalf("expected missing consent to block")
	}
}

func TestPreferredCallTimes(t *testing.T) {
	p := PreferredCallTimes{
		Days:    []string{"Monday", "wed"},
		Windows: []TimeWindow{{Start: "10:00", End: "12:00"}, {Start: "15:30", End: "17:00"}},
	}
	if !p.AllowsDay(time.Wednesday) || p.AllowsDay(time.Tuesday) {
		t.Fatalf("unexpected day matching")
	}
	if !p.InWindow(10*60) || p.InWindow(12*60) || !p.InWindow(16*60) || p.InWindow(9*60+59) {
		t.Fatalf("unexpected window matching")
	}

	var empty PreferredCallTimes
	if !empty.AllowsDay(time.Sunday) || !empty.InWindow(3*60) {
		t.Fatalf("expected empty preferences to allow everything")
	}
}
