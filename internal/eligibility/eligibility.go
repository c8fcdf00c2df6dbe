// Package eligibility decides whether a resident is due for a call.
// It is pure: callers pass in the clock and the call history.
package eligibility

import (
	"math"
	"time"

	"carecall-platform/internal/residents"
)

type Reason string

const (
	ReasonOverdue           Reason = "overdue"
	ReasonTooSoon           Reason = "too soon"
	ReasonUnderWeeklyTarget Reason = "under weekly target"
	ReasonTargetMet         Reason = "target met"
)

// NeverCalled is the day count used when a resident has no call history.
const NeverCalled = math.MaxInt32

type Input struct {
	TargetCallsPerWeek  int
	MinDaysBetweenCalls int
	MaxDaysBetweenCalls int

	// LastCallAt is the end of the most recent call in either direction.
	LastCallAt    *time.Time
	CallsThisWeek int
	Now           time.Time
}

type Decision struct {
	IsDue             bool   `json:"is_due"`
	Reason            Reason `json:"reason"`
	DaysSinceLastCall int    `json:"days_since_last_call"`
	CallsThisWeek     int    `json:"calls_this_week"`
}

// Overdue reports whether the max-spacing rule fired.
func (d Decision) Overdue() bool {
	return d.Reason == ReasonOverdue
}

// Evaluate applies the rules in order; the first match wins.
// Silence past the max spacing always wins over the min spacing and weekly target.
func Evaluate(in Input) Decision {
	days := DaysSince(in.LastCallAt, in.Now)
	d := Decision{DaysSinceLastCall: days, CallsThisWeek: in.CallsThisWeek}

	switch {
	case days >= in.MaxDaysBetweenCalls:
		d.IsDue, d.Reason = true, ReasonOverdue
	case days < in.MinDaysBetweenCalls:
		d.IsDue, d.Reason = false, ReasonTooSoon
	case in.CallsThisWeek < in.TargetCallsPerWeek:
		d.IsDue, d.Reason = true, ReasonUnderWeeklyTarget
	default:
		d.IsDue, d.Reason = false, ReasonTargetMet
	}
	return d
}

// ForResident builds the input from a resident and the end times of its completed calls.
// Only calls at or after the start of now's week (in loc) count toward the weekly target.
func ForResident(r residents.Resident, completed []time.Time, now time.Time, loc *time.Location) Decision {
	weekStart := WeekStart(now, loc)
	n := 0
	for _, t := range completed {
		if !t.Before(weekStart) {
			n++
		}
	}
	return Evaluate(Input{
		TargetCallsPerWeek:  r.TargetCallsPerWeek,
		MinDaysBetweenCalls: r.MinDaysBetweenCalls,
		MaxDaysBetweenCalls: r.MaxDaysBetweenCalls,
		LastCallAt:          r.LastCallAt(),
		CallsThisWeek:       n,
		Now:                 now,
	})
}

// DaysSince counts whole elapsed days. A future timestamp counts as zero.
func DaysSince(last *time.Time, now time.Time) int {
	if last == nil {
		return NeverCalled
	}
	elapsed := now.Sub(*last)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// WeekStart returns Monday 00:00 of the week containing now, in loc.
func WeekStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}
