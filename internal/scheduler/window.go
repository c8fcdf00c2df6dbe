package scheduler

import (
	"time"

	"carecall-platform/internal/residents"
)

// InPreferredWindow applies the resident's preferred days and clock windows to local.
// An overdue resident may also be called on a day adjacent to a preferred day, but
// still only inside a preferred clock window.
func InPreferredWindow(p residents.PreferredCallTimes, local time.Time, overdue bool) bool {
	if !p.InWindow(local.Hour()*60 + local.Minute()) {
		return false
	}
	day := local.Weekday()
	if p.AllowsDay(day) {
		return true
	}
	if !overdue {
		return false
	}
	prev := (day + 6) % 7
	next := (day + 1) % 7
	return p.AllowsDay(prev) || p.AllowsDay(next)
}

// withinOperatingHours reports whether local falls in [start, end) minutes after midnight.
func withinOperatingHours(local time.Time, start, end int) bool {
	m := local.Hour()*60 + local.Minute()
	return m >= start && m < end
}
