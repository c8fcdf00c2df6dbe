package residents

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("residents: not found")
	ErrInvalidSchedule = errors.New("residents: invalid schedule")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Resident is the scheduling-relevant view of a care facility resident.
type Resident struct {
	ID          string `json:"id"`
	FacilityID  string `json:"facility_id"`
	Name        string `json:"name"`
	Status      Status `json:"status"`
	CallConsent bool   `json:"call_consent"`
	PhoneNumber string `json:"phone_number"`

	TargetCallsPerWeek  int                `json:"target_calls_per_week"`
	MinDaysBetweenCalls int                `json:"min_days_between_calls"`
	MaxDaysBetweenCalls int                `json:"max_days_between_calls"`
	PreferredCallTimes  PreferredCallTimes `json:"preferred_call_times"`

	LastOutboundCallAt *time.Time `json:"last_outbound_call_at,omitempty"`
	LastInboundCallAt  *time.Time `json:"last_inbound_call_at,omitempty"`
	UnavailableUntil   *time.Time `json:"unavailable_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastCallAt is the later of the last outbound and last inbound call.
func (r Resident) LastCallAt() *time.Time {
	switch {
	case r.LastOutboundCallAt == nil:
		return r.LastInboundCallAt
	case r.LastInboundCallAt == nil:
		return r.LastOutboundCallAt
	case r.LastInboundCallAt.After(*r.LastOutboundCallAt):
		return r.LastInboundCallAt
	default:
		return r.LastOutboundCallAt
	}
}

// Schedulable reports whether the resident may be dialed at all at now.
func (r Resident) Schedulable(now time.Time) bool {
	if r.Status != StatusActive || !r.CallConsent {
		return false
	}
	return r.UnavailableUntil == nil || !now.Before(*r.UnavailableUntil)
}

func (r Resident) ValidateSchedule() error {
	if r.TargetCallsPerWeek < 1 {
		return fmt.Errorf("%w: target calls per week must be >= 1, got %d", ErrInvalidSchedule, r.TargetCallsPerWeek)
	}
	if r.MinDaysBetweenCalls < 0 {
		return fmt.Errorf("%w: min days between calls must be >= 0", ErrInvalidSchedule)
	}
	if r.MinDaysBetweenCalls >= r.MaxDaysBetweenCalls {
		return fmt.Errorf("%w: min days (%d) must be below max days (%d)", ErrInvalidSchedule, r.MinDaysBetweenCalls, r.MaxDaysBetweenCalls)
	}
	return r.PreferredCallTimes.Validate()
}

// PreferredCallTimes is a set of weekdays crossed with daily windows on the local clock.
// An empty value places no restriction on when a resident is called.
type PreferredCallTimes struct {
	Days    []string     `json:"days"`
	Windows []TimeWindow `json:"windows"`
}

// TimeWindow is an inclusive start, exclusive end pair of "HH:MM" clock times.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p PreferredCallTimes) IsEmpty() bool {
	return len(p.Days) == 0 && len(p.Windows) == 0
}

func (p PreferredCallTimes) Validate() error {
	for _, d := range p.Days {
		if _, ok := ParseWeekday(d); !ok {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, d)
		}
	}
	for _, w := range p.Windows {
		start, err := ClockMinutes(w.Start)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		end, err := ClockMinutes(w.End)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if end <= start {
			return fmt.Errorf("%w: window %s-%s ends before it starts", ErrInvalidSchedule, w.Start, w.End)
		}
	}
	return nil
}

// AllowsDay reports whether day is listed. No listed days means every day.
func (p PreferredCallTimes) AllowsDay(day time.Weekday) bool {
	if len(p.Days) == 0 {
		return true
	}
	for _, d := range p.Days {
		if wd, ok := ParseWeekday(d); ok && wd == day {
			return true
		}
	}
	return false
}

// InWindow reports whether minutes-after-midnight falls in any window.
// No windows means any time of day.
func (p PreferredCallTimes) InWindow(minute int) bool {
	if len(p.Windows) == 0 {
		return true
	}
	for _, w := range p.Windows {
		start, err1 := ClockMinutes(w.Start)
		end, err2 := ClockMinutes(w.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if minute >= start && minute < end {
			return true
		}
	}
	return false
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func ParseWeekday(v string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(v))]
	return d, ok
}

// ClockMinutes parses "HH:MM" into minutes after midnight.
func ClockMinutes(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("clock time must be HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
