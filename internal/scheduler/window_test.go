package scheduler

import (
	"testing"
	"time"

	"carecall-platform/internal/residents"
)

func TestInPreferredWindow(t *testing.T) {
	prefs := residents.PreferredCallTimes{
		Days:    []string{"wed"},
		Windows: []residents.TimeWindow{{Start: "10:00", End: "12:00"}, {Start: "15:00", End: "16:30"}},
	}
	wed := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	at := func(day time.Time, h, m int) time.Time {
		return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	cases := []struct {
		name    string
		local   time.Time
		overdue bool
		want    bool
	}{
		{"preferred day inside window", at(wed, 10, 0), false, true},
		{"window end is exclusive", at(wed, 12, 0), false, false},
		{"second window", at(wed, 16, 29), false, true},
		{"adjacent day not overdue", at(wed.AddDate(0, 0, 1), 10, 30), false, false},
		{"adjacent day overdue", at(wed.AddDate(0, 0, 1), 10, 30), true, true},
		{"previous day overdue", at(wed.AddDate(0, 0, -1), 15, 0), true, true},
		{"two days away overdue", at(wed.AddDate(0, 0, 2), 10, 30), true, false},
		{"overdue still needs the clock window", at(wed.AddDate(0, 0, 1), 13, 0), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InPreferredWindow(prefs, tc.local, tc.overdue); got != tc.want {
				t.Fatalf("InPreferredWindow(%s, overdue=%v)=%v, want %v", tc.local.Format(time.RFC3339), tc.overdue, got, tc.want)
			}
		})
	}
}

func TestInPreferredWindow_EmptyPreferencesAllowAnyTime(t *testing.T) {
	if !InPreferredWindow(residents.PreferredCallTimes{}, time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), false) {
		t.Fatalf("expected empty preferences to allow any time")
	}
}
