package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"carecall-platform/internal/calls"
	"carecall-platform/internal/lifecycle"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/telephony"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Monday 2026-03-02 10:00 UTC.
var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakePlacer struct {
	reqs []telephony.CreateCallRequest
	fail map[string]error
}

func (f *fakePlacer) CreatePhoneCall(_ context.Context, req telephony.CreateCallRequest) (telephony.CreateCallResult, error) {
	f.reqs = append(f.reqs, req)
	if err := f.fail[req.ToNumber]; err != nil {
		return telephony.CreateCallResult{}, err
	}
	return telephony.CreateCallResult{CallID: "prov-" + req.Metadata.InternalCallID, Status: "registered"}, nil
}

type fixture struct {
	s         *Scheduler
	residents *residents.MemoryRepo
	calls     *calls.MemoryRepo
	placer    *fakePlacer
	sleeps    []time.Duration
}

func newFixture(t *testing.T, now time.Time, rs ...residents.Resident) *fixture {
	t.Helper()
	f := &fixture{
		residents: residents.NewMemoryRepo(rs...),
		calls:     calls.NewMemoryRepo(),
		placer:    &fakePlacer{fail: map[string]error{}},
	}
	proc := lifecycle.NewProcessor(lifecycle.Deps{
		Calls:     f.calls,
		Residents: f.residents,
		Jobs:      queue.NewClient(queue.NewMemoryQueue(queue.History{}), 3),
	})
	f.s = New(Config{
		OperatingStart: 9 * 60,
		OperatingEnd:   20 * 60,
		InterCallDelay: 30 * time.Second,
		SafetyFloor:    8 * time.Hour,
		AgentID:        "agent_1",
		FromNumber:     "+15550000000",
	}, Deps{Residents: f.residents, Calls: f.calls, Placer: f.placer, Lifecycle: proc})
	f.s.now = func() time.Time { return now }
	f.s.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func resident(id string) residents.Resident {
	return residents.Resident{
		ID:                  id,
		FacilityID:          "f1",
		Name:                "Resident " + id,
		Status:              residents.StatusActive,
		CallConsent:         true,
		PhoneNumber:         "+1555" + id,
		TargetCallsPerWeek:  3,
		MinDaysBetweenCalls: 2,
		MaxDaysBetweenCalls: 5,
	}
}

func daysAgo(now time.Time, d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestTick_SkipsOutsideOperatingHours(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), resident("r1"))
	res, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, "outside operating hours", res.Skipped)
	require.Empty(t, f.placer.reqs)
}

func TestTick_PlacesDueResident(t *testing.T) {
	r := resident("r1")
	r.LastOutboundCallAt = daysAgo(monday10, 3)
	f := newFixture(t, monday10, r)
	ctx := context.Background()

	res, err := f.s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Placed())
	require.Len(t, f.placer.reqs, 1)

	req := f.placer.reqs[0]
	require.Equal(t, "agent_1", req.AgentID)
	require.Equal(t, "+1555r1", req.ToNumber)
	require.Equal(t, "Resident r1", req.DynamicVariables["resident_name"])
	require.True(t, req.Metadata.IsFirstCall)

	c, err := f.calls.Get(ctx, req.Metadata.InternalCallID)
	require.NoError(t, err)
	require.Equal(t, calls.StatusInitiating, c.Status)
	require.Equal(t, "prov-"+c.ID, c.ProviderCallID)

	got, err := f.residents.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, got.LastOutboundCallAt.Equal(monday10))
	require.Empty(t, f.sleeps)
}

func TestTick_SkipReasons(t *testing.T) {
	tooSoon := resident("a")
	tooSoon.LastOutboundCallAt = daysAgo(monday10, 1)

	recent := resident("b")
	recent.MinDaysBetweenCalls, recent.MaxDaysBetweenCalls = 0, 1
	recent.LastInboundCallAt = ptr(monday10.Add(-2 * time.Hour))

	active := resident("c")

	wrongDay := resident("d")
	wrongDay.LastOutboundCallAt = daysAgo(monday10, 3)
	wrongDay.PreferredCallTimes = residents.PreferredCallTimes{Days: []string{"wednesday"}}

	invalid := resident("e")
	invalid.MinDaysBetweenCalls, invalid.MaxDaysBetweenCalls = 5, 2

	f := newFixture(t, monday10, tooSoon, recent, active, wrongDay, invalid)
	require.NoError(t, f.calls.Create(context.Background(), calls.Call{ID: "x", ResidentID: "c", Status: calls.StatusInProgress}))

	res, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Placed())
	require.Empty(t, f.placer.reqs)

	reasons := map[string]string{}
	for _, o := range res.Outcomes {
		reasons[o.ResidentID] = o.Reason
	}
	require.Equal(t, map[string]string{
		"a": "too soon",
		"b": "called recently",
		"c": "call in progress",
		"d": "outside preferred time",
		"e": "invalid schedule",
	}, reasons)
}

func TestTick_PlacementFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, monday10, resident("r1"), resident("r2"), resident("r3"))
	f.placer.fail["+1555r1"] = errors.New("provider 500")
	ctx := context.Background()

	res, err := f.s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Placed())
	require.Len(t, f.placer.reqs, 3)

	failed := res.Outcomes[0]
	require.Equal(t, "r1", failed.ResidentID)
	require.False(t, failed.Placed)
	c, err := f.calls.Get(ctx, failed.CallID)
	require.NoError(t, err)
	require.Equal(t, calls.StatusFailed, c.Status)

	r1, _ := f.residents.Get(ctx, "r1")
	require.Nil(t, r1.LastOutboundCallAt)

	// One delay between the two successful placements, none after the last resident.
	require.Equal(t, []time.Duration{30 * time.Second}, f.sleeps)
}

func TestTick_OverdueResidentDriftsToAdjacentDay(t *testing.T) {
	r := resident("r1")
	r.PreferredCallTimes = residents.PreferredCallTimes{
		Days:    []string{"tuesday"},
		Windows: []residents.TimeWindow{{Start: "09:30", End: "11:00"}},
	}
	f := newFixture(t, monday10, r)
	res, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Placed())
}

func TestTick_SkippedWhileLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := newFixture(t, monday10, resident("r1"))
	lock := NewRedisLock(rdb, "", time.Minute)
	f.s.locker = lock

	release, ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tick already running", res.Skipped)
	require.Empty(t, f.placer.reqs)

	release()
	res, err = f.s.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Placed())
}

func TestCallNow(t *testing.T) {
	r := resident("r1")
	r.LastOutboundCallAt = daysAgo(monday10, 0)
	inactive := resident("r2")
	inactive.Status = residents.StatusInactive
	f := newFixture(t, monday10, r, inactive)
	ctx := context.Background()

	c, err := f.s.CallNow(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusInitiating, c.Status)
	require.Equal(t, "prov-"+c.ID, c.ProviderCallID)

	_, err = f.s.CallNow(ctx, "r1")
	require.ErrorIs(t, err, ErrCallActive)

	_, err = f.s.CallNow(ctx, "r2")
	require.ErrorIs(t, err, ErrNotCallable)

	_, err = f.s.CallNow(ctx, "missing")
	require.ErrorIs(t, err, residents.ErrNotFound)
}

func ptr(t time.Time) *time.Time { return &t }
