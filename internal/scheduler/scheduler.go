// Package scheduler decides which residents to call on each tick and places the calls.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"carecall-platform/internal/calls"
	"carecall-platform/internal/config"
	"carecall-platform/internal/eligibility"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/telephony"
	"carecall-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotCallable = errors.New("scheduler: resident cannot be called")
	ErrCallActive  = errors.New("scheduler: resident already has an active call")
)

// Placer asks the telephony provider to dial.
type Placer interface {
	CreatePhoneCall(ctx context.Context, req telephony.CreateCallRequest) (telephony.CreateCallResult, error)
}

// Lifecycle owns call status changes around placement.
type Lifecycle interface {
	Initiate(ctx context.Context, callID string) (calls.Call, error)
	InitiationFailed(ctx context.Context, callID string, cause error) (calls.Call, error)
}

type Config struct {
	Location *time.Location
	// OperatingStart and OperatingEnd are minutes after local midnight.
	OperatingStart int
	OperatingEnd   int
	InterCallDelay time.Duration
	SafetyFloor    time.Duration

	AgentID    string
	FromNumber string
}

// ConfigFrom reads scheduler settings from validated process config.
func ConfigFrom(c config.Config) (Config, error) {
	start, err := residents.ClockMinutes(c.Scheduler.OperatingStart)
	if err != nil {
		return Config{}, fmt.Errorf("operating start: %w", err)
	}
	end, err := residents.ClockMinutes(c.Scheduler.OperatingEnd)
	if err != nil {
		return Config{}, fmt.Errorf("operating end: %w", err)
	}
	return Config{
		Location:       c.Location(),
		OperatingStart: start,
		OperatingEnd:   end,
		InterCallDelay: c.Scheduler.InterCallDelay,
		SafetyFloor:    c.Scheduler.SafetyFloor,
		AgentID:        c.Telephony.AgentID,
		FromNumber:     c.Telephony.FromNumber,
	}, nil
}

type Deps struct {
	Residents residents.Repository
	Calls     calls.Repository
	Placer    Placer
	Lifecycle Lifecycle
	// Locker is optional; without it ticks are not serialized across processes.
	Locker Locker
	Logger *slog.Logger
}

type Scheduler struct {
	cfg       Config
	residents residents.Repository
	calls     calls.Repository
	placer    Placer
	lifecycle Lifecycle
	locker    Locker
	log       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, d Deps) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.OperatingEnd == 0 {
		cfg.OperatingStart, cfg.OperatingEnd = 9*60, 20*60
	}
	if cfg.SafetyFloor <= 0 {
		cfg.SafetyFloor = 8 * time.Hour
	}
	return &Scheduler{
		cfg:       cfg,
		residents: d.Residents,
		calls:     d.Calls,
		placer:    d.Placer,
		lifecycle: d.Lifecycle,
		locker:    d.Locker,
		log:       logger.OrDiscard(d.Logger),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Outcome is what happened to one resident during a tick.
type Outcome struct {
	ResidentID string `json:"resident_id"`
	Placed     bool   `json:"placed"`
	CallID     string `json:"call_id,omitempty"`
	Reason     string `json:"reason"`
	Error      string `json:"error,omitempty"`
}

type TickResult struct {
	StartedAt time.Time `json:"started_at"`
	// Skipped explains why the whole tick did nothing.
	Skipped  string    `json:"skipped,omitempty"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
}

func (r TickResult) Placed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Placed {
			n++
		}
	}
	return n
}

// Tick evaluates every schedulable resident once and places calls for those due.
// Residents are handled one at a time with InterCallDelay between placements.
// A failure for one resident is logged and does not stop the batch.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	start := s.now()
	res := TickResult{StartedAt: start.UTC()}
	local := start.In(s.cfg.Location)
	if !withinOperatingHours(local, s.cfg.OperatingStart, s.cfg.OperatingEnd) {
		res.Skipped = "outside operating hours"
		s.log.Debug("scheduler tick skipped", "reason", res.Skipped)
		return res, nil
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx)
		if err != nil {
			return res, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !ok {
			res.Skipped = "tick already running"
			s.log.Info("scheduler tick skipped", "reason", res.Skipped)
			return res, nil
		}
		defer release()
	}

	list, err := s.residents.ListSchedulable(ctx, start)
	if err != nil {
		return res, fmt.Errorf("list schedulable residents: %w", err)
	}

	for i, r := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := s.consider(ctx, r)
		res.Outcomes = append(res.Outcomes, out)
		if out.Placed && i < len(list)-1 && s.cfg.InterCallDelay > 0 {
			if err := s.sleep(ctx, s.cfg.InterCallDelay); err != nil {
				return res, err
			}
		}
	}
	s.log.Info("scheduler tick finished", "residents", len(list), "placed", res.Placed())
	return res, nil
}

func (s *Scheduler) consider(ctx context.Context, r residents.Resident) Outcome {
	now := s.now()
	log := s.log.With("resident_id", r.ID)
	out := Outcome{ResidentID: r.ID}

	reason, err := s.skipReason(ctx, r, now)
	if err != nil {
		log.Error("resident evaluation failed", "err", err)
		out.Reason, out.Error = "error", err.Error()
		return out
	}
	if reason != "" {
		out.Reason = reason
		return out
	}

	c, err := s.place(ctx, r, nil, now)
	if err != nil {
		log.Error("call placement failed", "err", err)
		out.Reason, out.Error = "placement failed", err.Error()
		out.CallID = c.ID
		return out
	}
	log.Info("call placed", "call_id", c.ID, "provider_call_id", c.ProviderCallID)
	out.Placed, out.CallID, out.Reason = true, c.ID, "placed"
	return out
}

// skipReason returns a non-empty reason when r must not be called now.
func (s *Scheduler) skipReason(ctx context.Context, r residents.Resident, now time.Time) (string, error) {
	if !r.Schedulable(now) {
		return "not schedulable", nil
	}
	if err := r.ValidateSchedule(); err != nil {
		s.log.Warn("resident schedule invalid", "resident_id", r.ID, "err", err)
		return "invalid schedule", nil
	}
	if last := r.LastCallAt(); last != nil && now.Sub(*last) < s.cfg.SafetyFloor {
		return "called recently", nil
	}
	active, err := s.calls.HasActiveCall(ctx, r.ID)
	if err != nil {
		return "", err
	}
	if active {
		return "call in progress", nil
	}
	d, err := s.Evaluate(ctx, r, now)
	if err != nil {
		return "", err
	}
	if !d.IsDue {
		return string(d.Reason), nil
	}
	if !InPreferredWindow(r.PreferredCallTimes, now.In(s.cfg.Location), d.Overdue()) {
		return "outside preferred time", nil
	}
	return "", nil
}

// Evaluate runs the eligibility rules for r against its completed calls this week.
func (s *Scheduler) Evaluate(ctx context.Context, r residents.Resident, now time.Time) (eligibility.Decision, error) {
	since := eligibility.WeekStart(now, s.cfg.Location)
	completed, err := s.calls.CompletedSince(ctx, r.ID, since)
	if err != nil {
		return eligibility.Decision{}, fmt.Errorf("completed calls for %s: %w", r.ID, err)
	}
	return eligibility.ForResident(r, completed, now, s.cfg.Location), nil
}

// CallNow places a call outside the tick. Eligibility is bypassed but the resident
// must be active, consented, and free of another call.
func (s *Scheduler) CallNow(ctx context.Context, residentID string) (calls.Call, error) {
	r, err := s.residents.Get(ctx, residentID)
	if err != nil {
		return calls.Call{}, err
	}
	now := s.now()
	if !r.Schedulable(now) {
		return calls.Call{}, ErrNotCallable
	}
	active, err := s.calls.HasActiveCall(ctx, r.ID)
	if err != nil {
		return calls.Call{}, err
	}
	if active {
		return calls.Call{}, ErrCallActive
	}

	c, err := s.newCall(ctx, r, calls.StatusScheduled)
	if err != nil {
		return calls.Call{}, err
	}
	if _, err := s.lifecycle.Initiate(ctx, c.ID); err != nil {
		return c, err
	}
	return s.place(ctx, r, &c, now)
}

// place dials r. When c is nil a new initiating call row is created first.
func (s *Scheduler) place(ctx context.Context, r residents.Resident, c *calls.Call, now time.Time) (calls.Call, error) {
	if c == nil {
		created, err := s.newCall(ctx, r, calls.StatusInitiating)
		if err != nil {
			return calls.Call{}, err
		}
		c = &created
	}

	firstCall := c.CallNumber == 1
	req := telephony.CreateCallRequest{
		AgentID:    s.cfg.AgentID,
		ToNumber:   r.PhoneNumber,
		FromNumber: s.cfg.FromNumber,
		DynamicVariables: map[string]string{
			"resident_name": r.Name,
			"call_number":   strconv.Itoa(c.CallNumber),
			"is_first_call": strconv.FormatBool(firstCall),
		},
		Metadata: telephony.CallMetadata{
			InternalCallID: c.ID,
			ResidentID:     r.ID,
			CallNumber:     c.CallNumber,
			IsFirstCall:    firstCall,
		},
	}
	placed, err := s.placer.CreatePhoneCall(ctx, req)
	if err != nil {
		if _, ferr := s.lifecycle.InitiationFailed(ctx, c.ID, err); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return *c, fmt.Errorf("place call %s: %w", c.ID, err)
	}

	updated, err := s.calls.Update(ctx, c.ID, func(cur *calls.Call) error {
		if cur.ProviderCallID == "" {
			cur.ProviderCallID = placed.CallID
		}
		return nil
	})
	if err != nil {
		return *c, fmt.Errorf("store provider call id for %s: %w", c.ID, err)
	}
	if err := s.residents.SetLastOutboundCall(ctx, r.ID, now.UTC()); err != nil {
		return updated, fmt.Errorf("update last outbound call for %s: %w", r.ID, err)
	}
	return updated, nil
}

func (s *Scheduler) newCall(ctx context.Context, r residents.Resident, status calls.Status) (calls.Call, error) {
	n, err := s.calls.CountForResident(ctx, r.ID)
	if err != nil {
		return calls.Call{}, err
	}
	c := calls.Call{
		ID:         uuid.NewString(),
		ResidentID: r.ID,
		FacilityID: r.FacilityID,
		Direction:  calls.DirectionOutbound,
		Status:     status,
		CallNumber: n + 1,
	}
	if err := s.calls.Create(ctx, c); err != nil {
		return calls.Call{}, fmt.Errorf("create call: %w", err)
	}
	return c, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
