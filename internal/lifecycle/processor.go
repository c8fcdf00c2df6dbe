package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"carecall-platform/internal/audit"
	"carecall-platform/internal/calls"
	"carecall-platform/internal/notify"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/telephony"
	"carecall-platform/pkg/logger"

	"github.com/google/uuid"
)

// Enqueuer adds background jobs.
type Enqueuer interface {
	Add(ctx context.Context, p queue.Payload) (queue.Job, bool, error)
}

// AnomalyRecorder stores tolerated surprises for later review.
type AnomalyRecorder interface {
	Anomaly(ctx context.Context, typ audit.EventType, e audit.Event, details map[string]any) error
}

type Deps struct {
	Calls     calls.Repository
	Residents residents.Repository
	Jobs      Enqueuer
	// Copier is optional. Without it the durable copy is left to the pipeline.
	Copier   RecordingCopier
	Notifier notify.Publisher
	Audit    AnomalyRecorder
	// RecordingHosts are the provider's expiring recording hosts.
	RecordingHosts []string
	Logger         *slog.Logger
}

// Processor is the only writer of Call.Status.
type Processor struct {
	calls     calls.Repository
	residents residents.Repository
	jobs      Enqueuer
	keeper    RecordingKeeper
	notifier  notify.Publisher
	audit     AnomalyRecorder
	log       *slog.Logger
	now       func() time.Time
}

func NewProcessor(d Deps) *Processor {
	p := &Processor{
		calls:     d.Calls,
		residents: d.Residents,
		jobs:      d.Jobs,
		keeper:    RecordingKeeper{Calls: d.Calls, Copier: d.Copier, Hosts: d.RecordingHosts},
		notifier:  d.Notifier,
		audit:     d.Audit,
		log:       logger.OrDiscard(d.Logger),
		now:       time.Now,
	}
	if p.notifier == nil {
		p.notifier = notify.Discard{}
	}
	return p
}

var (
	errIllegal   = errors.New("lifecycle: illegal transition")
	errUnchanged = errors.New("lifecycle: unchanged")
)

// step is what one advance did.
type step struct {
	call       calls.Call
	from       calls.Status
	effects    Effect
	redelivery bool
	illegal    bool
	written    bool
}

// Process applies a verified provider callback.
//
// Callbacks that cannot be matched to a call, and event/state combinations the machine
// does not accept, are acknowledged with a warning and recorded as anomalies.
func (p *Processor) Process(ctx context.Context, ev telephony.WebhookEvent) (telephony.Outcome, error) {
	log := logger.From(ctx)
	if log == slog.Default() {
		log = p.log
	}
	switch ev.Event {
	case telephony.EventCallStarted, telephony.EventCallEnded, telephony.EventCallAnalyzed:
	default:
		log.Warn("unsupported callback event", "event", string(ev.Event))
		return telephony.Outcome{Warning: "unsupported event"}, nil
	}

	at := ev.OccurredAt(p.now())
	c, err := p.resolve(ctx, ev.Call)
	if errors.Is(err, calls.ErrNotFound) && ev.Call.IsInbound() && ev.Event != telephony.EventCallAnalyzed {
		c, err = p.createInbound(ctx, ev.Call, at)
	}
	if errors.Is(err, calls.ErrNotFound) || errors.Is(err, residents.ErrNotFound) {
		p.unresolved(ctx, log, ev)
		return telephony.Outcome{Warning: "call not found"}, nil
	}
	if err != nil {
		return telephony.Outcome{}, err
	}
	log = log.With("call_id", c.ID, "resident_id", c.ResidentID)

	evt := Event(ev.Event)
	st, err := p.advance(ctx, c.ID, evt, ev.Call.EndReason, func(c *calls.Call, redelivery bool) {
		applyCallback(c, ev, at, redelivery)
	})
	if err != nil {
		return telephony.Outcome{}, err
	}
	if st.illegal {
		p.illegal(ctx, log, st, evt, ev.Call.CallID)
		return telephony.Outcome{Warning: fmt.Sprintf("ignored %s for call in status %s", evt, st.from)}, nil
	}
	if st.redelivery {
		log.Debug("duplicate callback", "event", string(evt))
	}
	return telephony.Outcome{}, p.afterCommit(ctx, log, st, evt)
}

// Initiate moves a scheduled call to initiating before it is placed.
func (p *Processor) Initiate(ctx context.Context, callID string) (calls.Call, error) {
	st, err := p.advance(ctx, callID, EventInitiate, "", nil)
	if err != nil {
		return calls.Call{}, err
	}
	if st.illegal {
		return st.call, fmt.Errorf("%w: cannot initiate call in status %s", errIllegal, st.from)
	}
	p.publish(st)
	return st.call, nil
}

// InitiationFailed records that the provider refused to place the call.
func (p *Processor) InitiationFailed(ctx context.Context, callID string, cause error) (calls.Call, error) {
	now := p.now().UTC()
	st, err := p.advance(ctx, callID, EventInitiationFailed, "", func(c *calls.Call, _ bool) {
		c.EndedAt = &now
		if cause != nil {
			c.EndReason = truncate("initiation_failed: "+cause.Error(), 500)
		}
	})
	if err != nil {
		return calls.Call{}, err
	}
	if st.illegal {
		p.illegal(ctx, p.log, st, EventInitiationFailed, "")
		return st.call, nil
	}
	p.publish(st)
	return st.call, nil
}

func (p *Processor) resolve(ctx context.Context, wc telephony.WebhookCall) (calls.Call, error) {
	if id := wc.InternalCallID(); id != "" {
		c, err := p.calls.Get(ctx, id)
		if err == nil || !errors.Is(err, calls.ErrNotFound) {
			return c, err
		}
	}
	if wc.CallID == "" {
		return calls.Call{}, calls.ErrNotFound
	}
	return p.calls.GetByProviderCallID(ctx, wc.CallID)
}

// createInbound opens a call row for a resident who dialed in.
func (p *Processor) createInbound(ctx context.Context, wc telephony.WebhookCall, at time.Time) (calls.Call, error) {
	if p.residents == nil || strings.TrimSpace(wc.FromNumber) == "" {
		return calls.Call{}, calls.ErrNotFound
	}
	r, err := p.residents.FindByPhone(ctx, wc.FromNumber)
	if err != nil {
		return calls.Call{}, err
	}
	n, err := p.calls.CountForResident(ctx, r.ID)
	if err != nil {
		return calls.Call{}, err
	}
	c := calls.Call{
		ID:             uuid.NewString(),
		ResidentID:     r.ID,
		FacilityID:     r.FacilityID,
		Direction:      calls.DirectionInbound,
		Status:         calls.StatusInProgress,
		ProviderCallID: wc.CallID,
		CallNumber:     n + 1,
		StartedAt:      &at,
	}
	if err := p.calls.Create(ctx, c); err != nil {
		// A concurrent redelivery may have created it first.
		if existing, gerr := p.calls.GetByProviderCallID(ctx, wc.CallID); gerr == nil {
			return existing, nil
		}
		return calls.Call{}, fmt.Errorf("create inbound call: %w", err)
	}
	p.notifier.Publish(notify.StatusChanged{
		CallID:     c.ID,
		ResidentID: c.ResidentID,
		Status:     string(c.Status),
		Timestamp:  at,
		Fields:     map[string]string{"direction": string(c.Direction)},
	})
	return c, nil
}

// advance applies ev to the locked row. mutate runs only for accepted edges and
// a write is skipped when it changes nothing.
func (p *Processor) advance(ctx context.Context, callID string, ev Event, endReason string, mutate func(*calls.Call, bool)) (step, error) {
	var st step
	updated, err := p.calls.Update(ctx, callID, func(c *calls.Call) error {
		st.from = c.Status
		t, ok := lookup(c.Status, ev)
		if !ok {
			st.call = *c
			return errIllegal
		}
		before := *c
		before.Topics = append([]string(nil), c.Topics...)
		if mutate != nil {
			mutate(c, t.redelivery)
		}
		c.Status = t.resolve(endReason)
		st.effects = t.effects
		st.redelivery = t.redelivery
		if reflect.DeepEqual(before, *c) {
			st.call = *c
			return errUnchanged
		}
		return nil
	})
	switch {
	case errors.Is(err, errIllegal):
		st.illegal = true
		return st, nil
	case errors.Is(err, errUnchanged):
		return st, nil
	case err != nil:
		return st, fmt.Errorf("advance call %s on %s: %w", callID, ev, err)
	}
	st.call = updated
	st.written = true
	return st, nil
}

func (p *Processor) afterCommit(ctx context.Context, log *slog.Logger, st step, ev Event) error {
	c := st.call
	if st.effects.Has(EffectNotify) {
		p.publish(st)
	}
	if ev == EventCallEnded && !st.redelivery && c.Direction == calls.DirectionInbound && p.residents != nil {
		at := p.now().UTC()
		if c.EndedAt != nil {
			at = *c.EndedAt
		}
		if err := p.residents.SetLastInboundCall(ctx, c.ResidentID, at); err != nil {
			log.Warn("update last inbound call failed", "err", err)
		}
	}
	if st.effects.Has(EffectFinalize) {
		return p.finalize(ctx, log, c)
	}
	return nil
}

// finalize hands a completed call to the post-call pipeline. The recording copy here is
// best effort; the pipeline retries it.
func (p *Processor) finalize(ctx context.Context, log *slog.Logger, c calls.Call) error {
	if c.Status != calls.StatusCompleted || c.Processed {
		return nil
	}
	if c.NeedsDurableCopy() && p.keeper.Copier != nil {
		updated, err := p.keeper.Persist(ctx, c)
		if err != nil {
			log.Warn("durable recording copy deferred to pipeline", "err", err)
		} else {
			c = updated
		}
	}
	if p.jobs == nil {
		return errors.New("lifecycle: job queue not configured")
	}
	j, added, err := p.jobs.Add(ctx, queue.ProcessCall{CallID: c.ID})
	if err != nil {
		return fmt.Errorf("enqueue process-call for %s: %w", c.ID, err)
	}
	if added {
		log.Info("post-call processing enqueued", "job_id", j.ID)
	}
	return nil
}

func (p *Processor) publish(st step) {
	if st.from == st.call.Status {
		return
	}
	fields := map[string]string{"direction": string(st.call.Direction)}
	if st.call.EndReason != "" {
		fields["end_reason"] = st.call.EndReason
	}
	if st.call.DurationSeconds > 0 {
		fields["duration_seconds"] = fmt.Sprint(st.call.DurationSeconds)
	}
	p.notifier.Publish(notify.StatusChanged{
		CallID:     st.call.ID,
		ResidentID: st.call.ResidentID,
		Status:     string(st.call.Status),
		Previous:   string(st.from),
		Timestamp:  p.now().UTC(),
		Fields:     fields,
	})
}

func (p *Processor) unresolved(ctx context.Context, log *slog.Logger, ev telephony.WebhookEvent) {
	log.Warn("callback did not match any call",
		"event", string(ev.Event),
		"provider_call_id", ev.Call.CallID,
		"internal_call_id", ev.Call.InternalCallID(),
	)
	if p.audit == nil {
		return
	}
	err := p.audit.Anomaly(ctx, audit.EventTypeUnresolvedCallback, audit.Event{
		ProviderCallID: ev.Call.CallID,
		CallID:         ev.Call.InternalCallID(),
		Message:        "callback did not match any call",
	}, map[string]any{"event": string(ev.Event), "direction": ev.Call.Direction})
	if err != nil {
		log.Warn("audit append failed", "err", err)
	}
}

func (p *Processor) illegal(ctx context.Context, log *slog.Logger, st step, ev Event, providerCallID string) {
	log.Warn("ignored callback for call state", "event", string(ev), "status", string(st.from), "call_id", st.call.ID)
	if p.audit == nil {
		return
	}
	err := p.audit.Anomaly(ctx, audit.EventTypeIllegalTransition, audit.Event{
		FacilityID:     st.call.FacilityID,
		CallID:         st.call.ID,
		ProviderCallID: providerCallID,
		Message:        fmt.Sprintf("%s not accepted in status %s", ev, st.from),
	}, map[string]any{"event": string(ev), "status": string(st.from)})
	if err != nil {
		log.Warn("audit append failed", "err", err)
	}
}

// applyCallback copies callback fields onto the call. On redelivery only empty fields are filled.
func applyCallback(c *calls.Call, ev telephony.WebhookEvent, at time.Time, redelivery bool) {
	wc := ev.Call
	if c.ProviderCallID == "" && wc.CallID != "" {
		c.ProviderCallID = wc.CallID
	}
	switch ev.Event {
	case telephony.EventCallStarted:
		if c.StartedAt == nil {
			start := at
			if wc.StartTimestamp > 0 {
				start = time.UnixMilli(wc.StartTimestamp).UTC()
			}
			c.StartedAt = &start
		}
	case telephony.EventCallEnded:
		applyEnded(c, wc, at, redelivery)
		applyAnalysis(c, wc.CallAnalysis, redelivery)
	case telephony.EventCallAnalyzed:
		applyAnalysis(c, wc.CallAnalysis, false)
		if c.Transcript == "" {
			c.TranscriptRaw, c.Transcript = telephony.NormalizeTranscript(wc)
		}
	}
}

func applyEnded(c *calls.Call, wc telephony.WebhookCall, at time.Time, fillOnly bool) {
	if c.StartedAt == nil && wc.StartTimestamp > 0 {
		start := time.UnixMilli(wc.StartTimestamp).UTC()
		c.StartedAt = &start
	}
	if c.EndedAt == nil || !fillOnly {
		end := at
		if wc.EndTimestamp > 0 {
			end = time.UnixMilli(wc.EndTimestamp).UTC()
		}
		c.EndedAt = &end
	}
	if d := durationSeconds(wc); d > 0 && (c.DurationSeconds == 0 || !fillOnly) {
		c.DurationSeconds = d
	}
	if wc.EndReason != "" && (c.EndReason == "" || !fillOnly) {
		c.EndReason = wc.EndReason
	}
	raw, plain := telephony.NormalizeTranscript(wc)
	if plain != "" && (c.Transcript == "" || !fillOnly) {
		c.TranscriptRaw, c.Transcript = raw, plain
	}
	if wc.RecordingURL != "" && (c.RecordingURL == "" || !fillOnly) {
		c.RecordingURL = wc.RecordingURL
	}
}

func applyAnalysis(c *calls.Call, a *telephony.CallAnalysis, fillOnly bool) {
	if a == nil {
		return
	}
	if a.CallSummary != "" && (c.Summary == "" || !fillOnly) {
		c.Summary = a.CallSummary
	}
	if a.UserSentiment != "" && (c.Sentiment == "" || !fillOnly) {
		c.Sentiment = a.UserSentiment
	}
	if len(a.TopicsDiscussed) > 0 && (len(c.Topics) == 0 || !fillOnly) {
		c.Topics = append([]string(nil), a.TopicsDiscussed...)
	}
}

func durationSeconds(wc telephony.WebhookCall) int {
	if wc.DurationMs > 0 {
		return int(wc.DurationMs / 1000)
	}
	if wc.StartTimestamp > 0 && wc.EndTimestamp > wc.StartTimestamp {
		return int((wc.EndTimestamp - wc.StartTimestamp) / 1000)
	}
	return 0
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
