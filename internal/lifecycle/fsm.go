// Package lifecycle advances calls through their states in response to provider callbacks
// and placement outcomes.
package lifecycle

import (
	"carecall-platform/internal/calls"
	"carecall-platform/internal/telephony"
)

type Event string

const (
	// EventInitiate moves a manually created call to initiating just before placement.
	EventInitiate         Event = "initiate"
	EventInitiationFailed Event = "initiation_failed"
	EventCallStarted      Event = Event(telephony.EventCallStarted)
	EventCallEnded        Event = Event(telephony.EventCallEnded)
	EventCallAnalyzed     Event = Event(telephony.EventCallAnalyzed)
)

// Effect is a side effect to run after the state write commits.
type Effect uint8

const (
	EffectNotify Effect = 1 << iota
	// EffectFinalize copies the recording and enqueues post-call processing for completed calls.
	EffectFinalize
	// EffectAnnotate attaches the provider's analysis without touching status.
	EffectAnnotate
)

func (e Effect) Has(f Effect) bool { return e&f != 0 }

type key struct {
	from  calls.Status
	event Event
}

// transition describes one legal edge. When byReason is set the next state comes from
// the provider's end reason instead of next.
type transition struct {
	next     calls.Status
	byReason bool
	effects  Effect
	// redelivery marks edges that only exist to absorb duplicate callbacks.
	redelivery bool
}

var table = map[key]transition{
	{calls.StatusScheduled, EventInitiate}:          {next: calls.StatusInitiating, effects: EffectNotify},
	{calls.StatusScheduled, EventInitiationFailed}:  {next: calls.StatusFailed, effects: EffectNotify},
	{calls.StatusInitiating, EventInitiationFailed}: {next: calls.StatusFailed, effects: EffectNotify},

	{calls.StatusInitiating, EventCallStarted}: {next: calls.StatusInProgress, effects: EffectNotify},
	{calls.StatusInProgress, EventCallStarted}: {next: calls.StatusInProgress, redelivery: true},

	// Providers report unanswered calls with call_ended and no call_started.
	{calls.StatusInitiating, EventCallEnded}: {byReason: true, effects: EffectNotify | EffectFinalize},
	{calls.StatusInProgress, EventCallEnded}: {byReason: true, effects: EffectNotify | EffectFinalize},
	{calls.StatusCompleted, EventCallEnded}:  {next: calls.StatusCompleted, effects: EffectFinalize, redelivery: true},
	{calls.StatusNoAnswer, EventCallEnded}:   {next: calls.StatusNoAnswer, redelivery: true},
	{calls.StatusFailed, EventCallEnded}:     {next: calls.StatusFailed, redelivery: true},

	{calls.StatusCompleted, EventCallAnalyzed}: {next: calls.StatusCompleted, effects: EffectAnnotate},
	{calls.StatusNoAnswer, EventCallAnalyzed}:  {next: calls.StatusNoAnswer, effects: EffectAnnotate},
	{calls.StatusFailed, EventCallAnalyzed}:    {next: calls.StatusFailed, effects: EffectAnnotate},
}

// Next looks up the edge for (from, ev). ok is false for combinations the machine does not accept.
func Next(from calls.Status, ev Event, endReason string) (next calls.Status, effects Effect, ok bool) {
	t, ok := lookup(from, ev)
	if !ok {
		return from, 0, false
	}
	return t.resolve(endReason), t.effects, true
}

func lookup(from calls.Status, ev Event) (transition, bool) {
	t, ok := table[key{from: from, event: ev}]
	return t, ok
}

func (t transition) resolve(endReason string) calls.Status {
	if t.byReason {
		return telephony.TerminalStatus(endReason)
	}
	return t.next
}
