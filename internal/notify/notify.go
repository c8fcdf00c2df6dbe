// Package notify fans call status changes out to observers without blocking the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"carecall-platform/pkg/logger"
)

// StatusChanged is published on every call state transition.
type StatusChanged struct {
	CallID     string            `json:"callId"`
	ResidentID string            `json:"residentId"`
	Status     string            `json:"status"`
	Previous   string            `json:"previousStatus,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(ev StatusChanged)
}

// Observer receives events on the dispatcher's goroutine.
type Observer interface {
	Notify(ctx context.Context, ev StatusChanged) error
}

type ObserverFunc func(ctx context.Context, ev StatusChanged) error

func (f ObserverFunc) Notify(ctx context.Context, ev StatusChanged) error { return f(ctx, ev) }

// Dispatcher buffers events in a bounded channel drained by Run.
// When the buffer is full the event is dropped and counted.
type Dispatcher struct {
	ch        chan StatusChanged
	observers []Observer
	log       *slog.Logger
	dropped   atomic.Int64

	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewDispatcher(buffer int, log *slog.Logger, observers ...Observer) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		ch:        make(chan StatusChanged, buffer),
		observers: observers,
		log:       logger.OrDiscard(log),
		timeout:   2 * time.Second,
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) Publish(ev StatusChanged) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.log.Warn("status notification dropped", "call_id", ev.CallID, "status", ev.Status)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Run delivers events until ctx is cancelled, then drains what is already buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) deliver(ev StatusChanged) {
	for _, o := range d.observers {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := o.Notify(ctx, ev); err != nil {
			d.log.Warn("status observer failed", "call_id", ev.CallID, "err", err)
		}
		cancel()
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(StatusChanged) {}

// LogObserver writes each event as a structured log line.
type LogObserver struct {
	Log *slog.Logger
}

func (o LogObserver) Notify(_ context.Context, ev StatusChanged) error {
	logger.OrDiscard(o.Log).Info("call status changed",
		"call_id", ev.CallID,
		"resident_id", ev.ResidentID,
		"status", ev.Status,
		"previous_status", ev.Previous,
	)
	return nil
}
