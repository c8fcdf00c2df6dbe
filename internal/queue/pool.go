package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"carecall-platform/pkg/logger"
)

var ErrNoHandler = errors.New("queue: no handler registered")

// Handlers routes each payload variant to its handler.
type Handlers struct {
	ProcessCall      func(ctx context.Context, p ProcessCall) error
	ExtractAudioClip func(ctx context.Context, p ExtractAudioClip) error
	ScheduledTick    func(ctx context.Context, p ScheduledTick) error
}

// Dispatch decodes j and calls the matching handler. Undecodable jobs are fatal.
func (h Handlers) Dispatch(ctx context.Context, j Job) error {
	payload, err := Decode(j)
	if err != nil {
		return Fatal(err)
	}
	switch p := payload.(type) {
	case ProcessCall:
		if h.ProcessCall == nil {
			return Fatal(fmt.Errorf("%w: %s", ErrNoHandler, j.Type))
		}
		return h.ProcessCall(ctx, p)
	case ExtractAudioClip:
		if h.ExtractAudioClip == nil {
			return Fatal(fmt.Errorf("%w: %s", ErrNoHandler, j.Type))
		}
		return h.ExtractAudioClip(ctx, p)
	case ScheduledTick:
		if h.ScheduledTick == nil {
			return Fatal(fmt.Errorf("%w: %s", ErrNoHandler, j.Type))
		}
		return h.ScheduledTick(ctx, p)
	default:
		return Fatal(fmt.Errorf("%w: %T", ErrUnknownJobType, payload))
	}
}

type PoolConfig struct {
	Concurrency int
	BackoffBase time.Duration
	// PollInterval is how long an idle worker waits before asking the queue again.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Pool runs a fixed number of workers against a Queue.
type Pool struct {
	q        Queue
	handlers Handlers
	cfg      PoolConfig
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	abort   context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// finishTimeout bounds the queue write that records a job's outcome.
const finishTimeout = 10 * time.Second

func NewPool(q Queue, h Handlers, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Pool{
		q:        q,
		handlers: h,
		cfg:      cfg,
		log:      logger.OrDiscard(cfg.Logger).With("component", "worker_pool"),
		now:      time.Now,
	}
}

// Start launches the workers. Cancelling ctx or calling Stop stops them from
// claiming new jobs; jobs already running keep their own context until Stop
// gives up waiting for them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("queue: pool already started")
	}
	claimCtx, cancel := context.WithCancel(ctx)
	jobCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel, p.abort = cancel, abort
	p.running = true

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(claimCtx, jobCtx, i)
	}
	p.log.Info("worker pool started", "concurrency", p.cfg.Concurrency)
	return nil
}

// Stop stops claiming and waits for in-flight jobs. When ctx expires first the
// running handlers are cancelled and their outcome is still recorded.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	abort := p.abort
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		abort()
		p.log.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		abort()
		<-done
		p.log.Warn("worker pool stopped with jobs cancelled", "err", ctx.Err())
		return ctx.Err()
	}
}

func (p *Pool) worker(claimCtx, jobCtx context.Context, n int) {
	defer p.wg.Done()
	log := p.log.With("worker", n)
	for {
		if claimCtx.Err() != nil {
			return
		}
		worked, err := p.runOnce(claimCtx, jobCtx)
		if err != nil {
			log.Error("queue operation failed", "err", err)
		}
		if worked {
			continue
		}
		select {
		case <-claimCtx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was claimed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	return p.runOnce(ctx, ctx)
}

func (p *Pool) runOnce(claimCtx, jobCtx context.Context) (bool, error) {
	j, err := p.q.Dequeue(claimCtx, p.now())
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}

	log := p.log.With("job_id", j.ID, "job_type", string(j.Type), "attempt", j.Attempts)
	started := p.now()
	runErr := p.run(jobCtx, *j)
	done := p.now()

	// The outcome is written even when the job context was cancelled mid-run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), finishTimeout)
	defer cancel()

	if runErr == nil {
		j.LastError = ""
		j.FinishedAt = &done
		log.Info("job completed", "duration_ms", done.Sub(started).Milliseconds())
		return true, p.q.Complete(ctx, *j)
	}

	j.LastError = runErr.Error()
	if IsFatal(runErr) || j.Attempts >= j.MaxAttempts {
		j.FinishedAt = &done
		log.Error("job failed", "err", runErr, "fatal", IsFatal(runErr), "max_attempts", j.MaxAttempts)
		return true, p.q.Fail(ctx, *j)
	}

	delay := RetryDelay(p.cfg.BackoffBase, j.Attempts)
	log.Warn("job attempt failed, retrying", "err", runErr, "retry_in", delay.String())
	return true, p.q.Retry(ctx, *j, done.Add(delay))
}

func (p *Pool) run(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handlers.Dispatch(logger.With(ctx, p.log.With("job_id", j.ID)), j)
}

// RetryDelay is base doubled per failed attempt, capped at 64x base.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base * 64
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
