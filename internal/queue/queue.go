// Package queue is the durable job queue and the worker pool that drains it.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("queue: job not found")
	ErrInvalidJob     = errors.New("queue: invalid job")
	ErrUnknownJobType = errors.New("queue: unknown job type")
	ErrNotFailed      = errors.New("queue: job is not in failed state")
)

// Queue is implemented by RedisQueue and MemoryQueue.
type Queue interface {
	// Enqueue stores j. It reports false when a job with the same id is already waiting or active.
	Enqueue(ctx context.Context, j Job) (bool, error)
	// Dequeue claims the most urgent ready job. It returns nil when nothing is ready.
	Dequeue(ctx context.Context, now time.Time) (*Job, error)
	Complete(ctx context.Context, j Job) error
	// Retry puts j back as waiting, runnable from runAt.
	Retry(ctx context.Context, j Job, runAt time.Time) error
	// Fail parks j in the failed history.
	Fail(ctx context.Context, j Job) error

	Get(ctx context.Context, id string) (Job, error)
	Completed(ctx context.Context, limit int) ([]Job, error)
	Failed(ctx context.Context, limit int) ([]Job, error)
	// Requeue moves a failed job back to waiting with a fresh attempt budget.
	Requeue(ctx context.Context, id string, now time.Time) (Job, error)
}

type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

// Fatal marks err as not worth retrying; the pool parks the job immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

func IsFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}
