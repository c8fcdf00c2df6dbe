package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// backends runs the same contract against both implementations.
func backends(t *testing.T, h History) map[string]Queue {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Queue{
		"memory": NewMemoryQueue(h),
		"redis":  NewRedisQueue(rdb, RedisOptions{Prefix: "test:", History: h}),
	}
}

func mustJob(t *testing.T, p Payload, now time.Time) Job {
	t.Helper()
	j, err := NewJob(p, Options{}, now)
	require.NoError(t, err)
	return j
}

func TestQueue_PriorityOrder(t *testing.T) {
	now := time.Now().Add(-time.Minute)
	for name, q := range backends(t, History{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := q.Enqueue(ctx, mustJob(t, ExtractAudioClip{SegmentID: "s1"}, now))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now.Add(time.Second)))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, mustJob(t, ScheduledTick{}, now.Add(2*time.Second)))
			require.NoError(t, err)

			var order []Type
			for i := 0; i < 3; i++ {
				j, err := q.Dequeue(ctx, time.Now())
				require.NoError(t, err)
				require.NotNil(t, j)
				require.Equal(t, 1, j.Attempts)
				order = append(order, j.Type)
			}
			require.Equal(t, []Type{TypeScheduledTick, TypeProcessCall, TypeExtractAudioClip}, order)

			j, err := q.Dequeue(ctx, time.Now())
			require.NoError(t, err)
			require.Nil(t, j)
		})
	}
}

func TestQueue_DuplicateEnqueueIsNoop(t *testing.T) {
	now := time.Now()
	for name, q := range backends(t, History{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			added, err := q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
			require.NoError(t, err)
			require.True(t, added)

			added, err = q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
			require.NoError(t, err)
			require.False(t, added)

			j, err := q.Dequeue(ctx, now)
			require.NoError(t, err)
			require.NotNil(t, j)

			// Still active: a redelivered webhook must not stack a second run.
			added, err = q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
			require.NoError(t, err)
			require.False(t, added)

			require.NoError(t, q.Complete(ctx, *j))
			added, err = q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
			require.NoError(t, err)
			require.True(t, added)
		})
	}
}

func TestQueue_RetryWaitsForRunAt(t *testing.T) {
	now := time.Now()
	for name, q := range backends(t, History{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
			require.NoError(t, err)
			j, err := q.Dequeue(ctx, now)
			require.NoError(t, err)

			require.NoError(t, q.Retry(ctx, *j, now.Add(time.Minute)))
			got, err := q.Dequeue(ctx, now.Add(30*time.Second))
			require.NoError(t, err)
			require.Nil(t, got)

			got, err = q.Dequeue(ctx, now.Add(2*time.Minute))
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, 2, got.Attempts)
		})
	}
}

func TestQueue_HistoryIsBoundedAndRequeueable(t *testing.T) {
	now := time.Now()
	for name, q := range backends(t, History{Completed: 2, Failed: 2}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				_, err := q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: id}, now))
				require.NoError(t, err)
				j, err := q.Dequeue(ctx, now)
				require.NoError(t, err)
				require.NoError(t, q.Fail(ctx, *j))
			}

			failed, err := q.Failed(ctx, 10)
			require.NoError(t, err)
			require.Len(t, failed, 2)
			require.Equal(t, "process-call:c", failed[0].ID)

			_, err = q.Get(ctx, "process-call:a")
			require.ErrorIs(t, err, ErrNotFound)

			j, err := q.Requeue(ctx, "process-call:b", now)
			require.NoError(t, err)
			require.Equal(t, 0, j.Attempts)
			require.Equal(t, StatusWaiting, j.Status)

			_, err = q.Requeue(ctx, "process-call:b", now)
			require.ErrorIs(t, err, ErrNotFailed)

			failed, err = q.Failed(ctx, 10)
			require.NoError(t, err)
			require.Len(t, failed, 1)

			got, err := q.Dequeue(ctx, now)
			require.NoError(t, err)
			require.Equal(t, "process-call:b", got.ID)
		})
	}
}

func TestRedisQueue_TickLeaseOutlivesJobLease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := NewRedisQueue(rdb, RedisOptions{Prefix: "lease:", Lease: 10 * time.Minute, TickLease: 45 * time.Minute})

	ctx := context.Background()
	now := time.Now()
	_, err := q.Enqueue(ctx, mustJob(t, ScheduledTick{}, now))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, mustJob(t, ProcessCall{CallID: "c1"}, now))
	require.NoError(t, err)

	tick, err := q.Dequeue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, TypeScheduledTick, tick.Type)
	call, err := q.Dequeue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, TypeProcessCall, call.Type)

	// Past the job lease but inside the tick lease: only the call is reclaimed.
	later := now.Add(15 * time.Minute)
	got, err := q.Dequeue(ctx, later)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, call.ID, got.ID)
	require.Equal(t, 2, got.Attempts)

	got, err = q.Dequeue(ctx, later)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = q.Dequeue(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, tick.ID, got.ID)
}
