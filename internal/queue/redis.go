package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures key layout and retention for RedisQueue.
type RedisOptions struct {
	Prefix  string
	History History
	// Lease is how long a dequeued job may stay active before another worker may claim it.
	Lease time.Duration
	// TickLease replaces Lease for scheduled-tick jobs, which sleep between calls and
	// may hold the tick lock for its full TTL. Defaults to 45m.
	TickLease time.Duration
}

// RedisQueue keeps jobs in Redis:
//
//	<prefix>jobs       hash   id -> job json
//	<prefix>status     hash   id -> status
//	<prefix>scores     hash   id -> waiting score (priority, then age)
//	<prefix>waiting    zset   ready jobs by score
//	<prefix>delayed    zset   retry/delayed jobs by run-at ms
//	<prefix>active     zset   claimed jobs by lease deadline ms
//	<prefix>completed  list   recent completed ids, newest first
//	<prefix>failed     list   recent failed ids, newest first
type RedisQueue struct {
	rdb       *redis.Client
	history   History
	lease     time.Duration
	tickLease time.Duration

	jobsKey, statusKey, scoresKey     string
	waitingKey, delayedKey, activeKey string
	completedKey, failedKey           string
}

func NewRedisQueue(rdb *redis.Client, opts RedisOptions) *RedisQueue {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "carecall:queue:"
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	tickLease := opts.TickLease
	if tickLease <= 0 {
		tickLease = 45 * time.Minute
	}
	return &RedisQueue{
		rdb:          rdb,
		history:      opts.History.withDefaults(),
		lease:        lease,
		tickLease:    tickLease,
		jobsKey:      prefix + "jobs",
		statusKey:    prefix + "status",
		scoresKey:    prefix + "scores",
		waitingKey:   prefix + "waiting",
		delayedKey:   prefix + "delayed",
		activeKey:    prefix + "active",
		completedKey: prefix + "completed",
		failedKey:    prefix + "failed",
	}
}

var enqueueScript = redis.NewScript(`
-- KEYS: jobs, status, scores, waiting, delayed, completed, failed
-- ARGV: id, job json, score, run_at_ms, now_ms
local st = redis.call('HGET', KEYS[2], ARGV[1])
if st == 'waiting' or st == 'active' then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], 'waiting')
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('LREM', KEYS[6], 0, ARGV[1])
redis.call('LREM', KEYS[7], 0, ARGV[1])
if tonumber(ARGV[4]) > tonumber(ARGV[5]) then
  redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1])
else
  redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
end
return 1
`)

var dequeueScript = redis.NewScript(`
-- KEYS: waiting, delayed, active, status, scores
-- ARGV: now_ms, lease_ms
local function promote(set)
  local due = redis.call('ZRANGEBYSCORE', set, '-inf', ARGV[1], 'LIMIT', 0, 100)
  for _, id in ipairs(due) do
    redis.call('ZREM', set, id)
    redis.call('HSET', KEYS[4], id, 'waiting')
    redis.call('ZADD', KEYS[1], redis.call('HGET', KEYS[5], id) or 0, id)
  end
end
promote(KEYS[2])
promote(KEYS[3])
local head = redis.call('ZRANGE', KEYS[1], 0, 0)
if #head == 0 then
  return false
end
local id = head[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[3], tonumber(ARGV[1]) + tonumber(ARGV[2]), id)
redis.call('HSET', KEYS[4], id, 'active')
return id
`)

var finishScript = redis.NewScript(`
-- KEYS: jobs, status, scores, active, history list
-- ARGV: id, job json, final status, history max
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('LREM', KEYS[5], 0, ARGV[1])
redis.call('LPUSH', KEYS[5], ARGV[1])
while redis.call('LLEN', KEYS[5]) > tonumber(ARGV[4]) do
  local old = redis.call('RPOP', KEYS[5])
  if redis.call('HGET', KEYS[2], old) == ARGV[3] then
    redis.call('HDEL', KEYS[1], old)
    redis.call('HDEL', KEYS[2], old)
  end
end
return 1
`)

var retryScript = redis.NewScript(`
-- KEYS: jobs, status, active, delayed
-- ARGV: id, job json, run_at_ms
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], 'waiting')
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return 1
`)

var requeueScript = redis.NewScript(`
-- KEYS: jobs, status, scores, waiting, failed
-- ARGV: id, job json, score
if redis.call('HGET', KEYS[2], ARGV[1]) ~= 'failed' then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], 'waiting')
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('LREM', KEYS[5], 0, ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return 1
`)

// waitingScore orders by priority first, then by creation time.
func waitingScore(j Job) float64 {
	return float64(j.Priority)*1e13 + float64(j.CreatedAt.UnixMilli())
}

func (q *RedisQueue) Enqueue(ctx context.Context, j Job) (bool, error) {
	if j.ID == "" || j.Type == "" {
		return false, ErrInvalidJob
	}
	j.Status = StatusWaiting
	raw, err := json.Marshal(j)
	if err != nil {
		return false, err
	}
	n, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobsKey, q.statusKey, q.scoresKey, q.waitingKey, q.delayedKey, q.completedKey, q.failedKey},
		j.ID, raw, waitingScore(j), j.RunAt.UnixMilli(), time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", j.ID, err)
	}
	return n == 1, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, now time.Time) (*Job, error) {
	id, err := dequeueScript.Run(ctx, q.rdb,
		[]string{q.waitingKey, q.delayedKey, q.activeKey, q.statusKey, q.scoresKey},
		now.UnixMilli(), q.lease.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	j, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Type == TypeScheduledTick && q.tickLease != q.lease {
		deadline := float64(now.Add(q.tickLease).UnixMilli())
		if err := q.rdb.ZAddXX(ctx, q.activeKey, redis.Z{Score: deadline, Member: id}).Err(); err != nil {
			return nil, fmt.Errorf("extend lease for %s: %w", id, err)
		}
	}
	j.Status = StatusActive
	j.Attempts++
	j.UpdatedAt = now.UTC()
	if err := q.save(ctx, j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (q *RedisQueue) Complete(ctx context.Context, j Job) error {
	return q.finish(ctx, j, StatusCompleted, q.completedKey, q.history.Completed)
}

func (q *RedisQueue) Fail(ctx context.Context, j Job) error {
	return q.finish(ctx, j, StatusFailed, q.failedKey, q.history.Failed)
}

func (q *RedisQueue) finish(ctx context.Context, j Job, status Status, listKey string, max int) error {
	j.Status = status
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	err = finishScript.Run(ctx, q.rdb,
		[]string{q.jobsKey, q.statusKey, q.scoresKey, q.activeKey, listKey},
		j.ID, raw, string(status), max,
	).Err()
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", j.ID, status, err)
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, j Job, runAt time.Time) error {
	j.Status = StatusWaiting
	j.RunAt = runAt.UTC()
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	err = retryScript.Run(ctx, q.rdb,
		[]string{q.jobsKey, q.statusKey, q.activeKey, q.delayedKey},
		j.ID, raw, runAt.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("retry %s: %w", j.ID, err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (Job, error) {
	raw, err := q.rdb.HGet(ctx, q.jobsKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return j, nil
}

func (q *RedisQueue) Completed(ctx context.Context, limit int) ([]Job, error) {
	return q.readHistory(ctx, q.completedKey, StatusCompleted, limit)
}

func (q *RedisQueue) Failed(ctx context.Context, limit int) ([]Job, error) {
	return q.readHistory(ctx, q.failedKey, StatusFailed, limit)
}

func (q *RedisQueue) Requeue(ctx context.Context, id string, now time.Time) (Job, error) {
	j, err := q.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if j.Status != StatusFailed {
		return Job{}, ErrNotFailed
	}
	j = resetForRequeue(j, now)
	raw, err := json.Marshal(j)
	if err != nil {
		return Job{}, err
	}
	n, err := requeueScript.Run(ctx, q.rdb,
		[]string{q.jobsKey, q.statusKey, q.scoresKey, q.waitingKey, q.failedKey},
		j.ID, raw, waitingScore(j),
	).Int()
	if err != nil {
		return Job{}, fmt.Errorf("requeue %s: %w", id, err)
	}
	if n == 0 {
		return Job{}, ErrNotFailed
	}
	return j, nil
}

func (q *RedisQueue) save(ctx context.Context, j Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	if err := q.rdb.HSet(ctx, q.jobsKey, j.ID, raw).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

func (q *RedisQueue) readHistory(ctx context.Context, listKey string, status Status, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.rdb.LRange(ctx, listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", status, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raws, err := q.rdb.HMGet(ctx, q.jobsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s jobs: %w", status, err)
	}
	out := make([]Job, 0, len(raws))
	for _, r := range raws {
		s, ok := r.(string)
		if !ok {
			continue
		}
		var j Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			continue
		}
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}
