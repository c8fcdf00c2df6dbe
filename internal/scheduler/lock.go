package scheduler

import (
	"context"
	"time"

	"carecall-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker keeps two processes from running a tick at the same time.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisLock is a single-holder lease in Redis.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = "carecall:scheduler:tick"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, l.key, token, l.ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = utils.ReleaseLock(ctx, l.rdb, l.key, token)
	}
	return release, true, nil
}
