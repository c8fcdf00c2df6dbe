// Command carecallctl inspects and nudges a running carecall deployment.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"carecall-platform/internal/auth"
	"carecall-platform/internal/calls"
	"carecall-platform/internal/config"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/scheduler"
	"carecall-platform/pkg/utils"
)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openEnv connects to the deployment described by the process environment.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return nil, err
	}
	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	schedCfg, err := scheduler.ConfigFrom(cfg)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return nil, err
	}
	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return nil, err
	}

	jobQueue := queue.NewRedisQueue(rdb, queue.RedisOptions{
		History: queue.History{Completed: cfg.Queue.CompletedHistory, Failed: cfg.Queue.FailedHistory},
	})
	residentRepo := residents.NewPostgresRepo(db)
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Residents: residentRepo,
		Calls:     calls.NewPostgresRepo(db),
	})

	return &env{
		Jobs:         queue.NewClient(jobQueue, cfg.Queue.MaxAttempts),
		Residents:    residentRepo,
		Eligibility:  sched,
		Tokens:       tokens,
		TickInterval: cfg.Scheduler.TickInterval,
		Now:          time.Now,
		Close: func() {
			_ = db.Close()
			_ = rdb.Close()
		},
	}, nil
}
