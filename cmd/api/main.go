package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carecall-platform/internal/audit"
	"carecall-platform/internal/auth"
	"carecall-platform/internal/calls"
	"carecall-platform/internal/clips"
	"carecall-platform/internal/config"
	"carecall-platform/internal/httpapi"
	"carecall-platform/internal/lifecycle"
	"carecall-platform/internal/memories"
	"carecall-platform/internal/notify"
	"carecall-platform/internal/pipeline"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/reporting"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/scheduler"
	"carecall-platform/internal/segments"
	"carecall-platform/internal/storage"
	"carecall-platform/internal/telephony"
	"carecall-platform/internal/understanding"
	"carecall-platform/pkg/logger"
	"carecall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "carecall-api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := openStore(rootCtx, cfg.Storage)
	if err != nil {
		log.Error("storage init failed", "provider", cfg.Storage.Provider, "err", err)
		os.Exit(1)
	}

	residentRepo := residents.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	segmentRepo := segments.NewPostgresRepo(db)
	memoryRepo := memories.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	jobQueue := queue.NewRedisQueue(rdb, queue.RedisOptions{
		History: queue.History{Completed: cfg.Queue.CompletedHistory, Failed: cfg.Queue.FailedHistory},
	})
	jobs := queue.NewClient(jobQueue, cfg.Queue.MaxAttempts)

	dispatcher := notify.NewDispatcher(256, log,
		notify.NewRedisPublisher(rdb, notify.DefaultChannel),
		notify.LogObserver{Log: log},
	)
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	go dispatcher.Run(notifyCtx)

	fetcher := storage.NewFetcher(2 * time.Minute)
	copier := storage.Copier{Fetcher: fetcher, Store: store}

	processor := lifecycle.NewProcessor(lifecycle.Deps{
		Calls:          callRepo,
		Residents:      residentRepo,
		Jobs:           jobs,
		Copier:         copier,
		Notifier:       dispatcher,
		Audit:          auditSvc,
		RecordingHosts: cfg.Telephony.RecordingHosts,
		Logger:         log,
	})

	schedCfg, err := scheduler.ConfigFrom(cfg)
	if err != nil {
		log.Error("scheduler config failed", "err", err)
		os.Exit(1)
	}
	voice := telephony.NewVoiceAgentClient(telephony.ClientConfig{
		BaseURL:    cfg.Telephony.BaseURL,
		APIKey:     cfg.Telephony.APIKey,
		AgentID:    cfg.Telephony.AgentID,
		FromNumber: cfg.Telephony.FromNumber,
		Timeout:    15 * time.Second,
	})
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Residents: residentRepo,
		Calls:     callRepo,
		Placer:    voice,
		Lifecycle: processor,
		Locker:    scheduler.NewRedisLock(rdb, "", 0),
		Logger:    log,
	})

	post := pipeline.New(pipeline.Deps{
		Calls:    callRepo,
		Segments: segmentRepo,
		Memories: memoryRepo,
		Understanding: understanding.NewClient(understanding.Config{
			BaseURL: cfg.Understanding.BaseURL,
			APIKey:  cfg.Understanding.APIKey,
			Timeout: time.Minute,
		}),
		Recordings: lifecycle.RecordingKeeper{Calls: callRepo, Copier: copier, Hosts: cfg.Telephony.RecordingHosts},
		Jobs:       jobs,
		Audit:      auditSvc,
		Logger:     log,
	})

	extractor := clips.NewExtractor(clips.Deps{
		Segments: segmentRepo,
		Calls:    callRepo,
		Store:    store,
		Fetcher:  fetcher,
		Cutter:   clips.FFmpeg{Path: cfg.Media.FFmpegPath},
		Logger:   log,
	})

	pool := queue.NewPool(jobQueue, queue.Handlers{
		ProcessCall:      post.ProcessCall,
		ExtractAudioClip: extractor.ExtractAudioClip,
		ScheduledTick: func(ctx context.Context, _ queue.ScheduledTick) error {
			_, err := sched.Tick(ctx)
			return err
		},
	}, queue.PoolConfig{
		Concurrency: cfg.Queue.Concurrency,
		BackoffBase: cfg.Queue.BackoffBase,
		Logger:      log,
	})
	if err := pool.Start(rootCtx); err != nil {
		log.Error("worker pool start failed", "err", err)
		os.Exit(1)
	}

	go runTicker(rootCtx, log, jobs, cfg.Scheduler.TickInterval)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		DB:      db,
		Redis:   rdb,
		Voice:   voice,
		Webhook: telephony.WebhookHandler{Secret: cfg.Telephony.WebhookSecret, Processor: processor},
		AuthMW:  auth.RequireAccessToken(authManager),
		Admin: httpapi.Handlers{
			Jobs:      jobs,
			Residents: residentRepo,
			Placer:    sched,
			Reports:   reporting.NewService(callRepo),
			Audit:     auditSvc,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error("worker pool shutdown failed", "err", err)
	}

	stopNotify()
	select {
	case <-dispatcher.Done():
	case <-shutdownCtx.Done():
	}
	if n := dispatcher.Dropped(); n > 0 {
		log.Warn("status notifications dropped", "count", n)
	}
}

func openStore(ctx context.Context, c config.StorageConfig) (storage.Store, error) {
	if c.Provider == "s3" {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			Region:          c.Region,
			Bucket:          c.Bucket,
			Endpoint:        c.Endpoint,
			PublicBaseURL:   c.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	fs, err := storage.NewFileSystemStore(c.Bucket, c.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// runTicker enqueues one scheduled tick per interval window. Replicas racing on
// the same window collapse onto the same job id.
func runTicker(ctx context.Context, log *slog.Logger, jobs *queue.Client, interval time.Duration) {
	enqueue := func(now time.Time) {
		_, added, err := jobs.AddWith(ctx, queue.ScheduledTick{}, queue.Options{ID: queue.TickID(now, interval)})
		if err != nil {
			log.Error("tick enqueue failed", "err", err)
			return
		}
		if added {
			log.Debug("tick enqueued")
		}
	}

	enqueue(time.Now())
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			enqueue(now)
		}
	}
}
