package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/github"
	"github.com/ericfisherdev/classbuild/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/classbuild/internal/adapter/driven/natsevents"
	"github.com/ericfisherdev/classbuild/internal/adapter/driven/redisqueue"
	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/classbuild/internal/adapter/driving/http"
	"github.com/ericfisherdev/classbuild/internal/adapter/driving/scheduler"
	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/config"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"public_url", cfg.PublicURL,
		"redis_addr", cfg.RedisAddr,
		"reconcile_enabled", cfg.ReconcileEnabled(),
		"sweep_interval", cfg.SweepInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	roster := sqliteadapter.NewRosterRepo(db)
	commits := sqliteadapter.NewCommitRepo(db)
	builds := sqliteadapter.NewBuildRepo(db)

	// 4. Job queue. An unreachable Redis is reported by the health check
	// rather than preventing startup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	queue := redisqueue.New(rdb, cfg.RedisQueue)
	if err := queue.Ping(ctx); err != nil {
		slog.Warn("job queue unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	// 5. Metrics and event publishing.
	recorder := metrics.NewRecorder(nil)
	recorder.RegisterQueueDepth(func() float64 {
		depthCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := queue.Depth(depthCtx)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	})

	var publisher driven.BuildEventPublisher = driven.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := natsevents.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	} else {
		slog.Info("no nats url configured, build events are not published")
	}

	// 6. Application services.
	clock := application.SystemClock{}
	dispatcher := application.NewBuildDispatcher(queue, cfg.GitHubOrg, cfg.CallbackURL())
	processor := application.NewPushProcessor(commits, dispatcher, recorder)
	decoder := githubadapter.NewWebhookDecoder(cfg.WebhookSecret)

	svc := httphandler.Services{
		Ingest:     application.NewIngestService(decoder, roster, commits, processor, clock, application.NewBuildRequestToken),
		Completion: application.NewCompletionService(commits, builds, publisher, recorder),
		Progress:   application.NewProgressService(roster, commits, queue, clock),
		History:    application.NewHistoryService(roster, builds, commits),
		Metrics:    recorder.Handler(),
		Health: map[string]httphandler.Pinger{
			"database": db,
			"queue":    queue,
		},
	}

	// 7. Reconciliation and its scheduled sweep need source-host access.
	var sched *scheduler.Scheduler
	if cfg.ReconcileEnabled() {
		ghClient := githubadapter.NewClient(cfg.GitHubToken)
		svc.Reconcile = application.NewReconcileService(
			roster, commits, ghClient, processor, recorder, clock,
			application.NewBuildRequestToken,
			application.ReconcileConfig{DefaultOrg: cfg.GitHubOrg, FetchConcurrency: cfg.FetchConcurrency},
		)

		if cfg.SweepInterval > 0 {
			sched, err = scheduler.New(svc.Reconcile)
			if err != nil {
				return err
			}
			if _, err := sched.ScheduleSweep(cfg.SweepInterval); err != nil {
				return err
			}
			sched.Start()
		}
	} else {
		slog.Info("no github token configured, missed-commit reconciliation disabled")
	}

	// 8. HTTP server.
	handler := httphandler.NewServeMux(httphandler.NewHandler(svc, cfg.AdminToken, slog.Default()), slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // Admin reconciliation runs synchronously.
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("classbuild started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			slog.Error("scheduler shutdown error", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}
