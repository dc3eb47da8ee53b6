package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	githubadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/github"
	"github.com/ericfisherdev/classbuild/internal/adapter/driven/redisqueue"
	sqliteadapter "github.com/ericfisherdev/classbuild/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/classbuild/internal/application"
	"github.com/ericfisherdev/classbuild/internal/config"
)

// pipeline bundles the stores and queue a command needs to run services
// against the same backends as the server.
type pipeline struct {
	cfg     *config.Config
	db      *sqliteadapter.DB
	redis   *redis.Client
	queue   *redisqueue.Queue
	roster  *sqliteadapter.RosterRepo
	commits *sqliteadapter.CommitRepo
}

func (c *cli) openPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := c.openDB(ctx)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	queue := redisqueue.New(rdb, cfg.RedisQueue)
	if err := queue.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("job queue at %s: %w", cfg.RedisAddr, err)
	}

	return &pipeline{
		cfg:     cfg,
		db:      db,
		redis:   rdb,
		queue:   queue,
		roster:  sqliteadapter.NewRosterRepo(db),
		commits: sqliteadapter.NewCommitRepo(db),
	}, nil
}

func (p *pipeline) close() {
	_ = p.redis.Close()
}

func (p *pipeline) reconcileService() (*application.ReconcileService, error) {
	if !p.cfg.ReconcileEnabled() {
		return nil, errors.New("CLASSBUILD_GITHUB_TOKEN is required for reconciliation")
	}

	dispatcher := application.NewBuildDispatcher(p.queue, p.cfg.GitHubOrg, p.cfg.CallbackURL())
	processor := application.NewPushProcessor(p.commits, dispatcher, nil)

	return application.NewReconcileService(
		p.roster, p.commits, githubadapter.NewClient(p.cfg.GitHubToken), processor, nil,
		application.SystemClock{}, application.NewBuildRequestToken,
		application.ReconcileConfig{DefaultOrg: p.cfg.GitHubOrg, FetchConcurrency: p.cfg.FetchConcurrency},
	), nil
}
