// Package app wires storage, cache and the ingestion pipeline from Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"newsfeed/backend/internal/cache"
	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/db"
	"newsfeed/backend/internal/handler"
	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/network"
	"newsfeed/backend/internal/repository"
	"newsfeed/backend/internal/repository/postgres"
)

// App owns every long-lived resource. Close releases them in reverse order.
type App struct {
	Feeds    repository.FeedRepository
	Articles repository.ArticleRepository
	Pipeline *ingest.Pipeline
	Store    handler.Pinger

	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}
	if err := a.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	var linkCache ingest.LinkCache
	if cfg.Redis.Enabled() {
		lc, err := cache.NewLinkCache(ctx, cfg.Redis)
		if err != nil {
			// The cache only saves store reads; run without it.
			logger.Warn("link cache disabled", "module", "app", "action", "init", "resource", "cache", "result", "failed", "error", err)
		} else {
			linkCache = lc
			a.closers = append(a.closers, lc)
		}
	}

	factory := network.NewClientFactory(cfg.Fetch.ProxyURL, cfg.Fetch.ConnectTimeout)
	enhancer, err := ingest.NewEnhancer(cfg, factory)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Pipeline = ingest.NewPipeline(
		a.Feeds,
		ingest.NewFetcher(factory, cfg.Fetch),
		ingest.NewParser(),
		ingest.NewDeduplicator(a.Articles, linkCache),
		enhancer,
		ingest.NewWriter(a.Articles, linkCache),
		ingest.Options{
			EnhanceTimeout: cfg.Enhance.Timeout,
			Workers:        cfg.Enhance.Workers,
		},
	)

	logger.Info("app initialized", "module", "app", "action", "init", "resource", "app", "result", "ok",
		"db_driver", cfg.DBDriver, "fetch_client", cfg.Fetch.Client, "enhancer", cfg.Enhance.Mode, "link_cache", linkCache != nil)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.DBDriver {
	case config.DriverSQLite, "":
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, database)
		a.Feeds = repository.NewFeedRepository(database)
		a.Articles = repository.NewArticleRepository(database)
		a.Store = database
	case config.DriverPostgres:
		if cfg.DBURL == "" {
			return errors.New("postgres driver requires NEWSFEED_DATABASE_URL")
		}
		pool, err := postgres.Open(ctx, cfg.DBURL, cfg.RefreshWorkers*cfg.Enhance.Workers+2)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error { pool.Close(); return nil }))
		a.Feeds = postgres.NewFeedRepository(pool)
		a.Articles = postgres.NewArticleRepository(pool)
		a.Store = handler.PingFunc(pool.Ping)
	default:
		return fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
	return nil
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
