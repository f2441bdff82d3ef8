package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsfeed/backend/internal/app"
	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/handler"
	transport "newsfeed/backend/internal/http"
	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/scheduler"
	"newsfeed/backend/internal/service"
	"newsfeed/backend/internal/snowflake"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if err := snowflake.Init(cfg.NodeID); err != nil {
		logger.Error("snowflake init failed", "module", "main", "action", "init", "resource", "snowflake", "result", "failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("app init failed", "module", "main", "action", "init", "resource", "app", "result", "failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	feedService := service.NewFeedService(a.Feeds)
	articleService := service.NewArticleService(a.Feeds, a.Articles)
	refreshService := service.NewRefreshService(a.Feeds, a.Pipeline, cfg.RefreshWorkers)

	router := transport.NewRouter(
		handler.NewHealthHandler(a.Store),
		handler.NewFeedHandler(feedService, refreshService),
		handler.NewArticleHandler(articleService),
	)

	sched := scheduler.New(refreshService, cfg.RefreshInterval)
	sched.Start()

	go func() {
		logger.Info("server listening", "module", "main", "action", "start", "resource", "http", "result", "ok", "addr", cfg.Addr)
		if err := router.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "module", "main", "action", "start", "resource", "http", "result", "failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "module", "main", "action", "stop", "resource", "app", "result", "ok")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "module", "main", "action", "stop", "resource", "http", "result", "failed", "error", err)
	}
}
