// Command ingest runs the ingestion pipeline once for a single feed and
// prints the run result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"newsfeed/backend/internal/app"
	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
	"newsfeed/backend/internal/service"
	"newsfeed/backend/internal/snowflake"
)

func main() {
	os.Exit(run())
}

func run() int {
	feedID := flag.Int64("feed-id", 0, "id of a registered feed")
	feedURL := flag.String("url", "", "feed URL; registered first when unknown")
	flag.Parse()

	if (*feedID == 0) == (*feedURL == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -feed-id or -url is required")
		flag.Usage()
		return 2
	}

	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	if err := snowflake.Init(cfg.NodeID); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	feed, err := resolveFeed(ctx, a, *feedID, *feedURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	result := a.Pipeline.IngestFeed(ctx, feed.ID, feed.URL)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if result.Failed() {
		return 1
	}
	return 0
}

func resolveFeed(ctx context.Context, a *app.App, id int64, rawURL string) (model.Feed, error) {
	if id != 0 {
		feed, err := a.Feeds.GetByID(ctx, id)
		if err != nil {
			return model.Feed{}, fmt.Errorf("load feed %d: %w", id, err)
		}
		return feed, nil
	}

	feed, err := service.NewFeedService(a.Feeds).Add(ctx, rawURL, "")
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, service.ErrConflict) {
		return model.Feed{}, fmt.Errorf("register feed: %w", err)
	}

	feeds, err := a.Feeds.List(ctx)
	if err != nil {
		return model.Feed{}, fmt.Errorf("list feeds: %w", err)
	}
	for _, f := range feeds {
		if f.URL == strings.TrimSpace(rawURL) {
			return f, nil
		}
	}
	return model.Feed{}, fmt.Errorf("register feed: %w", repository.ErrNotFound)
}
