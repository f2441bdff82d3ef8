package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
)

var ErrAlreadyRefreshing = errors.New("refresh already in progress")

// Ingester runs the ingestion pipeline for one feed.
type Ingester interface {
	IngestFeed(ctx context.Context, feedID int64, feedURL string) ingest.IngestResult
}

// RefreshSummary aggregates one sweep over all feeds.
type RefreshSummary struct {
	Feeds    int `json:"feeds"`
	Failed   int `json:"failed"`
	Inserted int `json:"inserted"`
}

type RefreshService interface {
	RefreshAll(ctx context.Context) (RefreshSummary, error)
	RefreshFeed(ctx context.Context, feedID int64) (ingest.IngestResult, error)
	IsRefreshing() bool
}

type refreshService struct {
	feeds    repository.FeedRepository
	ingester Ingester
	workers  int

	mu           sync.Mutex
	isRefreshing bool
}

func NewRefreshService(feeds repository.FeedRepository, ingester Ingester, workers int) RefreshService {
	if workers <= 0 {
		workers = 1
	}
	return &refreshService{
		feeds:    feeds,
		ingester: ingester,
		workers:  workers,
	}
}

// RefreshAll ingests every feed with at most workers feeds in flight. A
// failing feed is logged and counted; it never stops the sweep.
func (s *refreshService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	s.mu.Lock()
	if s.isRefreshing {
		s.mu.Unlock()
		return RefreshSummary{}, ErrAlreadyRefreshing
	}
	s.isRefreshing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRefreshing = false
		s.mu.Unlock()
	}()

	feeds, err := s.feeds.List(ctx)
	if err != nil {
		return RefreshSummary{}, err
	}

	var (
		mu      sync.Mutex
		summary = RefreshSummary{Feeds: len(feeds)}
		g       errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := s.ingester.IngestFeed(ctx, feed.ID, feed.URL)

			mu.Lock()
			defer mu.Unlock()
			summary.Inserted += result.Inserted
			if result.Failed() {
				summary.Failed++
				logger.Warn("feed refresh failed", "module", "service", "action", "refresh", "resource", "feed", "result", "failed",
					"feed_id", feed.ID, "url", feed.URL, "reason", result.Reason, "error", result.Error)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	logger.Info("feed refresh completed", "module", "service", "action", "refresh", "resource", "feed", "result", "ok",
		"feeds", summary.Feeds, "failed", summary.Failed, "inserted", summary.Inserted)
	return summary, nil
}

func (s *refreshService) IsRefreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRefreshing
}

func (s *refreshService) RefreshFeed(ctx context.Context, feedID int64) (ingest.IngestResult, error) {
	feed, err := s.getFeed(ctx, feedID)
	if err != nil {
		return ingest.IngestResult{}, err
	}
	return s.ingester.IngestFeed(ctx, feed.ID, feed.URL), nil
}

func (s *refreshService) getFeed(ctx context.Context, feedID int64) (model.Feed, error) {
	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Feed{}, ErrNotFound
		}
		return model.Feed{}, err
	}
	return feed, nil
}
