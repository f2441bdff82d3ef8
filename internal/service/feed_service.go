package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
)

// FeedService registers feeds and reads them back. Feeds are created out of
// band; ingestion only backfills titles and fetch bookkeeping.
type FeedService interface {
	Add(ctx context.Context, feedURL, title string) (model.Feed, error)
	Get(ctx context.Context, id int64) (model.Feed, error)
	List(ctx context.Context) ([]model.Feed, error)
}

type feedService struct {
	feeds repository.FeedRepository
}

func NewFeedService(feeds repository.FeedRepository) FeedService {
	return &feedService{feeds: feeds}
}

func (s *feedService) Add(ctx context.Context, feedURL, title string) (model.Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if !isValidURL(feedURL) {
		return model.Feed{}, ErrInvalid
	}

	feed, err := s.feeds.Create(ctx, model.Feed{URL: feedURL, Title: strings.TrimSpace(title)})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Feed{}, ErrConflict
		}
		return model.Feed{}, err
	}
	return feed, nil
}

func (s *feedService) Get(ctx context.Context, id int64) (model.Feed, error) {
	feed, err := s.feeds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Feed{}, ErrNotFound
		}
		return model.Feed{}, err
	}
	return feed, nil
}

func (s *feedService) List(ctx context.Context) ([]model.Feed, error) {
	return s.feeds.List(ctx)
}

func isValidURL(value string) bool {
	parsed, err := url.ParseRequestURI(value)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
