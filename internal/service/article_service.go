package service

import (
	"context"
	"errors"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
)

const (
	DefaultArticleLimit = 50
	MaxArticleLimit     = 200
)

type ArticleService interface {
	// ListByFeed returns the newest articles of a feed. limit is clamped to
	// [1, MaxArticleLimit]; zero means DefaultArticleLimit.
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error)
}

type articleService struct {
	feeds    repository.FeedRepository
	articles repository.ArticleRepository
}

func NewArticleService(feeds repository.FeedRepository, articles repository.ArticleRepository) ArticleService {
	return &articleService{feeds: feeds, articles: articles}
}

func (s *articleService) ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error) {
	if limit < 0 {
		return nil, ErrInvalid
	}
	if limit == 0 {
		limit = DefaultArticleLimit
	}
	if limit > MaxArticleLimit {
		limit = MaxArticleLimit
	}

	if _, err := s.feeds.GetByID(ctx, feedID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.articles.ListByFeed(ctx, feedID, limit)
}
