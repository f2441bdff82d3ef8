package ingest

import (
	"context"
	"errors"

	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
)

// Writer persists one entry per call. Each call is its own statement, so no
// transaction spans entries or network I/O.
type Writer struct {
	articles repository.ArticleRepository
	cache    LinkCache
}

// NewWriter creates a writer. cache may be nil.
func NewWriter(articles repository.ArticleRepository, cache LinkCache) *Writer {
	return &Writer{articles: articles, cache: cache}
}

func (w *Writer) Persist(ctx context.Context, feedID int64, entry EnhancedEntry) (PersistOutcome, error) {
	article := model.Article{
		FeedID:             feedID,
		Title:              entry.Title,
		Link:               normalizeLink(entry.Link),
		PublishedAt:        entry.PublishedAt,
		PublishedEstimated: entry.PublishedEstimated,
		Summary:            entry.Summary,
		Content:            optionalString(entry.Content),
		Author:             optionalString(entry.Author),
	}

	inserted, err := w.articles.InsertIfAbsent(ctx, article)
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return 0, &PersistError{Link: article.Link, Err: err}
	}

	outcome := AlreadyExists
	if err == nil && inserted {
		outcome = Inserted
	}

	if w.cache != nil {
		if err := w.cache.Add(ctx, feedID, article.Link); err != nil {
			logger.Warn("link cache add failed", "module", "ingest", "action", "persist", "resource", "cache", "result", "failed", "feed_id", feedID, "link", article.Link, "error", err)
		}
	}
	return outcome, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
