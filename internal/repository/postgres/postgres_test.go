package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("23505")))
}

// newTestPool connects to NEWSFEED_TEST_DATABASE_URL and truncates the
// tables. Tests are skipped when the variable is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("NEWSFEED_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NEWSFEED_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE articles, feeds`)
	require.NoError(t, err)
	return pool
}

func TestPostgres_ArticleLifecycle(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	feeds := NewFeedRepository(pool)
	articles := NewArticleRepository(pool)

	feed, err := feeds.Create(ctx, model.Feed{URL: "https://example.com/rss"})
	require.NoError(t, err)

	_, err = feeds.Create(ctx, model.Feed{URL: "https://example.com/rss"})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	updated, err := feeds.BackfillTitle(ctx, feed.ID, "Example")
	require.NoError(t, err)
	require.True(t, updated)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, link := range []string{"https://example.com/a", "https://example.com/b"} {
		inserted, err := articles.InsertIfAbsent(ctx, model.Article{
			FeedID:      feed.ID,
			Title:       link,
			Link:        link,
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	inserted, err := articles.InsertIfAbsent(ctx, model.Article{FeedID: feed.ID, Link: "https://example.com/a", PublishedAt: base})
	require.NoError(t, err)
	require.False(t, inserted)

	links, err := articles.ListLinks(ctx, feed.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)

	list, err := articles.ListByFeed(ctx, feed.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "https://example.com/b", list[0].Link)

	_, err = articles.GetByID(ctx, 1)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgres_InsertIfAbsent_Concurrent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	feeds := NewFeedRepository(pool)
	articles := NewArticleRepository(pool)

	feed, err := feeds.Create(ctx, model.Feed{URL: "https://example.com/concurrent"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = articles.InsertIfAbsent(ctx, model.Article{FeedID: feed.ID, Link: "https://example.com/same", PublishedAt: time.Now()})
		}(i)
	}
	wg.Wait()

	insertedCount := 0
	for i := range results {
		if errs[i] != nil {
			require.ErrorIs(t, errs[i], repository.ErrDuplicate)
			continue
		}
		if results[i] {
			insertedCount++
		}
	}
	require.Equal(t, 1, insertedCount)

	count, err := articles.CountByFeed(ctx, feed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
