package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"newsfeed/backend/internal/db"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/snowflake"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewTestDB opens a migrated SQLite database in a temp dir and closes it when
// the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func SeedFeed(t *testing.T, database *sql.DB, feed model.Feed) int64 {
	t.Helper()
	if feed.ID == 0 {
		feed.ID = snowflake.NextID()
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := database.Exec(
		`INSERT INTO feeds (id, title, url, site_url, etag, last_modified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID, feed.Title, feed.URL, feed.SiteURL, feed.ETag, feed.LastModified, now, now,
	)
	if err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	return feed.ID
}

func SeedArticle(t *testing.T, database *sql.DB, article model.Article) int64 {
	t.Helper()
	if article.ID == 0 {
		article.ID = snowflake.NextID()
	}
	if article.PublishedAt.IsZero() {
		article.PublishedAt = time.Now()
	}
	_, err := database.Exec(
		`INSERT INTO articles (id, feed_id, title, link, published_at, summary, content, author, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.FeedID, article.Title, article.Link,
		article.PublishedAt.UTC().Format(timeLayout),
		article.Summary, article.Content, article.Author,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
	return article.ID
}
