package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/snowflake"
)

type ArticleRepository interface {
	// ListLinks returns the set of links already stored for a feed.
	ListLinks(ctx context.Context, feedID int64) (map[string]struct{}, error)
	// InsertIfAbsent inserts the article unless (feed_id, link) exists.
	// It reports false when the row was already present.
	InsertIfAbsent(ctx context.Context, article model.Article) (bool, error)
	GetByID(ctx context.Context, id int64) (model.Article, error)
	// ListByFeed returns the newest articles of a feed, ordered by
	// published_at descending.
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error)
	CountByFeed(ctx context.Context, feedID int64) (int, error)
}

type articleRepository struct {
	db dbtx
}

func NewArticleRepository(db dbtx) ArticleRepository {
	return &articleRepository{db: db}
}

const articleColumns = `id, feed_id, title, link, published_at, published_estimated, summary, content, author, created_at`

func (r *articleRepository) ListLinks(ctx context.Context, feedID int64) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT link FROM articles WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list article links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]struct{})
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		links[link] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article links: %w", err)
	}
	return links, nil
}

func (r *articleRepository) InsertIfAbsent(ctx context.Context, article model.Article) (bool, error) {
	id := article.ID
	if id == 0 {
		id = snowflake.NextID()
	}
	createdAt := article.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	estimated := 0
	if article.PublishedEstimated {
		estimated = 1
	}

	result, err := r.db.ExecContext(
		ctx,
		`INSERT INTO articles (id, feed_id, title, link, published_at, published_estimated, summary, content, author, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(feed_id, link) DO NOTHING`,
		id,
		article.FeedID,
		article.Title,
		article.Link,
		formatTime(article.PublishedAt),
		estimated,
		nullableString(article.Summary),
		nullableString(article.Content),
		nullableString(article.Author),
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("insert article: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *articleRepository) GetByID(ctx context.Context, id int64) (model.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	article, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Article{}, ErrNotFound
		}
		return model.Article{}, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

func (r *articleRepository) ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = ? ORDER BY published_at DESC, id DESC`
	args := []any{feedID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

func (r *articleRepository) CountByFeed(ctx context.Context, feedID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE feed_id = ?`, feedID).Scan(&count)
	return count, err
}

func scanArticle(scanner interface {
	Scan(dest ...any) error
}) (model.Article, error) {
	var a model.Article
	var publishedAt, createdAt string
	var estimated int
	var summary, content, author sql.NullString

	if err := scanner.Scan(
		&a.ID, &a.FeedID, &a.Title, &a.Link, &publishedAt, &estimated,
		&summary, &content, &author, &createdAt,
	); err != nil {
		return model.Article{}, err
	}

	a.PublishedEstimated = estimated == 1
	a.Summary = stringPtr(summary)
	a.Content = stringPtr(content)
	a.Author = stringPtr(author)

	var err error
	a.PublishedAt, err = parseTime(publishedAt)
	if err != nil {
		return model.Article{}, fmt.Errorf("parse article published_at: %w", err)
	}
	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Article{}, fmt.Errorf("parse article created_at: %w", err)
	}
	return a, nil
}
