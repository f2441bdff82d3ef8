package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
	"newsfeed/backend/internal/snowflake"
)

type articleRepository struct {
	db querier
}

func NewArticleRepository(db querier) repository.ArticleRepository {
	return &articleRepository{db: db}
}

const articleColumns = `id, feed_id, title, link, published_at, published_estimated, summary, content, author, created_at`

func (r *articleRepository) ListLinks(ctx context.Context, feedID int64) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT link FROM articles WHERE feed_id = $1`, feedID)
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

	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO articles (id, feed_id, title, link, published_at, published_estimated, summary, content, author, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (feed_id, link) DO NOTHING`,
		id,
		article.FeedID,
		article.Title,
		article.Link,
		article.PublishedAt.UTC(),
		article.PublishedEstimated,
		article.Summary,
		article.Content,
		article.Author,
		createdAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, repository.ErrDuplicate
		}
		return false, fmt.Errorf("insert article: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *articleRepository) GetByID(ctx context.Context, id int64) (model.Article, error) {
	row := r.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	article, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Article{}, repository.ErrNotFound
		}
		return model.Article{}, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

func (r *articleRepository) ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = $1 ORDER BY published_at DESC, id DESC`
	args := []any{feedID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
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
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE feed_id = $1`, feedID).Scan(&count)
	return count, err
}

func scanArticle(row pgx.Row) (model.Article, error) {
	var a model.Article
	err := row.Scan(
		&a.ID, &a.FeedID, &a.Title, &a.Link, &a.PublishedAt, &a.PublishedEstimated,
		&a.Summary, &a.Content, &a.Author, &a.CreatedAt,
	)
	return a, err
}
