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

type feedRepository struct {
	db querier
}

func NewFeedRepository(db querier) repository.FeedRepository {
	return &feedRepository{db: db}
}

const feedColumns = `id, title, url, site_url, etag, last_modified, last_fetched_at, created_at, updated_at`

func (r *feedRepository) Create(ctx context.Context, feed model.Feed) (model.Feed, error) {
	feed.ID = snowflake.NextID()
	now := time.Now().UTC()
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO feeds (id, title, url, site_url, etag, last_modified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		feed.ID, feed.Title, feed.URL, feed.SiteURL, feed.ETag, feed.LastModified, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Feed{}, fmt.Errorf("create feed: %w", repository.ErrDuplicate)
		}
		return model.Feed{}, fmt.Errorf("create feed: %w", err)
	}
	feed.CreatedAt = now
	feed.UpdatedAt = now
	return feed, nil
}

func (r *feedRepository) GetByID(ctx context.Context, id int64) (model.Feed, error) {
	row := r.db.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Feed{}, repository.ErrNotFound
		}
		return model.Feed{}, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) List(ctx context.Context) ([]model.Feed, error) {
	rows, err := r.db.Query(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

func (r *feedRepository) BackfillTitle(ctx context.Context, id int64, title string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE feeds SET title = $1, updated_at = $2 WHERE id = $3 AND title = ''`, title, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("backfill feed title: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *feedRepository) UpdateFetchState(ctx context.Context, id int64, state repository.FetchState) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE feeds SET etag = $1, last_modified = $2, site_url = COALESCE($3, site_url), last_fetched_at = $4, updated_at = $5 WHERE id = $6`,
		state.ETag, state.LastModified, state.SiteURL, state.FetchedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update feed fetch state: %w", err)
	}
	return nil
}

func scanFeed(row pgx.Row) (model.Feed, error) {
	var feed model.Feed
	err := row.Scan(
		&feed.ID,
		&feed.Title,
		&feed.URL,
		&feed.SiteURL,
		&feed.ETag,
		&feed.LastModified,
		&feed.LastFetchedAt,
		&feed.CreatedAt,
		&feed.UpdatedAt,
	)
	return feed, err
}
