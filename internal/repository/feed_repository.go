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

// FetchState is the bookkeeping written after a feed document was fetched and
// parsed successfully.
type FetchState struct {
	ETag         *string
	LastModified *string
	SiteURL      *string
	FetchedAt    time.Time
}

type FeedRepository interface {
	Create(ctx context.Context, feed model.Feed) (model.Feed, error)
	GetByID(ctx context.Context, id int64) (model.Feed, error)
	List(ctx context.Context) ([]model.Feed, error)
	// BackfillTitle sets the title only when the stored one is empty.
	BackfillTitle(ctx context.Context, id int64, title string) (bool, error)
	UpdateFetchState(ctx context.Context, id int64, state FetchState) error
}

type feedRepository struct {
	db dbtx
}

func NewFeedRepository(db dbtx) FeedRepository {
	return &feedRepository{db: db}
}

const feedColumns = `id, title, url, site_url, etag, last_modified, last_fetched_at, created_at, updated_at`

func (r *feedRepository) Create(ctx context.Context, feed model.Feed) (model.Feed, error) {
	feed.ID = snowflake.NextID()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO feeds (id, title, url, site_url, etag, last_modified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID,
		feed.Title,
		feed.URL,
		nullableString(feed.SiteURL),
		nullableString(feed.ETag),
		nullableString(feed.LastModified),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Feed{}, fmt.Errorf("create feed: %w", ErrDuplicate)
		}
		return model.Feed{}, fmt.Errorf("create feed: %w", err)
	}
	feed.CreatedAt = now
	feed.UpdatedAt = now
	return feed, nil
}

func (r *feedRepository) GetByID(ctx context.Context, id int64) (model.Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Feed{}, ErrNotFound
		}
		return model.Feed{}, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) List(ctx context.Context) ([]model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY id`)
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
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET title = ?, updated_at = ? WHERE id = ? AND title = ''`,
		title,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("backfill feed title: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *feedRepository) UpdateFetchState(ctx context.Context, id int64, state FetchState) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET etag = ?, last_modified = ?, site_url = COALESCE(?, site_url), last_fetched_at = ?, updated_at = ? WHERE id = ?`,
		nullableString(state.ETag),
		nullableString(state.LastModified),
		nullableString(state.SiteURL),
		formatTime(state.FetchedAt),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update feed fetch state: %w", err)
	}
	return nil
}

func scanFeed(scanner interface {
	Scan(dest ...any) error
}) (model.Feed, error) {
	var feed model.Feed
	var siteURL sql.NullString
	var etag sql.NullString
	var lastModified sql.NullString
	var lastFetchedAt sql.NullString
	var createdAt string
	var updatedAt string
	if err := scanner.Scan(
		&feed.ID,
		&feed.Title,
		&feed.URL,
		&siteURL,
		&etag,
		&lastModified,
		&lastFetchedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Feed{}, err
	}
	feed.SiteURL = stringPtr(siteURL)
	feed.ETag = stringPtr(etag)
	feed.LastModified = stringPtr(lastModified)
	feed.LastFetchedAt = parseTimePtr(lastFetchedAt)

	var err error
	feed.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Feed{}, fmt.Errorf("parse feed created_at: %w", err)
	}
	feed.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Feed{}, fmt.Errorf("parse feed updated_at: %w", err)
	}
	return feed, nil
}
