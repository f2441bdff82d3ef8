package db

import (
	"database/sql"
	"fmt"
)

// Base schema - uses Snowflake IDs (no AUTOINCREMENT)
const baseSchema = `
CREATE TABLE IF NOT EXISTS feeds (
  id INTEGER PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL UNIQUE,
  site_url TEXT,
  etag TEXT,
  last_modified TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
  id INTEGER PRIMARY KEY,
  feed_id INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  link TEXT NOT NULL,
  published_at TEXT NOT NULL,
  summary TEXT,
  content TEXT,
  author TEXT,
  created_at TEXT NOT NULL,
  FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("migrate base schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func runMigrations(db *sql.DB) error {
	// Migration 1: the deduplication key. Concurrent runs for the same feed
	// rely on this index, not on the application-level pre-filter.
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_feed_link ON articles(feed_id, link)`); err != nil {
		return fmt.Errorf("create idx_articles_feed_link: %w", err)
	}

	// Migration 2: read-time ordering
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_articles_feed_published ON articles(feed_id, published_at DESC)`); err != nil {
		return fmt.Errorf("create idx_articles_feed_published: %w", err)
	}

	// Migration 3: flag for entries whose source carried no date
	if err := addColumnIfMissing(db, "articles", "published_estimated", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	// Migration 4: last successful fetch
	if err := addColumnIfMissing(db, "feeds", "last_fetched_at", "TEXT"); err != nil {
		return err
	}

	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}
	return nil
}
