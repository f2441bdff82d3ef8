package model

import "time"

// Feed is a subscribed source. The ingestion pipeline only backfills Title
// and records fetch bookkeeping; everything else is owned by the
// subscription flow.
type Feed struct {
	ID            int64
	Title         string
	URL           string
	SiteURL       *string
	ETag          *string
	LastModified  *string
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
