package model

import "time"

// Article is a persisted feed entry. (FeedID, Link) is unique and rows are
// never updated once inserted.
type Article struct {
	ID                 int64
	FeedID             int64
	Title              string
	Link               string
	PublishedAt        time.Time
	PublishedEstimated bool // source had no date; PublishedAt is ingestion time
	Summary            *string
	Content            *string
	Author             *string
	CreatedAt          time.Time
}
