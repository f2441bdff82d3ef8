// Package ingest fetches a feed document, extracts its entries, and persists
// the ones not seen before for that feed.
package ingest

import "time"

// Dialect is the syndication format of a fetched document.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectRSS
	DialectAtom
	DialectJSON
)

func (d Dialect) String() string {
	switch d {
	case DialectRSS:
		return "rss"
	case DialectAtom:
		return "atom"
	case DialectJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Validators are the conditional-GET values stored from a previous fetch.
type Validators struct {
	ETag         string
	LastModified string
}

// RawDocument is a fetched feed body. When NotModified is set the server
// answered 304 and Body is empty.
type RawDocument struct {
	URL          string
	FinalURL     string
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
}

// CandidateEntry is a dialect-neutral entry extracted from a document.
type CandidateEntry struct {
	Title              string
	Link               string
	PublishedAt        time.Time
	PublishedEstimated bool
	Content            string
	Author             string
}

// ParsedFeed holds the entries of a document in source order.
type ParsedFeed struct {
	Dialect Dialect
	Title   string
	SiteURL string
	Entries []CandidateEntry
	// Dropped counts entries that could not be parsed or had no usable link.
	Dropped int
}

// EnhancedEntry is a candidate plus its derived summary. Summary is nil when
// enhancement was disabled or failed.
type EnhancedEntry struct {
	CandidateEntry
	Summary *string
}

type PersistOutcome int

const (
	Inserted PersistOutcome = iota
	AlreadyExists
)

func (o PersistOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "already_exists"
}

type RunState string

const (
	StateDone   RunState = "done"
	StateFailed RunState = "failed"
)

// IngestResult summarizes one run of the pipeline for one feed.
type IngestResult struct {
	RunID           string    `json:"run_id"`
	FeedID          int64     `json:"feed_id"`
	State           RunState  `json:"state"`
	Reason          string    `json:"reason,omitempty"`
	Err             error     `json:"-"`
	Error           string    `json:"error,omitempty"`
	Inserted        int       `json:"inserted"`
	Skipped         int       `json:"skipped"`
	EnhanceFailures int       `json:"enhance_failures"`
	PersistFailures int       `json:"persist_failures"`
	Dropped         int       `json:"dropped"`
	NotModified     bool      `json:"not_modified"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Failed reports whether the run ended before any entry was processed.
func (r IngestResult) Failed() bool {
	return r.State == StateFailed
}
