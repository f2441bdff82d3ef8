package ingest

import "time"

// NewParserAt returns a parser whose clock is fixed at now.
func NewParserAt(now time.Time) *Parser {
	return &Parser{now: func() time.Time { return now }}
}

var Condense = condense
