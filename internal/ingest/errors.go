package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrFetch   = errors.New("fetch failed")
	ErrParse   = errors.New("parse failed")
	ErrEnhance = errors.New("enhance failed")
	ErrPersist = errors.New("persist failed")
)

type FetchErrorKind string

const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchConnectionFailed FetchErrorKind = "connection_failed"
	FetchHTTPStatus       FetchErrorKind = "http_status"
	FetchResponseTooLarge FetchErrorKind = "response_too_large"
)

// FetchError classifies a failed feed retrieval. StatusCode is set for
// FetchHTTPStatus only.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

type ParseErrorKind string

const ParseMalformed ParseErrorKind = "malformed"

type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse feed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse feed: %s", e.Kind)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// EnhanceError is an entry-level failure; the entry is still persisted.
type EnhanceError struct {
	Link string
	Err  error
}

func (e *EnhanceError) Error() string {
	return fmt.Sprintf("enhance %s: %v", e.Link, e.Err)
}

func (e *EnhanceError) Unwrap() error {
	return e.Err
}

func (e *EnhanceError) Is(target error) bool {
	return target == ErrEnhance
}

// PersistError is an entry-level failure; the run continues.
type PersistError struct {
	Link string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Link, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

// reason returns the IngestResult.Reason for a run-level error.
func reason(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "store_unavailable"
}
