package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/repository"
)

const (
	defaultEnhanceTimeout = 20 * time.Second
	defaultWorkers        = 4
	fetchStateTimeout     = 5 * time.Second
)

type Options struct {
	EnhanceTimeout time.Duration
	Workers        int
}

// Pipeline runs fetch, parse, dedup, enhance and persist for one feed. Runs
// for different feeds share nothing; runs for the same feed may overlap and
// rely on the store's unique (feed_id, link) index.
type Pipeline struct {
	feeds    repository.FeedRepository
	fetcher  Fetcher
	parser   *Parser
	dedup    *Deduplicator
	enhancer Enhancer
	writer   *Writer

	enhanceTimeout time.Duration
	workers        int
	now            func() time.Time
}

func NewPipeline(
	feeds repository.FeedRepository,
	fetcher Fetcher,
	parser *Parser,
	dedup *Deduplicator,
	enhancer Enhancer,
	writer *Writer,
	opts Options,
) *Pipeline {
	if enhancer == nil {
		enhancer = NoopEnhancer{}
	}
	if opts.EnhanceTimeout <= 0 {
		opts.EnhanceTimeout = defaultEnhanceTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Pipeline{
		feeds:          feeds,
		fetcher:        fetcher,
		parser:         parser,
		dedup:          dedup,
		enhancer:       enhancer,
		writer:         writer,
		enhanceTimeout: opts.EnhanceTimeout,
		workers:        opts.Workers,
		now:            time.Now,
	}
}

// IngestFeed ingests feedURL into feedID. It never returns an error: run-level
// failures end in StateFailed, entry-level failures are counted.
func (p *Pipeline) IngestFeed(ctx context.Context, feedID int64, feedURL string) IngestResult {
	result := IngestResult{
		RunID:     uuid.NewString(),
		FeedID:    feedID,
		StartedAt: p.now().UTC(),
	}
	log := slog.Default().With("module", "ingest", "run_id", result.RunID, "feed_id", feedID)

	validators := p.validators(ctx, feedID)

	doc, err := p.fetcher.Fetch(ctx, feedURL, validators)
	if err != nil {
		log.Warn("feed fetch failed", "action", "fetch", "resource", "feed", "result", "failed", "url", feedURL, "error", err)
		return p.fail(result, err)
	}
	if doc.NotModified {
		log.Debug("feed not modified", "action", "fetch", "resource", "feed", "result", "skipped")
		result.NotModified = true
		return p.finish(result)
	}

	parsed, err := p.parser.Parse(doc)
	if err != nil {
		log.Warn("feed parse failed", "action", "parse", "resource", "feed", "result", "failed", "url", feedURL, "error", err)
		return p.fail(result, err)
	}
	result.Dropped = parsed.Dropped
	if parsed.Dropped > 0 {
		log.Warn("feed entries dropped", "action", "parse", "resource", "entry", "result", "partial", "dropped", parsed.Dropped)
	}

	p.backfillTitle(ctx, feedID, parsed.Title)

	fresh, err := p.dedup.FilterNew(ctx, feedID, parsed.Entries)
	if err != nil {
		log.Error("dedup failed", "action", "dedup", "resource", "article", "result", "failed", "error", err)
		p.recordFetchState(ctx, feedID, doc, parsed, false)
		return p.fail(result, err)
	}
	result.Skipped = len(parsed.Entries) - len(fresh)

	p.persistAll(ctx, feedID, fresh, &result)

	if err := ctx.Err(); err != nil {
		log.Warn("ingest interrupted", "action", "ingest", "resource", "feed", "result", "cancelled", "inserted", result.Inserted)
		p.recordFetchState(ctx, feedID, doc, parsed, false)
		return p.fail(result, err)
	}
	p.recordFetchState(ctx, feedID, doc, parsed, result.PersistFailures == 0)

	log.Info("feed ingested", "action", "ingest", "resource", "feed", "result", "ok",
		"dialect", parsed.Dialect.String(),
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"dropped", result.Dropped,
		"enhance_failures", result.EnhanceFailures,
		"persist_failures", result.PersistFailures,
	)
	return p.finish(result)
}

func (p *Pipeline) validators(ctx context.Context, feedID int64) Validators {
	feed, err := p.feeds.GetByID(ctx, feedID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("load feed validators failed", "module", "ingest", "action", "fetch", "resource", "feed", "result", "failed", "feed_id", feedID, "error", err)
		}
		return Validators{}
	}
	var v Validators
	if feed.ETag != nil {
		v.ETag = *feed.ETag
	}
	if feed.LastModified != nil {
		v.LastModified = *feed.LastModified
	}
	return v
}

func (p *Pipeline) backfillTitle(ctx context.Context, feedID int64, title string) {
	if title == "" {
		return
	}
	if _, err := p.feeds.BackfillTitle(ctx, feedID, title); err != nil {
		logger.Warn("feed title backfill failed", "module", "ingest", "action", "update", "resource", "feed", "result", "failed", "feed_id", feedID, "error", err)
	}
}

// recordFetchState stores the fetch bookkeeping once the entries of doc are
// settled. The ETag and Last-Modified validators are kept only when every new
// entry reached the store; otherwise they are cleared so the next run fetches
// the full document and picks up what is missing. Failures are logged and
// never fail the run.
func (p *Pipeline) recordFetchState(ctx context.Context, feedID int64, doc RawDocument, parsed ParsedFeed, complete bool) {
	state := repository.FetchState{
		SiteURL:   optionalString(parsed.SiteURL),
		FetchedAt: p.now().UTC(),
	}
	if complete {
		state.ETag = optionalString(doc.ETag)
		state.LastModified = optionalString(doc.LastModified)
	}

	// The run may have been cancelled; stale validators must still go.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchStateTimeout)
	defer cancel()
	if err := p.feeds.UpdateFetchState(wctx, feedID, state); err != nil {
		logger.Warn("feed fetch state update failed", "module", "ingest", "action", "update", "resource", "feed", "result", "failed", "feed_id", feedID, "complete", complete, "error", err)
	}
}

// persistAll runs enhance then persist for each entry with bounded
// concurrency. Cancellation stops scheduling; entries already written stay.
func (p *Pipeline) persistAll(ctx context.Context, feedID int64, entries []CandidateEntry, result *IngestResult) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			enhanced, enhanceErr := p.enhance(ctx, entry)
			outcome, persistErr := p.writer.Persist(ctx, feedID, enhanced)

			mu.Lock()
			defer mu.Unlock()
			if enhanceErr != nil {
				result.EnhanceFailures++
			}
			switch {
			case persistErr != nil:
				result.PersistFailures++
				logger.Error("article persist failed", "module", "ingest", "action", "persist", "resource", "article", "result", "failed", "feed_id", feedID, "link", entry.Link, "error", persistErr)
			case outcome == Inserted:
				result.Inserted++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// enhance never fails the entry: on error the entry comes back without a
// summary together with the EnhanceError.
func (p *Pipeline) enhance(ctx context.Context, entry CandidateEntry) (EnhancedEntry, error) {
	ectx, cancel := context.WithTimeout(ctx, p.enhanceTimeout)
	defer cancel()

	enhanced, err := p.enhancer.Enhance(ectx, entry)
	if err != nil {
		enhanceErr := &EnhanceError{Link: entry.Link, Err: err}
		logger.Warn("article enhance failed", "module", "ingest", "action", "enhance", "resource", "article", "result", "failed", "link", entry.Link, "error", err)
		return EnhancedEntry{CandidateEntry: entry}, enhanceErr
	}
	return enhanced, nil
}

func (p *Pipeline) fail(result IngestResult, err error) IngestResult {
	result.State = StateFailed
	result.Err = err
	result.Error = err.Error()
	switch {
	case errors.Is(err, context.Canceled) && !errors.Is(err, ErrFetch):
		result.Reason = "cancelled"
	default:
		result.Reason = reason(err)
	}
	result.FinishedAt = p.now().UTC()
	return result
}

func (p *Pipeline) finish(result IngestResult) IngestResult {
	result.State = StateDone
	result.FinishedAt = p.now().UTC()
	return result
}
