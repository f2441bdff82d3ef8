package ingest

import (
	"context"
	"fmt"
	"strings"

	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/repository"
)

// LinkCache remembers links already persisted per feed. Implementations may
// forget entries; the store stays authoritative.
type LinkCache interface {
	Known(ctx context.Context, feedID int64, links []string) (map[string]bool, error)
	Add(ctx context.Context, feedID int64, links ...string) error
}

// Deduplicator drops candidates whose link is already stored for the feed.
// It is a pre-filter only: the unique (feed_id, link) index decides races.
type Deduplicator struct {
	articles repository.ArticleRepository
	cache    LinkCache
}

// NewDeduplicator creates a deduplicator. cache may be nil.
func NewDeduplicator(articles repository.ArticleRepository, cache LinkCache) *Deduplicator {
	return &Deduplicator{articles: articles, cache: cache}
}

func normalizeLink(link string) string {
	return strings.TrimSpace(link)
}

// FilterNew returns the candidates not yet stored for feedID, in input order.
// Repeated links within candidates collapse to their first occurrence.
func (d *Deduplicator) FilterNew(ctx context.Context, feedID int64, candidates []CandidateEntry) ([]CandidateEntry, error) {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]CandidateEntry, 0, len(candidates))
	for _, c := range candidates {
		c.Link = normalizeLink(c.Link)
		if c.Link == "" {
			continue
		}
		if _, dup := seen[c.Link]; dup {
			continue
		}
		seen[c.Link] = struct{}{}
		unique = append(unique, c)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	pending := unique
	if d.cache != nil {
		pending = d.filterCached(ctx, feedID, unique)
		if len(pending) == 0 {
			return nil, nil
		}
	}

	stored, err := d.articles.ListLinks(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("list stored links: %w", err)
	}

	fresh := make([]CandidateEntry, 0, len(pending))
	var warm []string
	for _, c := range pending {
		if _, ok := stored[c.Link]; ok {
			warm = append(warm, c.Link)
			continue
		}
		fresh = append(fresh, c)
	}

	if d.cache != nil && len(warm) > 0 {
		if err := d.cache.Add(ctx, feedID, warm...); err != nil {
			logger.Warn("link cache warm failed", "module", "ingest", "action", "dedup", "resource", "cache", "result", "failed", "feed_id", feedID, "error", err)
		}
	}

	return fresh, nil
}

// filterCached drops links the cache already knows. A cache failure keeps
// every candidate so the store query decides.
func (d *Deduplicator) filterCached(ctx context.Context, feedID int64, candidates []CandidateEntry) []CandidateEntry {
	links := make([]string, len(candidates))
	for i, c := range candidates {
		links[i] = c.Link
	}

	known, err := d.cache.Known(ctx, feedID, links)
	if err != nil {
		logger.Warn("link cache lookup failed", "module", "ingest", "action", "dedup", "resource", "cache", "result", "failed", "feed_id", feedID, "error", err)
		return candidates
	}

	pending := make([]CandidateEntry, 0, len(candidates))
	for _, c := range candidates {
		if !known[c.Link] {
			pending = append(pending, c)
		}
	}
	return pending
}
