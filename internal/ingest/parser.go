package ingest

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

var (
	rootStartPattern = regexp.MustCompile(`<([A-Za-z_][\w:.-]*)(?:\s[^>]*)?>`)
	itemPattern      = regexp.MustCompile(`(?s)<item[\s>].*?</item>`)
	entryPattern     = regexp.MustCompile(`(?s)<entry[\s>].*?</entry>`)
	itemOpenPattern  = regexp.MustCompile(`<item[\s>/]`)
	entryOpenPattern = regexp.MustCompile(`<entry[\s>/]`)
	opaquePattern    = regexp.MustCompile(`(?s)<!\[CDATA\[.*?\]\]>|<!--.*?-->`)
)

// Parser turns raw feed documents into candidate entries.
type Parser struct {
	now func() time.Time
}

func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Parse extracts entries from doc in source order. A document that fails to
// parse as a whole is salvaged entry by entry; it is malformed only when no
// entry survives.
func (p *Parser) Parse(doc RawDocument) (ParsedFeed, error) {
	dialect := detectDialect(doc.Body)
	if dialect == DialectUnknown {
		return ParsedFeed{}, &ParseError{Kind: ParseMalformed, Err: gofeed.ErrFeedTypeNotDetected}
	}

	var items []*gofeed.Item
	var feedTitle, siteLink string
	dropped := 0

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc.Body))
	if err == nil {
		feedTitle = feed.Title
		siteLink = feed.Link
		items = feed.Items
	} else {
		if dialect == DialectJSON {
			return ParsedFeed{}, &ParseError{Kind: ParseMalformed, Err: err}
		}
		var failed int
		items, failed = salvage(doc.Body, dialect)
		if len(items) == 0 {
			return ParsedFeed{}, &ParseError{Kind: ParseMalformed, Err: err}
		}
		dropped += failed
		feedTitle, siteLink = salvageChannel(doc.Body, dialect)
	}

	// A document cut off inside an entry still parses leniently; the
	// unterminated entry is lost and counted here.
	if dialect != DialectJSON {
		if lost := countEntryElements(doc.Body, dialect) - len(items) - dropped; lost > 0 {
			dropped += lost
		}
	}

	base := resolveBase(siteLink, doc)
	parsed := ParsedFeed{
		Dialect: dialect,
		Title:   strings.TrimSpace(feedTitle),
		SiteURL: absoluteLink(siteLink, baseURL(doc)),
	}
	for _, item := range items {
		entry, ok := p.toCandidate(item, base)
		if !ok {
			dropped++
			continue
		}
		parsed.Entries = append(parsed.Entries, entry)
	}
	parsed.Dropped = dropped
	return parsed, nil
}

func detectDialect(body []byte) Dialect {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return DialectRSS
	case gofeed.FeedTypeAtom:
		return DialectAtom
	case gofeed.FeedTypeJSON:
		return DialectJSON
	default:
		return DialectUnknown
	}
}

// countEntryElements counts item (RSS) or entry (Atom) start tags outside
// CDATA sections and comments.
func countEntryElements(body []byte, dialect Dialect) int {
	pattern := itemOpenPattern
	if dialect == DialectAtom {
		pattern = entryOpenPattern
	}
	return len(pattern.FindAllIndex(opaquePattern.ReplaceAll(body, nil), -1))
}

// salvage parses every item/entry element on its own inside a copy of the
// document's root element. It returns the items that parsed and the number
// of fragments that did not.
func salvage(body []byte, dialect Dialect) ([]*gofeed.Item, int) {
	loc := rootStartPattern.FindSubmatchIndex(body)
	if loc == nil {
		return nil, 0
	}
	rootStart := string(body[loc[0]:loc[1]])
	rootName := string(body[loc[2]:loc[3]])

	pattern := itemPattern
	if dialect == DialectAtom {
		pattern = entryPattern
	}

	parser := gofeed.NewParser()
	var items []*gofeed.Item
	failed := 0
	for _, frag := range pattern.FindAll(body, -1) {
		var doc string
		if strings.EqualFold(rootName, "rss") {
			doc = rootStart + "<channel>" + string(frag) + "</channel></" + rootName + ">"
		} else {
			doc = rootStart + string(frag) + "</" + rootName + ">"
		}

		feed, err := parser.Parse(strings.NewReader(doc))
		if err != nil || len(feed.Items) == 0 {
			failed++
			continue
		}
		items = append(items, feed.Items...)
	}
	return items, failed
}

// salvageChannel recovers the feed title and site link from the part of a
// broken document that precedes its first entry.
func salvageChannel(body []byte, dialect Dialect) (string, string) {
	pattern := itemPattern
	if dialect == DialectAtom {
		pattern = entryPattern
	}
	head := body
	if loc := pattern.FindIndex(body); loc != nil {
		head = body[:loc[0]]
	}

	loc := rootStartPattern.FindSubmatchIndex(head)
	if loc == nil {
		return "", ""
	}
	rootName := string(head[loc[2]:loc[3]])
	var doc string
	if strings.EqualFold(rootName, "rss") {
		doc = string(head)
		if !strings.Contains(doc, "<channel") {
			doc += "<channel>"
		}
		doc += "</channel></" + rootName + ">"
	} else {
		doc = string(head) + "</" + rootName + ">"
	}

	feed, err := gofeed.NewParser().Parse(strings.NewReader(doc))
	if err != nil {
		return "", ""
	}
	return feed.Title, feed.Link
}

func (p *Parser) toCandidate(item *gofeed.Item, base *url.URL) (CandidateEntry, bool) {
	if item == nil {
		return CandidateEntry{}, false
	}

	link := ""
	for _, raw := range append([]string{item.Link}, item.Links...) {
		if resolved := absoluteLink(raw, base); resolved != "" {
			link = resolved
			break
		}
	}
	// A GUID only stands in for the link when it is itself a permalink.
	if link == "" {
		link = absoluteLink(item.GUID, nil)
	}
	if link == "" {
		return CandidateEntry{}, false
	}

	entry := CandidateEntry{
		Title: strings.TrimSpace(item.Title),
		Link:  link,
	}

	switch {
	case item.PublishedParsed != nil:
		entry.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		entry.PublishedAt = item.UpdatedParsed.UTC()
	default:
		entry.PublishedAt = p.now().UTC()
		entry.PublishedEstimated = true
	}

	entry.Content = item.Content
	if strings.TrimSpace(entry.Content) == "" {
		entry.Content = item.Description
	}
	entry.Content = strings.TrimSpace(entry.Content)

	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		entry.Author = strings.TrimSpace(item.Author.Name)
	} else {
		for _, person := range item.Authors {
			if person != nil && strings.TrimSpace(person.Name) != "" {
				entry.Author = strings.TrimSpace(person.Name)
				break
			}
		}
	}

	return entry, true
}

func baseURL(doc RawDocument) *url.URL {
	for _, raw := range []string{doc.FinalURL, doc.URL} {
		if u, err := url.Parse(raw); err == nil && isHTTP(u) {
			return u
		}
	}
	return nil
}

// resolveBase prefers the feed's own site link over the document URL.
func resolveBase(siteLink string, doc RawDocument) *url.URL {
	docBase := baseURL(doc)
	if site := absoluteLink(siteLink, docBase); site != "" {
		if u, err := url.Parse(site); err == nil {
			return u
		}
	}
	return docBase
}

// absoluteLink trims raw and resolves it against base. It returns "" unless
// the result is an absolute http(s) URL. Absolute input is returned as
// trimmed, never re-encoded, so it stays the exact dedup key.
func absoluteLink(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if !isHTTP(u) {
			return ""
		}
		return raw
	}
	if base == nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if !isHTTP(resolved) {
		return ""
	}
	return resolved.String()
}

func isHTTP(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
