package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/microcosm-cc/bluemonday"

	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/network"
	"newsfeed/backend/internal/service/ai"
)

// Enhancer derives a summary for an entry. It is best-effort: callers
// persist the entry without a summary when it fails.
type Enhancer interface {
	Enhance(ctx context.Context, entry CandidateEntry) (EnhancedEntry, error)
}

// NoopEnhancer leaves entries without a summary.
type NoopEnhancer struct{}

func (NoopEnhancer) Enhance(_ context.Context, entry CandidateEntry) (EnhancedEntry, error) {
	return EnhancedEntry{CandidateEntry: entry}, nil
}

// MarkdownEnhancer sanitizes the entry content and condenses it to a
// markdown summary.
type MarkdownEnhancer struct {
	sanitizer *bluemonday.Policy
	maxChars  int
}

func NewMarkdownEnhancer(maxChars int) *MarkdownEnhancer {
	return &MarkdownEnhancer{
		sanitizer: bluemonday.UGCPolicy(),
		maxChars:  maxChars,
	}
}

func (e *MarkdownEnhancer) Enhance(ctx context.Context, entry CandidateEntry) (EnhancedEntry, error) {
	if err := ctx.Err(); err != nil {
		return EnhancedEntry{}, err
	}
	out := EnhancedEntry{CandidateEntry: entry}
	if strings.TrimSpace(entry.Content) == "" {
		return out, nil
	}

	summary, err := e.summarize(entry.Content, entry.Link)
	if err != nil {
		return EnhancedEntry{}, err
	}
	if summary != "" {
		out.Summary = &summary
	}
	return out, nil
}

func (e *MarkdownEnhancer) summarize(htmlContent, link string) (string, error) {
	sanitized := e.sanitizer.Sanitize(htmlContent)

	var opts []converter.ConvertOptionFunc
	if link != "" {
		opts = append(opts, converter.WithDomain(link))
	}
	md, err := htmltomarkdown.ConvertString(sanitized, opts...)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return condense(md, e.maxChars), nil
}

// condense keeps whole paragraphs while they fit in maxChars runes. A first
// paragraph that is already too long is cut at a word boundary.
func condense(md string, maxChars int) string {
	md = strings.TrimSpace(md)
	if maxChars <= 0 || utf8.RuneCountInString(md) <= maxChars {
		return md
	}

	var b strings.Builder
	used := 0
	for _, para := range strings.Split(md, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		sep := 0
		if used > 0 {
			sep = 2
		}
		if used+sep+n > maxChars {
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(para)
		used += sep + n
	}
	if b.Len() > 0 {
		return b.String()
	}

	runes := []rune(md)
	cut := string(runes[:maxChars-1])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// ReadabilityEnhancer fills in thin entries (teaser-only feeds) from the
// linked page before summarizing.
type ReadabilityEnhancer struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
	markdown  *MarkdownEnhancer
	minChars  int
	maxBytes  int64
}

func NewReadabilityEnhancer(client *http.Client, cfg config.EnhanceConfig, maxBytes int64) *ReadabilityEnhancer {
	// Strip scripts and other elements that interfere with readability
	// parsing, but keep the structural tags it scores on.
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "header", "footer", "nav", "aside", "main", "figure", "figcaption")
	p.AllowAttrs("id", "class", "lang", "dir").Globally()

	return &ReadabilityEnhancer{
		client:    client,
		sanitizer: p,
		markdown:  NewMarkdownEnhancer(cfg.SummaryMaxChars),
		minChars:  cfg.ReadabilityMinChars,
		maxBytes:  maxBytes,
	}
}

func (e *ReadabilityEnhancer) Enhance(ctx context.Context, entry CandidateEntry) (EnhancedEntry, error) {
	if utf8.RuneCountInString(ai.HTMLToText(entry.Content)) >= e.minChars {
		return e.markdown.Enhance(ctx, entry)
	}

	content, err := e.fetchReadable(ctx, entry.Link)
	if err != nil {
		return EnhancedEntry{}, err
	}

	enriched := entry
	enriched.Content = content
	out, err := e.markdown.Enhance(ctx, enriched)
	if err != nil {
		return EnhancedEntry{}, err
	}
	// The stored content stays as received; only the summary is derived
	// from the page.
	out.CandidateEntry = entry
	return out, nil
}

func (e *ReadabilityEnhancer) fetchReadable(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse URL failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", config.ChromeUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var reader io.Reader = resp.Body
	if e.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, e.maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body failed: %w", err)
	}

	sanitized := e.sanitizer.Sanitize(string(body))

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(sanitized), pageURL)
	if err != nil {
		return "", fmt.Errorf("parse content failed: %w", err)
	}

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("render failed: %w", err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("no readable content at %s", link)
	}
	return buf.String(), nil
}

// AIEnhancer asks an LLM for the summary.
type AIEnhancer struct {
	summarizer *ai.Summarizer
}

func NewAIEnhancer(summarizer *ai.Summarizer) *AIEnhancer {
	return &AIEnhancer{summarizer: summarizer}
}

func (e *AIEnhancer) Enhance(ctx context.Context, entry CandidateEntry) (EnhancedEntry, error) {
	out := EnhancedEntry{CandidateEntry: entry}
	if strings.TrimSpace(entry.Content) == "" && entry.Title == "" {
		return out, nil
	}

	summary, err := e.summarizer.Summarize(ctx, entry.Title, entry.Content)
	if err != nil {
		return EnhancedEntry{}, err
	}
	out.Summary = &summary
	return out, nil
}

// NewEnhancer builds the enhancer selected by cfg.Enhance.Mode.
func NewEnhancer(cfg config.Config, factory *network.ClientFactory) (Enhancer, error) {
	switch cfg.Enhance.Mode {
	case config.EnhancerNone:
		return NoopEnhancer{}, nil
	case config.EnhancerMarkdown, "":
		return NewMarkdownEnhancer(cfg.Enhance.SummaryMaxChars), nil
	case config.EnhancerReadability:
		client := factory.NewHTTPClient(cfg.Enhance.Timeout)
		return NewReadabilityEnhancer(client, cfg.Enhance, cfg.Fetch.MaxBytes), nil
	case config.EnhancerAI:
		provider, err := ai.NewProvider(ai.Config{
			Provider: cfg.AI.Provider,
			APIKey:   cfg.AI.APIKey,
			BaseURL:  cfg.AI.BaseURL,
			Model:    cfg.AI.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("ai enhancer: %w", err)
		}
		limiter := ai.NewRateLimiter(cfg.AI.RateLimit)
		return NewAIEnhancer(ai.NewSummarizer(provider, limiter, cfg.AI.Language)), nil
	default:
		return nil, fmt.Errorf("unknown enhancer %q", cfg.Enhance.Mode)
	}
}
