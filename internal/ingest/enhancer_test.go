package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/network"
	"newsfeed/backend/internal/service/ai"
)

func TestNoopEnhancer(t *testing.T) {
	entry := ingest.CandidateEntry{Title: "t", Link: "https://example.com/a", Content: "<p>x</p>"}
	out, err := ingest.NoopEnhancer{}.Enhance(context.Background(), entry)
	require.NoError(t, err)
	require.Nil(t, out.Summary)
	require.Equal(t, entry, out.CandidateEntry)
}

func TestMarkdownEnhancer_Summarizes(t *testing.T) {
	e := ingest.NewMarkdownEnhancer(500)
	out, err := e.Enhance(context.Background(), ingest.CandidateEntry{
		Link:    "https://example.com/posts/1",
		Content: `<p>Hello <strong>world</strong></p><script>alert(1)</script><p><a href="/about">About</a></p>`,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	require.Contains(t, *out.Summary, "Hello **world**")
	require.Contains(t, *out.Summary, "https://example.com/about")
	require.NotContains(t, *out.Summary, "alert")
}

func TestMarkdownEnhancer_EmptyContent(t *testing.T) {
	out, err := ingest.NewMarkdownEnhancer(500).Enhance(context.Background(), ingest.CandidateEntry{Link: "https://example.com/a"})
	require.NoError(t, err)
	require.Nil(t, out.Summary)
}

func TestMarkdownEnhancer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ingest.NewMarkdownEnhancer(500).Enhance(ctx, ingest.CandidateEntry{Content: "<p>x</p>"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCondense(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{"fits", "short text", 100, "short text"},
		{"unbounded", "anything goes", 0, "anything goes"},
		{"whole paragraphs", "para one\n\npara two is long", 10, "para one"},
		{"two paragraphs", "one\n\ntwo\n\nthree", 9, "one\n\ntwo"},
		{"word boundary", "alpha beta gamma delta", 12, "alpha beta…"},
		{"trims", "  padded  ", 100, "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ingest.Condense(tt.in, tt.maxChars))
		})
	}
}

const articlePage = `<!DOCTYPE html>
<html><head><title>Full story</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Full story</h1>
<p>The full article body explains the release in detail, covering every change that landed in the new version and why it matters to operators running it in production.</p>
<p>A second paragraph walks through the migration steps, including the configuration keys that were renamed and the defaults that changed between the two versions.</p>
<p>A third paragraph closes with the roadmap for the next quarter and thanks the contributors who reviewed the work over the past several months.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newReadabilityEnhancer(t *testing.T, handler http.HandlerFunc) (*ingest.ReadabilityEnhancer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e := ingest.NewReadabilityEnhancer(srv.Client(), config.EnhanceConfig{
		SummaryMaxChars:     2000,
		ReadabilityMinChars: 200,
	}, 1<<20)
	return e, srv
}

func TestReadabilityEnhancer_FetchesThinEntries(t *testing.T) {
	var userAgent string
	e, srv := newReadabilityEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	})

	entry := ingest.CandidateEntry{Title: "Full story", Link: srv.URL + "/story", Content: "<p>teaser</p>"}
	out, err := e.Enhance(context.Background(), entry)
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	require.Contains(t, *out.Summary, "migration steps")
	require.Equal(t, "<p>teaser</p>", out.Content)
	require.Equal(t, config.ChromeUserAgent, userAgent)
}

func TestReadabilityEnhancer_RichEntrySkipsFetch(t *testing.T) {
	called := false
	e, srv := newReadabilityEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	content := "<p>" + strings.Repeat("Plenty of inline content here. ", 20) + "</p>"
	out, err := e.Enhance(context.Background(), ingest.CandidateEntry{Link: srv.URL + "/story", Content: content})
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	require.False(t, called)
}

func TestReadabilityEnhancer_PageError(t *testing.T) {
	e, srv := newReadabilityEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	_, err := e.Enhance(context.Background(), ingest.CandidateEntry{Link: srv.URL + "/story", Content: "<p>teaser</p>"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "410")
}

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(context.Context, string, string) (string, error) {
	return p.reply, p.err
}

func TestAIEnhancer(t *testing.T) {
	summarizer := ai.NewSummarizer(&stubProvider{reply: "- key point"}, ai.NewRateLimiter(100), "en-US")
	out, err := ingest.NewAIEnhancer(summarizer).Enhance(context.Background(), ingest.CandidateEntry{
		Title:   "Title",
		Content: "<p>Body</p>",
	})
	require.NoError(t, err)
	require.Equal(t, "- key point", *out.Summary)
}

func TestAIEnhancer_ProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	summarizer := ai.NewSummarizer(&stubProvider{err: boom}, ai.NewRateLimiter(100), "en-US")
	_, err := ingest.NewAIEnhancer(summarizer).Enhance(context.Background(), ingest.CandidateEntry{Content: "<p>Body</p>"})
	require.ErrorIs(t, err, boom)
}

func TestNewEnhancer(t *testing.T) {
	factory := network.NewClientFactory("", time.Second)
	base := config.Config{Enhance: config.EnhanceConfig{SummaryMaxChars: 100, Timeout: time.Second}}

	tests := []struct {
		mode string
		want any
	}{
		{config.EnhancerNone, ingest.NoopEnhancer{}},
		{config.EnhancerMarkdown, &ingest.MarkdownEnhancer{}},
		{"", &ingest.MarkdownEnhancer{}},
		{config.EnhancerReadability, &ingest.ReadabilityEnhancer{}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := base
			cfg.Enhance.Mode = tt.mode
			e, err := ingest.NewEnhancer(cfg, factory)
			require.NoError(t, err)
			require.IsType(t, tt.want, e)
		})
	}

	cfg := base
	cfg.Enhance.Mode = config.EnhancerAI
	cfg.AI = config.AIConfig{Provider: "openai", Model: "gpt-4o-mini"}
	_, err := ingest.NewEnhancer(cfg, factory)
	require.ErrorIs(t, err, ai.ErrMissingAPIKey)

	cfg.AI.APIKey = "sk-test"
	e, err := ingest.NewEnhancer(cfg, factory)
	require.NoError(t, err)
	require.IsType(t, &ingest.AIEnhancer{}, e)

	cfg.Enhance.Mode = "bogus"
	_, err = ingest.NewEnhancer(cfg, factory)
	require.Error(t, err)
}
