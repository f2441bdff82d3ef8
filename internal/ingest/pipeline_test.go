package ingest_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/repository"
	"newsfeed/backend/internal/repository/testutil"
)

// feedServer serves a mutable feed document and honours If-None-Match.
type feedServer struct {
	*httptest.Server

	mu     sync.Mutex
	body   string
	status int
	etag   string
}

func newFeedServer(t *testing.T, body string) *feedServer {
	t.Helper()
	fs := &feedServer{body: body, status: http.StatusOK}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		body, status, etag := fs.body, fs.status, fs.etag
		fs.mu.Unlock()

		if etag != "" {
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", etag)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(body string, status int, etag string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body, fs.status, fs.etag = body, status, etag
}

func rssFeed(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title><link>https://example.com/</link>`, title)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, link := range links {
		fmt.Fprintf(&b, `<item><title>Post %d</title><link>%s</link><description>&lt;p&gt;Body %d&lt;/p&gt;</description><pubDate>%s</pubDate></item>`,
			i, link, i, base.Add(time.Duration(i)*time.Hour).Format(time.RFC1123Z))
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

type pipelineEnv struct {
	db       *sql.DB
	feeds    repository.FeedRepository
	articles repository.ArticleRepository
	feedID   int64
	server   *feedServer
}

func newPipelineEnv(t *testing.T, feedTitle, body string) *pipelineEnv {
	t.Helper()
	database := testutil.NewTestDB(t)
	srv := newFeedServer(t, body)
	feedID := testutil.SeedFeed(t, database, model.Feed{Title: feedTitle, URL: srv.URL})
	return &pipelineEnv{
		db:       database,
		feeds:    repository.NewFeedRepository(database),
		articles: repository.NewArticleRepository(database),
		feedID:   feedID,
		server:   srv,
	}
}

func (e *pipelineEnv) pipeline(enhancer ingest.Enhancer, workers int) *ingest.Pipeline {
	fetcher := newTestFetcher(2*time.Second, 1<<20)
	return ingest.NewPipeline(
		e.feeds,
		fetcher,
		ingest.NewParser(),
		ingest.NewDeduplicator(e.articles, nil),
		enhancer,
		ingest.NewWriter(e.articles, nil),
		ingest.Options{EnhanceTimeout: time.Second, Workers: workers},
	)
}

func (e *pipelineEnv) run(t *testing.T, p *ingest.Pipeline) ingest.IngestResult {
	t.Helper()
	return p.IngestFeed(context.Background(), e.feedID, e.server.URL)
}

func (e *pipelineEnv) storedLinks(t *testing.T) []string {
	t.Helper()
	articles, err := e.articles.ListByFeed(context.Background(), e.feedID, 0)
	require.NoError(t, err)
	links := make([]string, len(articles))
	for i, a := range articles {
		links[i] = a.Link
	}
	return links
}

func TestPipeline_IngestsOnlyNewEntries(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a", "https://example.com/b", "https://example.com/c"))
	p := env.pipeline(ingest.NewMarkdownEnhancer(500), 4)

	first := env.run(t, p)
	require.Equal(t, ingest.StateDone, first.State)
	require.Equal(t, 3, first.Inserted)
	require.Equal(t, 0, first.Skipped)
	require.NotEmpty(t, first.RunID)

	env.server.set(rssFeed("Example", "https://example.com/a", "https://example.com/b", "https://example.com/c", "https://example.com/d"), http.StatusOK, "")

	second := env.run(t, p)
	require.Equal(t, ingest.StateDone, second.State)
	require.Equal(t, 1, second.Inserted)
	require.Equal(t, 3, second.Skipped)
	require.NotEqual(t, first.RunID, second.RunID)

	require.Equal(t, []string{
		"https://example.com/d",
		"https://example.com/c",
		"https://example.com/b",
		"https://example.com/a",
	}, env.storedLinks(t))

	articles, err := env.articles.ListByFeed(context.Background(), env.feedID, 1)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.NotNil(t, articles[0].Summary)
	require.Equal(t, "Body 3", *articles[0].Summary)
	require.Equal(t, "<p>Body 3</p>", *articles[0].Content)
}

func TestPipeline_Idempotent(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a", "https://example.com/b"))
	p := env.pipeline(ingest.NoopEnhancer{}, 2)

	require.Equal(t, 2, env.run(t, p).Inserted)
	again := env.run(t, p)
	require.Equal(t, ingest.StateDone, again.State)
	require.Equal(t, 0, again.Inserted)
	require.Equal(t, 2, again.Skipped)

	count, err := env.articles.CountByFeed(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPipeline_ConcurrentRunsInsertOnce(t *testing.T) {
	links := make([]string, 10)
	for i := range links {
		links[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	env := newPipelineEnv(t, "", rssFeed("Example", links...))
	p := env.pipeline(ingest.NoopEnhancer{}, 4)

	const runs = 5
	results := make([]ingest.IngestResult, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.IngestFeed(context.Background(), env.feedID, env.server.URL)
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, r := range results {
		require.Equal(t, ingest.StateDone, r.State, r.Error)
		require.Zero(t, r.PersistFailures)
		require.Equal(t, len(links), r.Inserted+r.Skipped)
		inserted += r.Inserted
	}
	require.Equal(t, len(links), inserted)

	count, err := env.articles.CountByFeed(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Equal(t, len(links), count)
}

func TestPipeline_MalformedDocumentLeavesStoreUntouched(t *testing.T) {
	env := newPipelineEnv(t, "", "<html><body>not a feed</body></html>")
	result := env.run(t, env.pipeline(nil, 2))

	require.Equal(t, ingest.StateFailed, result.State)
	require.Equal(t, "malformed", result.Reason)
	require.ErrorIs(t, result.Err, ingest.ErrParse)
	require.Empty(t, env.storedLinks(t))

	feed, err := env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Empty(t, feed.Title)
	require.Nil(t, feed.LastFetchedAt)
}

func TestPipeline_HTTPErrorFailsRun(t *testing.T) {
	env := newPipelineEnv(t, "", "")
	env.server.set("oops", http.StatusInternalServerError, "")

	result := env.run(t, env.pipeline(nil, 2))
	require.True(t, result.Failed())
	require.Equal(t, "http_status", result.Reason)
	require.ErrorIs(t, result.Err, ingest.ErrFetch)

	var fe *ingest.FetchError
	require.True(t, errors.As(result.Err, &fe))
	require.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	require.Empty(t, env.storedLinks(t))
}

func TestPipeline_PartiallyMalformedDocument(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Partial</title><link>https://example.com/</link>
<item><title>A</title><link>https://example.com/a</link></item>
<item><title>Broken</title><link>https://example.com/broken</link><description>1 < 2</description></item>
<item><title>C</title><link>https://example.com/c</link></item>
</channel></rss>`
	env := newPipelineEnv(t, "", doc)

	result := env.run(t, env.pipeline(nil, 2))
	require.Equal(t, ingest.StateDone, result.State)
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 1, result.Dropped)
	require.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/c"}, env.storedLinks(t))
}

type flakyEnhancer struct {
	failLink string
}

func (e flakyEnhancer) Enhance(ctx context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error) {
	if entry.Link == e.failLink {
		return ingest.EnhancedEntry{}, errors.New("summarizer unavailable")
	}
	summary := "summary of " + entry.Title
	return ingest.EnhancedEntry{CandidateEntry: entry, Summary: &summary}, nil
}

func TestPipeline_EnhanceFailureStillPersists(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a", "https://example.com/b", "https://example.com/c"))

	result := env.run(t, env.pipeline(flakyEnhancer{failLink: "https://example.com/b"}, 2))
	require.Equal(t, ingest.StateDone, result.State)
	require.Equal(t, 3, result.Inserted)
	require.Equal(t, 1, result.EnhanceFailures)

	articles, err := env.articles.ListByFeed(context.Background(), env.feedID, 0)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	for _, a := range articles {
		if a.Link == "https://example.com/b" {
			require.Nil(t, a.Summary)
			require.Equal(t, "Post 1", a.Title)
		} else {
			require.NotNil(t, a.Summary)
		}
	}
}

func TestPipeline_SlowEnhancerTimesOut(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a"))
	slow := enhancerFunc(func(ctx context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error) {
		<-ctx.Done()
		return ingest.EnhancedEntry{}, ctx.Err()
	})

	p := ingest.NewPipeline(env.feeds, newTestFetcher(2*time.Second, 1<<20), ingest.NewParser(),
		ingest.NewDeduplicator(env.articles, nil), slow, ingest.NewWriter(env.articles, nil),
		ingest.Options{EnhanceTimeout: 50 * time.Millisecond, Workers: 1})

	result := env.run(t, p)
	require.Equal(t, ingest.StateDone, result.State)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 1, result.EnhanceFailures)
}

type enhancerFunc func(ctx context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error)

func (f enhancerFunc) Enhance(ctx context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error) {
	return f(ctx, entry)
}

func TestPipeline_DedupKeyIsExactLink(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a/", "https://example.com/a?ref=rss"))
	testutil.SeedArticle(t, env.db, model.Article{FeedID: env.feedID, Title: "old", Link: "https://example.com/a"})

	result := env.run(t, env.pipeline(nil, 2))
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 0, result.Skipped)
	require.Len(t, env.storedLinks(t), 3)
}

func TestPipeline_ConditionalGet(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Example", "https://example.com/a"))
	env.server.set(rssFeed("Example", "https://example.com/a"), http.StatusOK, `"v1"`)
	p := env.pipeline(nil, 2)

	first := env.run(t, p)
	require.Equal(t, 1, first.Inserted)

	feed, err := env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.NotNil(t, feed.ETag)
	require.Equal(t, `"v1"`, *feed.ETag)
	require.NotNil(t, feed.LastFetchedAt)

	second := env.run(t, p)
	require.Equal(t, ingest.StateDone, second.State)
	require.True(t, second.NotModified)
	require.Zero(t, second.Inserted)
	require.Zero(t, second.Skipped)
}

func TestPipeline_BackfillsEmptyTitleOnly(t *testing.T) {
	env := newPipelineEnv(t, "", rssFeed("Backfilled", "https://example.com/a"))
	env.run(t, env.pipeline(nil, 1))

	feed, err := env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Equal(t, "Backfilled", feed.Title)
	require.NotNil(t, feed.SiteURL)
	require.Equal(t, "https://example.com/", *feed.SiteURL)

	named := newPipelineEnv(t, "My Title", rssFeed("Upstream", "https://example.com/a"))
	named.run(t, named.pipeline(nil, 1))

	feed, err = named.feeds.GetByID(context.Background(), named.feedID)
	require.NoError(t, err)
	require.Equal(t, "My Title", feed.Title)
}

func TestPipeline_CancelledMidRun(t *testing.T) {
	links := make([]string, 6)
	for i := range links {
		links[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	env := newPipelineEnv(t, "", rssFeed("Example", links...))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := enhancerFunc(func(_ context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error) {
		cancel()
		return ingest.EnhancedEntry{CandidateEntry: entry}, nil
	})

	p := ingest.NewPipeline(env.feeds, newTestFetcher(2*time.Second, 1<<20), ingest.NewParser(),
		ingest.NewDeduplicator(env.articles, nil), cancelling, ingest.NewWriter(env.articles, nil),
		ingest.Options{Workers: 1})

	result := p.IngestFeed(ctx, env.feedID, env.server.URL)
	require.Equal(t, ingest.StateFailed, result.State)
	require.Equal(t, "cancelled", result.Reason)
	require.Less(t, len(env.storedLinks(t)), len(links))
}

// failOnceArticles fails the first insert of failLink with a storage error.
type failOnceArticles struct {
	repository.ArticleRepository

	mu       sync.Mutex
	failLink string
	failed   bool
}

func (a *failOnceArticles) InsertIfAbsent(ctx context.Context, article model.Article) (bool, error) {
	a.mu.Lock()
	fail := article.Link == a.failLink && !a.failed
	if fail {
		a.failed = true
	}
	a.mu.Unlock()
	if fail {
		return false, errors.New("disk I/O error")
	}
	return a.ArticleRepository.InsertIfAbsent(ctx, article)
}

func TestPipeline_PersistFailureKeepsSiblingsAndRetriesNextRun(t *testing.T) {
	body := rssFeed("Example", "https://example.com/a", "https://example.com/b", "https://example.com/c")
	env := newPipelineEnv(t, "", body)
	env.server.set(body, http.StatusOK, `"v1"`)

	articles := &failOnceArticles{ArticleRepository: env.articles, failLink: "https://example.com/b"}
	p := ingest.NewPipeline(env.feeds, newTestFetcher(2*time.Second, 1<<20), ingest.NewParser(),
		ingest.NewDeduplicator(articles, nil), ingest.NoopEnhancer{}, ingest.NewWriter(articles, nil),
		ingest.Options{Workers: 2})

	first := env.run(t, p)
	require.Equal(t, ingest.StateDone, first.State)
	require.Equal(t, 2, first.Inserted)
	require.Equal(t, 1, first.PersistFailures)
	require.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/c"}, env.storedLinks(t))

	feed, err := env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Nil(t, feed.ETag)
	require.NotNil(t, feed.LastFetchedAt)

	second := env.run(t, p)
	require.Equal(t, ingest.StateDone, second.State)
	require.False(t, second.NotModified)
	require.Equal(t, 1, second.Inserted)
	require.Equal(t, 2, second.Skipped)
	require.Zero(t, second.PersistFailures)
	require.Len(t, env.storedLinks(t), 3)

	feed, err = env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.NotNil(t, feed.ETag)
	require.Equal(t, `"v1"`, *feed.ETag)

	third := env.run(t, p)
	require.True(t, third.NotModified)
}

func TestPipeline_CancelledRunClearsValidators(t *testing.T) {
	links := []string{"https://example.com/0", "https://example.com/1", "https://example.com/2"}
	body := rssFeed("Example", links...)
	env := newPipelineEnv(t, "", body)
	env.server.set(body, http.StatusOK, `"v1"`)

	etag := `"v0"`
	require.NoError(t, env.feeds.UpdateFetchState(context.Background(), env.feedID, repository.FetchState{ETag: &etag, FetchedAt: time.Now()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := enhancerFunc(func(_ context.Context, entry ingest.CandidateEntry) (ingest.EnhancedEntry, error) {
		cancel()
		return ingest.EnhancedEntry{CandidateEntry: entry}, nil
	})
	p := ingest.NewPipeline(env.feeds, newTestFetcher(2*time.Second, 1<<20), ingest.NewParser(),
		ingest.NewDeduplicator(env.articles, nil), cancelling, ingest.NewWriter(env.articles, nil),
		ingest.Options{Workers: 1})

	result := p.IngestFeed(ctx, env.feedID, env.server.URL)
	require.Equal(t, "cancelled", result.Reason)

	feed, err := env.feeds.GetByID(context.Background(), env.feedID)
	require.NoError(t, err)
	require.Nil(t, feed.ETag)

	again := env.run(t, env.pipeline(nil, 2))
	require.Equal(t, ingest.StateDone, again.State)
	require.False(t, again.NotModified)
	require.Len(t, env.storedLinks(t), len(links))
}
