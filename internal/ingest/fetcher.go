package ingest

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/Noooste/azuretls-client"
	"github.com/andybalholm/brotli"

	"newsfeed/backend/internal/config"
	"newsfeed/backend/internal/network"
)

// Fetcher retrieves a feed document. It never retries.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, validators Validators) (RawDocument, error)
}

// NewFetcher returns the fetcher selected by cfg.Client.
func NewFetcher(factory *network.ClientFactory, cfg config.FetchConfig) Fetcher {
	if cfg.Client == config.FetchClientBrowser {
		return NewBrowserFetcher(factory, cfg)
	}
	return NewHTTPFetcher(factory, cfg)
}

// HTTPFetcher fetches with net/http.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(factory *network.ClientFactory, cfg config.FetchConfig) *HTTPFetcher {
	return &HTTPFetcher{
		client:    factory.NewHTTPClient(cfg.Timeout),
		maxBytes:  cfg.MaxBytes,
		userAgent: config.DefaultUserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string, validators Validators) (RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return RawDocument{}, &FetchError{Kind: FetchConnectionFailed, URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8")

	// Conditional GET
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return RawDocument{}, classifyTransportError(feedURL, err)
	}
	defer resp.Body.Close()

	doc := RawDocument{
		URL:          feedURL,
		FinalURL:     resp.Request.URL.String(),
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
	}

	if resp.StatusCode == http.StatusNotModified {
		doc.NotModified = true
		return doc, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawDocument{}, &FetchError{Kind: FetchHTTPStatus, StatusCode: resp.StatusCode, URL: feedURL}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return RawDocument{}, &FetchError{
			Kind: FetchResponseTooLarge,
			URL:  feedURL,
			Err:  fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, f.maxBytes),
		}
	}

	var reader io.Reader = resp.Body
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return RawDocument{}, classifyTransportError(feedURL, err)
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return RawDocument{}, &FetchError{
			Kind: FetchResponseTooLarge,
			URL:  feedURL,
			Err:  fmt.Errorf("body exceeds %d bytes", f.maxBytes),
		}
	}

	doc.Body = body
	return doc, nil
}

// classifyTransportError maps a client error onto a FetchError kind.
// Deadlines are timeouts; dial failures and caller cancellation are
// connection failures even when the dialer reports a timeout.
func classifyTransportError(feedURL string, err error) *FetchError {
	kind := FetchConnectionFailed

	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.Is(err, context.Canceled):
		kind = FetchConnectionFailed
	case errors.As(err, &opErr) && opErr.Op == "dial":
		kind = FetchConnectionFailed
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	}

	return &FetchError{Kind: kind, URL: feedURL, Err: err}
}

// BrowserFetcher fetches through azuretls with a Chrome TLS fingerprint, for
// hosts that reject non-browser handshakes.
type BrowserFetcher struct {
	factory  *network.ClientFactory
	cfg      config.FetchConfig
	maxBytes int64
}

func NewBrowserFetcher(factory *network.ClientFactory, cfg config.FetchConfig) *BrowserFetcher {
	return &BrowserFetcher{factory: factory, cfg: cfg, maxBytes: cfg.MaxBytes}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, feedURL string, validators Validators) (RawDocument, error) {
	session := f.factory.NewAzureSession(f.cfg.Timeout)
	defer session.Close()

	headers := azuretls.OrderedHeaders{
		{"accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"},
		{"sec-ch-ua", config.ChromeSecChUa},
		{"sec-ch-ua-mobile", "?0"},
		{"sec-ch-ua-platform", `"Windows"`},
		{"user-agent", config.ChromeUserAgent},
	}
	if validators.ETag != "" {
		headers = append(headers, []string{"if-none-match", validators.ETag})
	}
	if validators.LastModified != "" {
		headers = append(headers, []string{"if-modified-since", validators.LastModified})
	}

	// With IgnoreBody azuretls applies no deadline of its own, so the
	// request context bounds both the exchange and the body read.
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}
	req := &azuretls.Request{
		Method:         http.MethodGet,
		Url:            feedURL,
		OrderedHeaders: headers,
		IgnoreBody:     true,
	}
	req.SetContext(ctx)

	resp, err := session.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return RawDocument{}, classifyTransportError(feedURL, err)
	}
	defer resp.CloseBody()

	doc := RawDocument{
		URL:          feedURL,
		FinalURL:     feedURL,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
	}

	if resp.StatusCode == http.StatusNotModified {
		doc.NotModified = true
		return doc, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawDocument{}, &FetchError{Kind: FetchHTTPStatus, StatusCode: resp.StatusCode, URL: feedURL}
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if f.maxBytes > 0 && encoding == "" && resp.ContentLength > f.maxBytes {
		return RawDocument{}, &FetchError{
			Kind: FetchResponseTooLarge,
			URL:  feedURL,
			Err:  fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, f.maxBytes),
		}
	}

	reader, err := decodeBody(resp.RawBody, encoding)
	if err != nil {
		return RawDocument{}, &FetchError{Kind: FetchConnectionFailed, URL: feedURL, Err: err}
	}
	if f.maxBytes > 0 {
		reader = io.LimitReader(reader, f.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return RawDocument{}, classifyTransportError(feedURL, err)
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return RawDocument{}, &FetchError{
			Kind: FetchResponseTooLarge,
			URL:  feedURL,
			Err:  fmt.Errorf("body exceeds %d bytes", f.maxBytes),
		}
	}

	doc.Body = body
	return doc, nil
}

// decodeBody undoes the content codings azuretls advertises. The size cap
// applies to the decoded stream.
func decodeBody(body io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "br":
		return brotli.NewReader(body), nil
	case "deflate":
		br := bufio.NewReader(body)
		header, err := br.Peek(2)
		if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
