// Package fetch retrieves and caches web page content for the link stage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/educore/tutor/internal/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// maxFetchers bounds concurrent link fetches per query.
const maxFetchers = 4

// Page is the text content of one fetched link.
type Page struct {
	LinkID    string
	URL       string
	Title     string
	Text      string
	FetchedAt time.Time
}

// Fetcher downloads link content with a freshness TTL cache so repeated
// queries against the same agent do not re-fetch every page.
type Fetcher struct {
	client   *http.Client
	ttl      time.Duration
	maxChars int
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*Page
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets a logger for fetch failures and cache hits.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher creates a fetcher. ttl is the cache freshness window; fetchTimeout
// bounds each individual download; maxChars caps extracted text per page.
func NewFetcher(ttl, fetchTimeout time.Duration, maxChars int, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: fetchTimeout},
		ttl:      ttl,
		maxChars: maxChars,
		cache:    make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll retrieves content for the given links concurrently. Individual
// fetch failures are logged and skipped; the returned slice holds only the
// pages that succeeded (possibly none). Cached pages within the TTL are
// returned without a network call.
func (f *Fetcher) FetchAll(ctx context.Context, links []*models.Link) []*Page {
	results := make([]*Page, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchers)
	for i, link := range links {
		g.Go(func() error {
			page, err := f.fetch(gctx, link)
			if err != nil {
				if f.logger != nil {
					f.logger.Warn("link fetch failed",
						zap.String("url", link.URL),
						zap.Error(err),
					)
				}
				return nil // partial failure does not abort the stage
			}
			results[i] = page
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]*Page, 0, len(links))
	for _, p := range results {
		if p != nil {
			pages = append(pages, p)
		}
	}
	return pages
}

func (f *Fetcher) fetch(ctx context.Context, link *models.Link) (*Page, error) {
	f.mu.Lock()
	cached, ok := f.cache[link.URL]
	f.mu.Unlock()
	if ok && time.Since(cached.FetchedAt) < f.ttl {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", link.URL, resp.StatusCode)
	}

	text, err := ExtractText(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", link.URL, err)
	}
	if f.maxChars > 0 && len(text) > f.maxChars {
		// Back off to a rune boundary so the cap never splits a UTF-8 sequence.
		cut := f.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("fetch %s: empty content", link.URL)
	}

	page := &Page{
		LinkID:    link.ID,
		URL:       link.URL,
		Title:     link.Title,
		Text:      text,
		FetchedAt: time.Now(),
	}
	f.mu.Lock()
	f.cache[link.URL] = page
	f.mu.Unlock()
	return page, nil
}

// Invalidate drops the cached page for a URL, forcing a re-fetch.
func (f *Fetcher) Invalidate(url string) {
	f.mu.Lock()
	delete(f.cache, url)
	f.mu.Unlock()
}

// skipElements are HTML elements whose text is boilerplate, not content.
var skipElements = map[string]bool{
	"script": true, "style": true, "nav": true,
	"footer": true, "header": true, "noscript": true,
}

// ExtractText parses HTML and returns the visible text with boilerplate
// elements (script, style, nav, footer, header) removed. Lines are trimmed
// and blank lines dropped.
func ExtractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}
