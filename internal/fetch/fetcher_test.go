package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/educore/tutor/internal/models"
)

const samplePage = `<html>
<head><title>School holidays</title><style>body { color: red }</style></head>
<body>
<header>Site header</header>
<nav>Home | About</nav>
<script>console.log("tracking")</script>
<p>The school holidays in 2025 run through July.</p>
<footer>copyright</footer>
</body></html>`

func TestExtractTextStripsBoilerplate(t *testing.T) {
	text, err := ExtractText(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "school holidays in 2025") {
		t.Errorf("content missing: %q", text)
	}
	for _, junk := range []string{"console.log", "color: red", "Site header", "Home | About", "copyright"} {
		if strings.Contains(text, junk) {
			t.Errorf("boilerplate %q not stripped", junk)
		}
	}
}

func TestFetchAllReturnsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(time.Minute, 5*time.Second, 5000)
	pages := f.FetchAll(context.Background(), []*models.Link{
		{ID: "l1", URL: srv.URL, Title: "Holidays"},
	})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].LinkID != "l1" || !strings.Contains(pages[0].Text, "July") {
		t.Errorf("got %+v", pages[0])
	}
}

func TestFetchAllSkipsFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	f := NewFetcher(time.Minute, 5*time.Second, 5000)
	pages := f.FetchAll(context.Background(), []*models.Link{
		{ID: "l1", URL: bad.URL},
		{ID: "l2", URL: good.URL},
	})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].LinkID != "l2" {
		t.Errorf("wrong page survived: %+v", pages[0])
	}
}

func TestFetchUsesCacheWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(time.Minute, 5*time.Second, 5000)
	links := []*models.Link{{ID: "l1", URL: srv.URL}}
	f.FetchAll(context.Background(), links)
	f.FetchAll(context.Background(), links)
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 network hit, got %d", got)
	}

	f.Invalidate(srv.URL)
	f.FetchAll(context.Background(), links)
	if got := hits.Load(); got != 2 {
		t.Errorf("expected re-fetch after invalidate, got %d hits", got)
	}
}

func TestFetchExpiredTTLRefetches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(time.Millisecond, 5*time.Second, 5000)
	links := []*models.Link{{ID: "l1", URL: srv.URL}}
	f.FetchAll(context.Background(), links)
	time.Sleep(5 * time.Millisecond)
	f.FetchAll(context.Background(), links)
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 network hits after TTL expiry, got %d", got)
	}
}

func TestFetchCapsContentLength(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("word ", 5000) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	f := NewFetcher(time.Minute, 5*time.Second, 100)
	pages := f.FetchAll(context.Background(), []*models.Link{{ID: "l1", URL: srv.URL}})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if len(pages[0].Text) > 100 {
		t.Errorf("content not capped: %d chars", len(pages[0].Text))
	}
}

// The cap counts bytes, but accented content must never be cut mid-rune.
func TestFetchCapKeepsValidUTF8(t *testing.T) {
	page := "<html><body><p>" + strings.Repeat("ã", 200) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	// 101 lands in the middle of a two-byte rune.
	f := NewFetcher(time.Minute, 5*time.Second, 101)
	pages := f.FetchAll(context.Background(), []*models.Link{{ID: "l1", URL: srv.URL}})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if !utf8.ValidString(pages[0].Text) {
		t.Error("capped text is not valid UTF-8")
	}
	if len(pages[0].Text) > 101 {
		t.Errorf("content not capped: %d bytes", len(pages[0].Text))
	}
}
