package blogs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"morningbrief/internal/fetch"
)

func TestParseFeedDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // RFC3339 in UTC, "" means nil
	}{
		{"rfc3339", "2026-08-30T12:00:00Z", "2026-08-30T12:00:00Z"},
		{"rfc3339 with offset", "2026-08-30T12:00:00+02:00", "2026-08-30T10:00:00Z"},
		{"rfc1123z", "Sun, 30 Aug 2026 12:00:00 +0000", "2026-08-30T12:00:00Z"},
		{"naive datetime is UTC", "2026-08-30T12:00:00", "2026-08-30T12:00:00Z"},
		{"date only", "2026-08-30", "2026-08-30T00:00:00Z"},
		{"empty", "", ""},
		{"garbage", "not a date", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFeedDate(tt.input)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ParseFeedDate(%q) = %v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseFeedDate(%q) = nil, want %s", tt.input, tt.want)
			}
			if got.Format(time.RFC3339) != tt.want {
				t.Errorf("ParseFeedDate(%q) = %s, want %s", tt.input, got.Format(time.RFC3339), tt.want)
			}
		})
	}
}

const rssSample = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Lab Blog</title>
<item>
	<title>New model released</title>
	<link>https://lab.example.com/posts/new-model</link>
	<description>` + "We trained a new model on a larger corpus and it performs well across every benchmark we tried, with notable gains on long-context retrieval tasks. The write-up covers data curation, training stability fixes, and evaluation methodology in detail for practitioners." + `</description>
	<pubDate>Sun, 30 Aug 2026 09:00:00 +0000</pubDate>
</item>
<item>
	<title>Old news</title>
	<link>https://lab.example.com/posts/old</link>
	<description>Long enough body for the inline threshold but published well before the cutoff window, so it must be dropped by date filtering regardless of how much content it carries. Padding padding padding padding padding padding padding padding padding.</description>
	<pubDate>Mon, 01 Jan 2024 09:00:00 +0000</pubDate>
</item>
</channel>
</rss>`

const atomSample = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Another Lab</title>
<entry>
	<title>Agents update</title>
	<link rel="alternate" href="https://other.example.com/agents-update"/>
	<content>A long-form discussion of agent orchestration patterns, tool call budgets, and the failure modes we hit when scaling multi-step workflows in production. Includes concrete traces and a checklist we now apply before shipping any new tool integration.</content>
	<published>2026-08-30T08:00:00Z</published>
</entry>
</feed>`

func TestParseFeedEntriesRSS(t *testing.T) {
	entries, err := parseFeedEntries(rssSample)
	if err != nil {
		t.Fatalf("parseFeedEntries returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].title != "New model released" {
		t.Errorf("title = %q", entries[0].title)
	}
	if entries[0].link != "https://lab.example.com/posts/new-model" {
		t.Errorf("link = %q", entries[0].link)
	}
	if entries[0].published == nil {
		t.Error("published date not parsed")
	}
}

func TestParseFeedEntriesAtom(t *testing.T) {
	entries, err := parseFeedEntries(atomSample)
	if err != nil {
		t.Fatalf("parseFeedEntries returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].link != "https://other.example.com/agents-update" {
		t.Errorf("link = %q", entries[0].link)
	}
}

func TestParseFeedEntriesRejectsGarbage(t *testing.T) {
	if _, err := parseFeedEntries("<html><body>not a feed</body></html>"); err == nil {
		t.Error("expected an error for non-feed input")
	}
}

// feedSite serves an RSS feed at /feed and rewrites item links to itself.
func feedSite(t *testing.T, feed string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed":
			w.Header().Set("Content-Type", "application/rss+xml")
			body := strings.ReplaceAll(feed, "https://lab.example.com", server.URL)
			fmt.Fprint(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func TestCollectFromFeed(t *testing.T) {
	server := feedSite(t, rssSample)
	defer server.Close()

	c := New(fetch.NewClient(time.Second), Options{
		Sites:           []string{server.URL},
		MaxContentChars: 3000,
	})

	cutoff := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	out := c.Collect(context.Background(), cutoff)

	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", out.Errors)
	}
	if len(out.Articles) != 1 {
		t.Fatalf("expected 1 recent article, got %d", len(out.Articles))
	}
	if out.Articles[0].Title != "New model released" {
		t.Errorf("title = %q", out.Articles[0].Title)
	}
	if out.Articles[0].SourceSite != server.URL {
		t.Errorf("source site = %q, want %q", out.Articles[0].SourceSite, server.URL)
	}
}

func TestCollectIsolatesSiteFailures(t *testing.T) {
	good1 := feedSite(t, rssSample)
	defer good1.Close()
	good2 := feedSite(t, rssSample)
	defer good2.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := New(fetch.NewClient(time.Second), Options{
		Sites:           []string{good1.URL, bad.URL, good2.URL},
		MaxContentChars: 3000,
	})

	cutoff := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	out := c.Collect(context.Background(), cutoff)

	if len(out.Articles) != 2 {
		t.Fatalf("expected articles from the two healthy sites, got %d", len(out.Articles))
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected exactly one site error, got %v", out.Errors)
	}
	if !strings.Contains(out.Errors[0], bad.URL) {
		t.Errorf("error does not name the failing site: %q", out.Errors[0])
	}
}

func TestCollectCandidateLinks(t *testing.T) {
	html := `<html><body>
		<a href="/posts/good-article">A good article</a>
		<a href="/tag/llm">Tag page</a>
		<a href="/about">About</a>
		<a href="/posts/other?page=2">Paginated</a>
		<a href="https://elsewhere.example.com/post">External</a>
		<a href="/posts/good-article">Duplicate</a>
		<a href="/posts/second">Second article</a>
	</body></html>`

	candidates := collectCandidateLinks(html, "https://lab.example.com/", 5)

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].href != "https://lab.example.com/posts/good-article" {
		t.Errorf("first candidate = %q", candidates[0].href)
	}
	if candidates[1].href != "https://lab.example.com/posts/second" {
		t.Errorf("second candidate = %q", candidates[1].href)
	}
}

func TestScrapeFallbackRequiresDate(t *testing.T) {
	longBody := strings.Repeat("Substantial article body text. ", 20)
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><body>
				<a href="/posts/dated">Dated post</a>
				<a href="/posts/undated">Undated post</a>
			</body></html>`)
		case "/posts/dated":
			fmt.Fprintf(w, `<html><head>
				<meta property="article:published_time" content="2026-08-30T10:00:00Z">
				</head><body><article><p>%s</p></article></body></html>`, longBody)
		case "/posts/undated":
			fmt.Fprintf(w, `<html><body><article><p>%s</p></article></body></html>`, longBody)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(fetch.NewClient(time.Second), Options{
		Sites:                []string{server.URL},
		MaxContentChars:      3000,
		RequireDatedFallback: true,
	})

	cutoff := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	out := c.Collect(context.Background(), cutoff)

	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", out.Errors)
	}
	if len(out.Articles) != 1 {
		t.Fatalf("expected only the dated page, got %d articles", len(out.Articles))
	}
	if out.Articles[0].Title != "Dated post" {
		t.Errorf("title = %q", out.Articles[0].Title)
	}
}
