package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/fetch"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://arxiv.org/abs/2608.01234", "paper"},
		{"https://arxiv.org/pdf/2608.01234", "paper"},
		{"https://github.com/someorg/somerepo", "repository"},
		// Repository resolution goes through the GitHub API, so other
		// forges are fetched as plain pages.
		{"https://gitlab.com/group/project", "page"},
		{"https://lab.example.com/posts/announcement", "page"},
		{"not a url", "page"},
	}
	for _, tt := range tests {
		if got := Classify(tt.link); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestPaperIDRegex(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://arxiv.org/abs/2608.01234", "2608.01234"},
		{"https://arxiv.org/pdf/2608.01234v2", "2608.01234"},
		{"https://arxiv.org/list/cs.AI/recent", ""},
	}
	for _, tt := range tests {
		match := paperIDRegex.FindStringSubmatch(tt.link)
		got := ""
		if match != nil {
			got = match[1]
		}
		if got != tt.want {
			t.Errorf("paper id for %q = %q, want %q", tt.link, got, tt.want)
		}
	}
}

const paperFeed = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<entry>
	<title>Scaling Test-Time Compute</title>
	<summary>We study inference-time scaling strategies.</summary>
	<published>2026-08-20T00:00:00Z</published>
	<author><name>A. Researcher</name></author>
	<author><name>B. Researcher</name></author>
	<category term="cs.LG"/>
	<category term="cs.AI"/>
</entry>
</feed>`

func TestFetchPaper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id_list"); got != "2608.01234" {
			t.Errorf("id_list = %q", got)
		}
		fmt.Fprint(w, paperFeed)
	}))
	defer server.Close()

	c := New(fetch.NewClient(time.Second), Options{MaxPaperChars: 2000}, time.Second)
	c.SetPaperAPIURL(server.URL)

	ref, err := c.fetchPaper(context.Background(), "https://arxiv.org/abs/2608.01234")
	if err != nil {
		t.Fatalf("fetchPaper returned error: %v", err)
	}
	if ref == nil {
		t.Fatal("fetchPaper returned nil reference")
	}
	if ref.SourceType != "paper" {
		t.Errorf("source type = %q", ref.SourceType)
	}
	if ref.Title != "Scaling Test-Time Compute" {
		t.Errorf("title = %q", ref.Title)
	}
	if ref.Metadata["authors"] != "A. Researcher, B. Researcher" {
		t.Errorf("authors = %q", ref.Metadata["authors"])
	}
	if ref.Metadata["categories"] != "cs.LG, cs.AI" {
		t.Errorf("categories = %q", ref.Metadata["categories"])
	}
}

func TestFetchPaperUnusableLink(t *testing.T) {
	c := New(fetch.NewClient(time.Second), Options{}, time.Second)
	ref, err := c.fetchPaper(context.Background(), "https://arxiv.org/list/cs.AI/recent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != nil {
		t.Errorf("expected nil reference for unusable link, got %+v", ref)
	}
}

func TestFetchRepository(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token test-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/repos/someorg/somerepo":
			fmt.Fprint(w, `{"full_name":"someorg/somerepo","description":"An agent framework","stargazers_count":1234,"forks_count":56,"language":"Python"}`)
		case "/repos/someorg/somerepo/readme":
			if got := r.Header.Get("Accept"); got != "application/vnd.github.v3.raw" {
				t.Errorf("readme Accept = %q", got)
			}
			fmt.Fprint(w, "# somerepo\nGetting started instructions.")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(fetch.NewClient(time.Second), Options{GitHubToken: "test-token", MaxReadmeChars: 2000}, time.Second)
	c.SetRepoAPIURL(server.URL)

	ref, err := c.fetchRepository(context.Background(), "https://github.com/someorg/somerepo")
	if err != nil {
		t.Fatalf("fetchRepository returned error: %v", err)
	}
	if ref.Title != "someorg/somerepo" {
		t.Errorf("title = %q", ref.Title)
	}
	if ref.Metadata["stars"] != "1234" {
		t.Errorf("stars = %q", ref.Metadata["stars"])
	}
	if !strings.Contains(ref.Content, "Getting started") {
		t.Errorf("readme content missing: %q", ref.Content)
	}
}

func TestFetchRepositoryReadmeFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/someorg/somerepo":
			fmt.Fprint(w, `{"full_name":"someorg/somerepo","stargazers_count":7}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(fetch.NewClient(time.Second), Options{}, time.Second)
	c.SetRepoAPIURL(server.URL)

	ref, err := c.fetchRepository(context.Background(), "https://github.com/someorg/somerepo.git")
	if err != nil {
		t.Fatalf("fetchRepository returned error: %v", err)
	}
	if ref.Content != "" {
		t.Errorf("expected empty content when readme is missing, got %q", ref.Content)
	}
	if ref.Metadata["stars"] != "7" {
		t.Errorf("stars = %q", ref.Metadata["stars"])
	}
}

func TestCrawlReferencesIsolatesFailures(t *testing.T) {
	longBody := strings.Repeat("Readable page body. ", 30)
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			fmt.Fprintf(w, "<html><head><title>Good page</title></head><body><article><p>%s</p></article></body></html>", longBody)
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	defer pages.Close()

	c := New(fetch.NewClient(time.Second), Options{MaxPageChars: 3000}, time.Second)

	items := []core.ContentItem{{
		ID:             "post:1",
		ReferenceLinks: []string{pages.URL + "/bad", pages.URL + "/good"},
	}}
	notebook := core.NewNotebook(time.Now().UTC(), nil)

	items = c.CrawlReferences(context.Background(), items, notebook)

	if len(items[0].References) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(items[0].References))
	}
	if items[0].References[0].SourceURL != pages.URL+"/good" {
		t.Errorf("reference url = %q", items[0].References[0].SourceURL)
	}
	if items[0].References[0].SourceType != "page" {
		t.Errorf("reference type = %q", items[0].References[0].SourceType)
	}
	if _, ok := notebook.StageErrors["crawl:"+pages.URL+"/bad"]; !ok {
		t.Errorf("failed link not recorded in notebook: %v", notebook.StageErrors)
	}
}
