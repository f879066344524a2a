// Package crawler resolves the outbound links of each content item one level
// deep into structured reference content.
package crawler

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/fetch"
	"morningbrief/internal/logger"
)

const (
	// DefaultPaperAPIURL is the arXiv metadata query endpoint.
	DefaultPaperAPIURL = "http://export.arxiv.org/api/query"
	// DefaultRepoAPIURL is the GitHub REST endpoint.
	DefaultRepoAPIURL = "https://api.github.com"
)

// Options configures the reference crawler.
type Options struct {
	GitHubToken    string
	MaxPaperChars  int
	MaxReadmeChars int
	MaxPageChars   int
}

// Crawler fetches reference content for outbound links.
type Crawler struct {
	client      *fetch.Client
	httpClient  *http.Client
	paperAPIURL string
	repoAPIURL  string
	options     Options
}

// New creates a crawler. A zero timeout falls back to 10s.
func New(client *fetch.Client, options Options, timeout time.Duration) *Crawler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Crawler{
		client:      client,
		httpClient:  &http.Client{Timeout: timeout},
		paperAPIURL: DefaultPaperAPIURL,
		repoAPIURL:  DefaultRepoAPIURL,
		options:     options,
	}
}

// SetPaperAPIURL overrides the paper metadata endpoint. Intended for tests.
func (c *Crawler) SetPaperAPIURL(u string) { c.paperAPIURL = u }

// SetRepoAPIURL overrides the repository metadata endpoint. Intended for tests.
func (c *Crawler) SetRepoAPIURL(u string) { c.repoAPIURL = u }

// CrawlReferences resolves every outbound link of every item and appends the
// fetched reference content to the originating item. One link's failure is
// logged and skipped; it never aborts the item's remaining links or other
// items.
func (c *Crawler) CrawlReferences(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) []core.ContentItem {
	total := 0
	for i := range items {
		for _, link := range items[i].ReferenceLinks {
			ref, err := c.fetchLink(ctx, link)
			if err != nil {
				notebook.RecordError("crawl:"+link, err)
				logger.Warn("Failed to crawl reference", "url", link, "error", err.Error())
				continue
			}
			if ref == nil {
				continue
			}
			items[i].References = append(items[i].References, *ref)
			total++
		}
	}
	logger.Info("Crawled references", "items", len(items), "references", total)
	return items
}

// Classify maps a URL to a reference type by hostname pattern.
func Classify(link string) string {
	host := ""
	if parsed, err := url.Parse(link); err == nil {
		host = parsed.Hostname()
	}
	switch {
	case strings.Contains(host, "arxiv.org"):
		return "paper"
	case strings.Contains(host, "github.com"):
		return "repository"
	default:
		return "page"
	}
}

// fetchLink dispatches a link to its type-specific fetch routine. A nil
// result with nil error means the link shape was unusable (no identifier).
func (c *Crawler) fetchLink(ctx context.Context, link string) (*core.ReferenceContent, error) {
	switch Classify(link) {
	case "paper":
		return c.fetchPaper(ctx, link)
	case "repository":
		return c.fetchRepository(ctx, link)
	default:
		return c.fetchPage(ctx, link)
	}
}

var paperIDRegex = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d+\.\d+)`)

// paperResponse mirrors the arXiv Atom query result.
type paperResponse struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Categories []struct {
			Term string `xml:"term,attr"`
		} `xml:"category"`
	} `xml:"entry"`
}

// fetchPaper resolves an arXiv id from the URL and queries the metadata API.
func (c *Crawler) fetchPaper(ctx context.Context, link string) (*core.ReferenceContent, error) {
	match := paperIDRegex.FindStringSubmatch(link)
	if match == nil {
		return nil, nil
	}
	paperID := match[1]

	queryURL := fmt.Sprintf("%s?id_list=%s&max_results=1", c.paperAPIURL, url.QueryEscape(paperID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create paper request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paper query failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paper query returned status %d", resp.StatusCode)
	}

	var parsed paperResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode paper response: %w", err)
	}
	if len(parsed.Entries) == 0 {
		return nil, nil
	}

	entry := parsed.Entries[0]
	authors := make([]string, 0, 5)
	for _, a := range entry.Authors {
		authors = append(authors, a.Name)
		if len(authors) == 5 {
			break
		}
	}
	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		categories = append(categories, cat.Term)
	}

	return &core.ReferenceContent{
		SourceURL:  link,
		SourceType: "paper",
		Title:      strings.TrimSpace(entry.Title),
		Content:    fetch.Truncate(strings.TrimSpace(entry.Summary), c.options.MaxPaperChars),
		Metadata: map[string]string{
			"paper_id":   paperID,
			"authors":    strings.Join(authors, ", "),
			"published":  strings.TrimSpace(entry.Published),
			"categories": strings.Join(categories, ", "),
		},
	}, nil
}

var repoPathRegex = regexp.MustCompile(`^/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// repoResponse mirrors the repository metadata we consume.
type repoResponse struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	Language        string `json:"language"`
}

// fetchRepository resolves owner/name from the URL and queries repository
// metadata plus the raw readme.
func (c *Crawler) fetchRepository(ctx context.Context, link string) (*core.ReferenceContent, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL: %w", err)
	}
	match := repoPathRegex.FindStringSubmatch(parsed.Path)
	if match == nil {
		return nil, nil
	}
	owner, name := match[1], match[2]

	repoData, err := c.repoRequest(ctx, fmt.Sprintf("%s/repos/%s/%s", c.repoAPIURL, owner, name), "application/vnd.github.v3+json")
	if err != nil {
		return nil, err
	}
	var repo repoResponse
	if err := json.Unmarshal(repoData, &repo); err != nil {
		return nil, fmt.Errorf("failed to decode repository response: %w", err)
	}
	if repo.FullName == "" {
		repo.FullName = owner + "/" + name
	}

	// Readme failures degrade to metadata only.
	readme := ""
	if raw, err := c.repoRequest(ctx, fmt.Sprintf("%s/repos/%s/%s/readme", c.repoAPIURL, owner, name), "application/vnd.github.v3.raw"); err == nil {
		readme = string(raw)
	}

	return &core.ReferenceContent{
		SourceURL:  link,
		SourceType: "repository",
		Title:      repo.FullName,
		Content:    fetch.Truncate(readme, c.options.MaxReadmeChars),
		Metadata: map[string]string{
			"stars":       strconv.Itoa(repo.StargazersCount),
			"forks":       strconv.Itoa(repo.ForksCount),
			"language":    repo.Language,
			"description": repo.Description,
		},
	}, nil
}

// repoRequest performs one authenticated GitHub API request.
func (c *Crawler) repoRequest(ctx context.Context, requestURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.options.GitHubToken != "" {
		req.Header.Set("Authorization", "token "+c.options.GitHubToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repository request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository request returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// fetchPage fetches a generic page and extracts its main readable text.
func (c *Crawler) fetchPage(ctx context.Context, link string) (*core.ReferenceContent, error) {
	html, err := c.client.Get(ctx, link)
	if err != nil {
		return nil, err
	}

	text := fetch.ExtractText(html, link)
	domain := ""
	if parsed, err := url.Parse(link); err == nil {
		domain = parsed.Hostname()
	}

	return &core.ReferenceContent{
		SourceURL:  link,
		SourceType: "page",
		Title:      fetch.ExtractTitle(html),
		Content:    fetch.Truncate(text, c.options.MaxPageChars),
		Metadata:   map[string]string{"domain": domain},
	}, nil
}
