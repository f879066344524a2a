// Package fetch provides shared page fetching and readable-text extraction
// for the blog collector and the reference crawler.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const userAgent = "Mozilla/5.0 (Morning Brief Bot)"

// Client fetches pages with a bounded per-request timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a fetch client. A zero timeout falls back to 10s.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Get fetches a URL and returns the response body as a string.
// Non-2xx statuses are errors.
func (c *Client) Get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch %s: status code %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body from %s: %w", pageURL, err)
	}
	return string(body), nil
}

// Head probes a URL and reports the response status and content type.
func (c *Client) Head(ctx context.Context, pageURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, pageURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to probe %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// ExtractText extracts the main readable text from an HTML document. It tries
// the readability pass first and falls back to a DOM heuristic preferring
// <article>, then <main>, then <body>. Returns empty when nothing usable is
// found.
func ExtractText(html string, pageURL string) string {
	if text := extractReadable(html, pageURL); text != "" {
		return text
	}
	return extractDOMText(html)
}

// extractReadable runs the readability content extraction pass.
func extractReadable(html string, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

var multiNewlineRegex = regexp.MustCompile(`\n{3,}`)

// extractDOMText pulls text from the most article-like container in the DOM.
func extractDOMText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	for _, selector := range []string{"article", "main", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		var b strings.Builder
		sel.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n\n")
			}
		})
		text := strings.TrimSpace(multiNewlineRegex.ReplaceAllString(b.String(), "\n\n"))
		if text != "" {
			return text
		}
	}
	return ""
}

// ExtractTitle tries to extract the title from HTML content.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// publishedMetaNames are the standard meta tags carrying a publish time.
var publishedMetaNames = []string{
	"meta[property='article:published_time']",
	"meta[name='article:published_time']",
	"meta[property='og:published_time']",
	"meta[name='date']",
	"meta[name='publish-date']",
	"meta[name='publication_date']",
	"meta[itemprop='datePublished']",
}

// ExtractPublishedDate looks for a machine-readable publish date in page
// metadata. Returns nil when none is found.
func ExtractPublishedDate(html string) *time.Time {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	for _, selector := range publishedMetaNames {
		content, ok := doc.Find(selector).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		if t := parseMetaDate(strings.TrimSpace(content)); t != nil {
			return t
		}
	}

	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return parseMetaDate(strings.TrimSpace(datetime))
	}
	return nil
}

// parseMetaDate parses the date formats commonly found in page metadata.
// Timezone-naive values are interpreted as UTC, never local time.
func parseMetaDate(value string) *time.Time {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Truncate caps text at max characters, counting runes so a multi-byte
// character is never cut in half. Non-positive max leaves text as is.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
