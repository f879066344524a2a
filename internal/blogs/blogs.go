// Package blogs discovers and fetches recent articles from configured sites,
// via feed discovery with a page-scraping fallback.
package blogs

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"morningbrief/internal/core"
	"morningbrief/internal/fetch"
	"morningbrief/internal/logger"
)

// feedPaths are the conventional feed locations probed on each site root.
var feedPaths = []string{"/feed", "/rss", "/atom.xml", "/feed.xml", "/index.xml", "/rss.xml"}

// skipPathKeywords mark links that are almost never articles.
var skipPathKeywords = []string{
	"/tag/", "/category/", "/page/",
	"/about", "/contact", "/terms", "/privacy", "/jobs", "/careers", "/login",
}

// minInlineContentChars is the threshold under which a feed entry's inline
// content is considered implausibly short and the linked page is fetched.
const minInlineContentChars = 200

// Options configures the article collector.
type Options struct {
	Sites                []string
	MaxContentChars      int
	MaxScrapeCandidates  int
	RequireDatedFallback bool
}

// Output is the article collector result. Errors holds one entry per failed
// site; a site's failure never blocks the others.
type Output struct {
	Articles []core.Article
	Errors   []string
}

// Collector fetches recent articles from blog sites.
type Collector struct {
	client  *fetch.Client
	options Options
}

// New creates an article collector.
func New(client *fetch.Client, options Options) *Collector {
	if options.MaxScrapeCandidates <= 0 {
		options.MaxScrapeCandidates = 5
	}
	return &Collector{client: client, options: options}
}

// Collect fetches new articles published after cutoff from every configured
// site. Per-site failures are collected as error strings.
func (c *Collector) Collect(ctx context.Context, cutoff time.Time) Output {
	var out Output
	for _, site := range c.options.Sites {
		articles, err := c.collectSite(ctx, site, cutoff)
		if err != nil {
			msg := fmt.Sprintf("[%s] %v", site, err)
			out.Errors = append(out.Errors, msg)
			logger.Warn("Failed to collect site", "site", site, "error", err.Error())
			continue
		}
		out.Articles = append(out.Articles, articles...)
		logger.Debug("Collected site", "site", site, "articles", len(articles))
	}
	logger.Info("Article collector finished", "articles", len(out.Articles), "errors", len(out.Errors))
	return out
}

// collectSite fetches recent articles from a single site.
func (c *Collector) collectSite(ctx context.Context, siteURL string, cutoff time.Time) ([]core.Article, error) {
	feedURL, err := c.discoverFeed(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	if feedURL != "" {
		return c.parseFeed(ctx, feedURL, siteURL, cutoff)
	}
	return c.scrapeSite(ctx, siteURL, cutoff)
}

// discoverFeed probes conventional feed paths, then looks for an
// alternate-feed hint in the root page markup. Returns "" when the site has
// no discoverable feed.
func (c *Collector) discoverFeed(ctx context.Context, siteURL string) (string, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("invalid site URL: %w", err)
	}

	for _, path := range feedPaths {
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		candidate := base.ResolveReference(ref).String()
		status, contentType, err := c.client.Head(ctx, candidate)
		if err != nil || status != 200 {
			continue
		}
		if isFeedContentType(contentType) {
			return candidate, nil
		}
	}

	html, err := c.client.Get(ctx, siteURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch site root: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse site root: %w", err)
	}

	feedURL := ""
	doc.Find("link[rel='alternate']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		linkType, _ := s.Attr("type")
		if !strings.Contains(linkType, "rss") && !strings.Contains(linkType, "atom") && !strings.Contains(linkType, "xml") {
			return true
		}
		href, _ := s.Attr("href")
		if href == "" {
			return true
		}
		if ref, err := url.Parse(href); err == nil {
			feedURL = base.ResolveReference(ref).String()
			return false
		}
		return true
	})
	return feedURL, nil
}

func isFeedContentType(contentType string) bool {
	for _, marker := range []string{"xml", "rss", "atom", "text"} {
		if strings.Contains(contentType, marker) {
			return true
		}
	}
	return false
}

// rssFeed represents an RSS feed structure.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

// rssItem represents an RSS item.
type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Encoded     string `xml:"encoded"` // content:encoded full body
	PubDate     string `xml:"pubDate"`
}

// atomFeed represents an Atom feed structure.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

// atomEntry represents an Atom entry.
type atomEntry struct {
	Title     string     `xml:"title"`
	Link      []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

// atomLink represents an Atom link element.
type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// parseFeed fetches and parses a feed, keeping entries within the cutoff.
func (c *Collector) parseFeed(ctx context.Context, feedURL, siteURL string, cutoff time.Time) ([]core.Article, error) {
	raw, err := c.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	entries, err := parseFeedEntries(raw)
	if err != nil {
		return nil, err
	}

	var articles []core.Article
	for _, entry := range entries {
		published := entry.published
		if published != nil && published.Before(cutoff) {
			continue
		}

		content := stripHTML(entry.content)
		// Implausibly short inline content usually means a teaser-only
		// feed; fetch the linked page instead.
		if len(content) < minInlineContentChars && entry.link != "" {
			if html, err := c.client.Get(ctx, entry.link); err == nil {
				if text := fetch.ExtractText(html, entry.link); text != "" {
					content = text
				}
			}
		}

		if entry.title == "" && content == "" {
			continue
		}

		pageURL := entry.link
		if pageURL == "" {
			pageURL = siteURL
		}
		articles = append(articles, core.Article{
			URL:        pageURL,
			Title:      entry.title,
			Content:    fetch.Truncate(content, c.options.MaxContentChars),
			Published:  published,
			SourceSite: siteURL,
		})
	}
	return articles, nil
}

// feedEntry is the format-neutral view of one RSS item or Atom entry.
type feedEntry struct {
	title     string
	link      string
	content   string
	published *time.Time
}

// parseFeedEntries parses raw feed XML, trying RSS first, then Atom.
func parseFeedEntries(raw string) ([]feedEntry, error) {
	var rss rssFeed
	if err := xml.Unmarshal([]byte(raw), &rss); err == nil && rss.Channel.Title != "" {
		entries := make([]feedEntry, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			content := item.Encoded
			if content == "" {
				content = item.Description
			}
			entries = append(entries, feedEntry{
				title:     item.Title,
				link:      item.Link,
				content:   content,
				published: ParseFeedDate(item.PubDate),
			})
		}
		return entries, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal([]byte(raw), &atom); err == nil && atom.Title != "" {
		entries := make([]feedEntry, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			link := ""
			for _, l := range entry.Link {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			content := entry.Content
			if content == "" {
				content = entry.Summary
			}
			published := ParseFeedDate(entry.Published)
			if published == nil {
				published = ParseFeedDate(entry.Updated)
			}
			entries = append(entries, feedEntry{
				title:     entry.Title,
				link:      link,
				content:   content,
				published: published,
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

// ParseFeedDate parses the date formats seen in RSS and Atom feeds.
// Timezone-naive broken-down times are interpreted as UTC, never local time,
// so a feed omitting the zone does not pick up a host-dependent offset.
func ParseFeedDate(dateStr string) *time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dateStr, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// scrapeSite is the no-feed fallback: collect same-domain article-like links
// from the root page and keep candidates with a discoverable recent publish
// date. Undated candidates are excluded (tunable via RequireDatedFallback)
// since undated pages are usually non-article boilerplate.
func (c *Collector) scrapeSite(ctx context.Context, siteURL string, cutoff time.Time) ([]core.Article, error) {
	html, err := c.client.Get(ctx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch site root for scraping: %w", err)
	}

	candidates := collectCandidateLinks(html, siteURL, c.options.MaxScrapeCandidates)

	var articles []core.Article
	for _, link := range candidates {
		page, err := c.client.Get(ctx, link.href)
		if err != nil {
			logger.Debug("Skipping scrape candidate", "url", link.href, "error", err.Error())
			continue
		}

		published := fetch.ExtractPublishedDate(page)
		if c.options.RequireDatedFallback {
			if published == nil || published.Before(cutoff) {
				continue
			}
		}

		content := fetch.ExtractText(page, link.href)
		if len(content) < 100 {
			continue
		}

		title := link.text
		if title == "" {
			title = fetch.ExtractTitle(page)
		}
		articles = append(articles, core.Article{
			URL:        link.href,
			Title:      title,
			Content:    fetch.Truncate(content, c.options.MaxContentChars),
			Published:  published,
			SourceSite: siteURL,
		})
	}
	return articles, nil
}

type candidateLink struct {
	href string
	text string
}

// collectCandidateLinks extracts same-domain anchor links that look like
// articles, excluding anchors, query-string links, pagination/tag/category
// paths and known non-article paths.
func collectCandidateLinks(html, siteURL string, max int) []candidateLink {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var candidates []candidateLink
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)

		if resolved.Hostname() != base.Hostname() {
			return true
		}
		if resolved.Fragment != "" || resolved.RawQuery != "" {
			return true
		}
		full := resolved.String()
		if full == siteURL || seen[full] {
			return true
		}
		lowerPath := strings.ToLower(resolved.Path)
		if lowerPath == "" || lowerPath == "/" {
			return true
		}
		for _, skip := range skipPathKeywords {
			if strings.Contains(lowerPath, skip) {
				return true
			}
		}

		seen[full] = true
		candidates = append(candidates, candidateLink{
			href: full,
			text: strings.TrimSpace(s.Text()),
		})
		return len(candidates) < max
	})
	return candidates
}

// stripHTML reduces an HTML fragment to its text content.
func stripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
