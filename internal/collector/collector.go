// Package collector fetches recent social posts for the configured accounts
// and keywords from the X recent-search API.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/logger"
)

const (
	// DefaultSearchURL is the X API v2 recent search endpoint.
	DefaultSearchURL = "https://api.twitter.com/2/tweets/search/recent"

	// MaxQueryLength is the upstream ceiling on a rendered search query.
	MaxQueryLength = 512

	tweetFields = "created_at,public_metrics,entities"
	userFields  = "id,username,name,public_metrics"
	expansions  = "author_id"

	// pageSize is the per-request result cap imposed by the API.
	pageSize = 100

	maxCombinedKeywords = 15
	maxKeywordClause    = 10
)

// Options configures a collection run.
type Options struct {
	Accounts          []string
	SeedKeywords      []string
	AccountFetchLimit int
	KeywordFetchLimit int
}

// Output is the collector stage result.
type Output struct {
	Posts     []core.RawPost
	FetchedAt time.Time
}

// Collector talks to the social search API.
type Collector struct {
	bearerToken string
	searchURL   string
	httpClient  *http.Client
	options     Options
}

// New creates a collector. A zero timeout falls back to 30s.
func New(bearerToken string, options Options, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Collector{
		bearerToken: bearerToken,
		searchURL:   DefaultSearchURL,
		httpClient:  &http.Client{Timeout: timeout},
		options:     options,
	}
}

// SetSearchURL overrides the search endpoint. Intended for tests.
func (c *Collector) SetSearchURL(u string) {
	c.searchURL = u
}

// Collect fetches account-targeted posts, derives keywords from them, runs a
// keyword search with seed + derived keywords, and merges both result sets
// preferring the account copy of any duplicate id. Discovered keywords are
// recorded on the notebook.
func (c *Collector) Collect(ctx context.Context, notebook *core.Notebook) (Output, error) {
	accountPosts := c.fetchAccountPosts(ctx)
	logger.Info("Fetched account posts", "count", len(accountPosts))

	accountKeywords := ExtractKeywords(accountPosts, 20)

	seeds := append(append([]string{}, c.options.SeedKeywords...), notebook.SeedKeywords...)
	combined := combineKeywords(seeds, accountKeywords)
	var keywordPosts []core.RawPost
	if len(combined) > 0 {
		posts, err := c.fetchKeywordPosts(ctx, combined)
		if err != nil {
			// Keyword search is one unit of work; its failure keeps the
			// account results.
			logger.Warn("Keyword search failed", "error", err.Error())
		}
		keywordPosts = posts
	}
	logger.Info("Fetched keyword posts", "count", len(keywordPosts))

	merged := MergePosts(accountPosts, keywordPosts)
	logger.Info("Merged posts", "account", len(accountPosts), "keyword", len(keywordPosts), "unique", len(merged))

	notebook.AccountKeywords = accountKeywords

	return Output{Posts: merged, FetchedAt: time.Now().UTC()}, nil
}

// BatchAccounts splits handles into batches whose rendered account query stays
// within maxLength. A handle whose own minimal query exceeds the ceiling still
// gets its own batch; empty batches are never produced.
func BatchAccounts(accounts []string, maxLength int) [][]string {
	var batches [][]string
	var current []string

	for _, account := range accounts {
		candidate := append(append([]string{}, current...), account)
		if len(renderAccountQuery(candidate)) > maxLength && len(current) > 0 {
			batches = append(batches, current)
			current = []string{account}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// renderAccountQuery renders the search query for one batch of handles.
func renderAccountQuery(batch []string) string {
	clauses := make([]string, len(batch))
	for i, account := range batch {
		clauses[i] = "from:" + account
	}
	return "(" + strings.Join(clauses, " OR ") + ") -is:retweet"
}

// renderKeywordQuery renders the search query for the keyword pass.
func renderKeywordQuery(keywords []string) string {
	if len(keywords) > maxKeywordClause {
		keywords = keywords[:maxKeywordClause]
	}
	return "(" + strings.Join(keywords, " OR ") + ") -is:retweet lang:en"
}

// fetchAccountPosts fetches posts from the configured accounts in batches.
// One batch's failure keeps its partial results and does not stop the others.
func (c *Collector) fetchAccountPosts(ctx context.Context) []core.RawPost {
	if len(c.options.Accounts) == 0 {
		return nil
	}

	batches := BatchAccounts(c.options.Accounts, MaxQueryLength)
	logger.Debug("Split accounts into batches", "accounts", len(c.options.Accounts), "batches", len(batches))

	var all []core.RawPost
	for i, batch := range batches {
		posts, err := c.search(ctx, renderAccountQuery(batch), "recency", c.options.AccountFetchLimit)
		if err != nil {
			logger.Warn("Failed to fetch account batch", "batch", i+1, "error", err.Error())
		}
		all = append(all, posts...)
	}
	return all
}

// fetchKeywordPosts fetches posts matching the given keywords.
func (c *Collector) fetchKeywordPosts(ctx context.Context, keywords []string) ([]core.RawPost, error) {
	return c.search(ctx, renderKeywordQuery(keywords), "relevancy", c.options.KeywordFetchLimit)
}

// search runs one paginated query until limit posts are gathered or the
// upstream signals no more pages. Partial results survive a mid-pagination
// failure.
func (c *Collector) search(ctx context.Context, query, sortOrder string, limit int) ([]core.RawPost, error) {
	if limit <= 0 {
		limit = pageSize
	}
	startTime := time.Now().UTC().Add(-24 * time.Hour).Format("2006-01-02T15:04:05Z")

	var posts []core.RawPost
	nextToken := ""
	for len(posts) < limit {
		page, token, err := c.searchPage(ctx, query, sortOrder, startTime, nextToken, limit)
		if err != nil {
			return posts, err
		}
		posts = append(posts, page...)
		if token == "" {
			break
		}
		nextToken = token
	}
	return posts, nil
}

// searchResponse mirrors the pieces of the recent-search payload we consume.
type searchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			LikeCount    int `json:"like_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
		Entities struct {
			URLs []struct {
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
			Hashtags []struct {
				Tag string `json:"tag"`
			} `json:"hashtags"`
		} `json:"entities"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			Name          string `json:"name"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// searchPage fetches one page of results.
func (c *Collector) searchPage(ctx context.Context, query, sortOrder, startTime, nextToken string, limit int) ([]core.RawPost, string, error) {
	params := url.Values{}
	params.Set("query", query)
	maxResults := limit
	if maxResults > pageSize {
		maxResults = pageSize
	}
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("start_time", startTime)
	params.Set("sort_order", sortOrder)
	params.Set("tweet.fields", tweetFields)
	params.Set("user.fields", userFields)
	params.Set("expansions", expansions)
	if nextToken != "" {
		params.Set("pagination_token", nextToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("failed to decode search response: %w", err)
	}

	return parseSearchResponse(parsed), parsed.Meta.NextToken, nil
}

// parseSearchResponse converts the API payload into RawPosts, joining authors
// from the includes section.
func parseSearchResponse(resp searchResponse) []core.RawPost {
	authors := make(map[string]core.Author, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		authors[u.ID] = core.Author{
			ID:             u.ID,
			Username:       u.Username,
			Name:           u.Name,
			FollowersCount: u.PublicMetrics.FollowersCount,
		}
	}

	posts := make([]core.RawPost, 0, len(resp.Data))
	for _, t := range resp.Data {
		author, ok := authors[t.AuthorID]
		if !ok {
			author = core.Author{ID: t.AuthorID, Username: "unknown", Name: "Unknown"}
		}

		createdAt, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			createdAt = time.Time{}
		}

		var urls []string
		for _, u := range t.Entities.URLs {
			if u.ExpandedURL != "" {
				urls = append(urls, u.ExpandedURL)
			}
		}
		var hashtags []string
		for _, h := range t.Entities.Hashtags {
			hashtags = append(hashtags, h.Tag)
		}

		posts = append(posts, core.RawPost{
			ID:           t.ID,
			Text:         t.Text,
			Author:       author,
			CreatedAt:    createdAt.UTC(),
			RetweetCount: t.PublicMetrics.RetweetCount,
			ReplyCount:   t.PublicMetrics.ReplyCount,
			LikeCount:    t.PublicMetrics.LikeCount,
			QuoteCount:   t.PublicMetrics.QuoteCount,
			URLs:         urls,
			Hashtags:     hashtags,
		})
	}
	return posts
}

// MergePosts merges post lists keeping the first-seen copy of each id.
// Sources are iterated in priority order, so accountPosts win duplicates.
func MergePosts(accountPosts, keywordPosts []core.RawPost) []core.RawPost {
	seen := make(map[string]bool)
	var merged []core.RawPost

	for _, lists := range [][]core.RawPost{accountPosts, keywordPosts} {
		for _, post := range lists {
			if seen[post.ID] {
				continue
			}
			seen[post.ID] = true
			merged = append(merged, post)
		}
	}
	return merged
}

// ExtractKeywords returns the most frequent hashtags across posts, lowercased,
// most common first with first-seen order breaking ties.
func ExtractKeywords(posts []core.RawPost, limit int) []string {
	counts := make(map[string]int)
	order := make(map[string]int)
	for _, post := range posts {
		for _, tag := range post.Hashtags {
			tag = strings.ToLower(tag)
			if _, ok := counts[tag]; !ok {
				order[tag] = len(order)
			}
			counts[tag]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for tag := range counts {
		keywords = append(keywords, tag)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return order[keywords[i]] < order[keywords[j]]
	})

	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// combineKeywords merges seed keywords with account-derived keywords,
// case-insensitively deduplicated, capped to keep the rendered query small.
func combineKeywords(seed, derived []string) []string {
	var combined []string
	seen := make(map[string]bool)
	for _, lists := range [][]string{seed, derived} {
		for _, kw := range lists {
			key := strings.ToLower(kw)
			if kw == "" || seen[key] {
				continue
			}
			seen[key] = true
			combined = append(combined, kw)
		}
	}
	if len(combined) > maxCombinedKeywords {
		combined = combined[:maxCombinedKeywords]
	}
	return combined
}
