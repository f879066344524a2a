// Package core defines the data model shared by every pipeline stage.
// All values are created and consumed within a single run; nothing persists.
package core

import "time"

// SourceKind identifies where a ContentItem originated.
type SourceKind string

const (
	SourceSocial  SourceKind = "social"
	SourceArticle SourceKind = "article"
)

// Author describes the account behind a social post.
type Author struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	FollowersCount int    `json:"followers_count"`
}

// RawPost is a single social post as returned by the collector.
// Immutable once fetched.
type RawPost struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Author       Author    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	RetweetCount int       `json:"retweet_count"`
	ReplyCount   int       `json:"reply_count"`
	LikeCount    int       `json:"like_count"`
	QuoteCount   int       `json:"quote_count"`
	URLs         []string  `json:"urls"`
	Hashtags     []string  `json:"hashtags"`
}

// URL returns the canonical web URL for the post.
func (p RawPost) URL() string {
	return "https://x.com/i/status/" + p.ID
}

// Article is a single blog entry discovered by the article collector.
type Article struct {
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Published  *time.Time `json:"published,omitempty"` // nil when the source gives no reliable date
	SourceSite string     `json:"source_site"`
	Links      []string   `json:"links"` // outbound links found in the entry body
}

// ReferenceContent is auxiliary material fetched from one outbound link
// attached to a ContentItem. At most one per successfully fetched link.
type ReferenceContent struct {
	SourceURL  string            `json:"source_url"`
	SourceType string            `json:"source_type"` // "paper" | "repository" | "page"
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ContentItem is the unifying record consumed by every downstream stage.
// Created once by the merger; the reference crawler appends References;
// read-only afterward.
type ContentItem struct {
	ID              string             `json:"id"` // deterministic per run, see merge package
	Source          SourceKind         `json:"source"`
	Title           string             `json:"title"`
	Content         string             `json:"content"`
	Author          string             `json:"author"`
	URL             string             `json:"url"`
	Published       *time.Time         `json:"published,omitempty"`
	EngagementScore float64            `json:"engagement_score,omitempty"`
	ReferenceLinks  []string           `json:"reference_links"`
	References      []ReferenceContent `json:"references"`
}

// ItemSummary is one per-item summary produced by the analyzer's first pass.
type ItemSummary struct {
	ItemID         string   `json:"item_id"`
	Summary        string   `json:"summary"`
	ReferenceLinks []string `json:"reference_links"`
}

// Theme is one attributed thematic point from the cross-item synthesis pass.
// SupportingIDs only ever contains ids present in the input corpus.
type Theme struct {
	Title         string   `json:"title"`
	Claim         string   `json:"claim"`
	SupportingIDs []string `json:"supporting_ids"`
}

// SynthesisOutput is the analyzer's result.
type SynthesisOutput struct {
	Summaries []ItemSummary `json:"summaries"`
	Themes    []Theme       `json:"themes"`
	Narrative string        `json:"narrative"`
}

// DigestDocument is the final artifact handed to delivery.
// Concatenating Chunks in order reconstructs FullMarkdown (whitespace-trimmed)
// unless a section required hard truncation; no chunk exceeds the configured
// character limit.
type DigestDocument struct {
	Title        string   `json:"title"`
	FullMarkdown string   `json:"full_markdown"`
	Chunks       []string `json:"chunks"`
}

// Notebook is the explicit cross-stage accumulator threaded through the
// pipeline in place of ambient mutable state. It carries side-channel
// discoveries (keywords) and non-fatal error records.
type Notebook struct {
	RunDate          time.Time
	SeedKeywords     []string
	AccountKeywords  []string
	TrendingKeywords []string
	BlogErrors       []string
	StageErrors      map[string]string
}

// NewNotebook creates a notebook for one pipeline run.
func NewNotebook(runDate time.Time, seedKeywords []string) *Notebook {
	return &Notebook{
		RunDate:      runDate,
		SeedKeywords: seedKeywords,
		StageErrors:  make(map[string]string),
	}
}

// RecordError stores a non-fatal error under a stage-scoped key.
func (n *Notebook) RecordError(key string, err error) {
	if err == nil {
		return
	}
	n.StageErrors[key] = err.Error()
}
