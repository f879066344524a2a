// Package merge ranks social posts by engagement and unifies posts and
// articles into the ContentItem collection consumed by the rest of the
// pipeline.
package merge

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"morningbrief/internal/core"
	"morningbrief/internal/logger"
)

// Engagement score weights. Quotes signal the strongest engagement.
const (
	likeWeight    = 1.0
	retweetWeight = 2.0
	replyWeight   = 1.5
	quoteWeight   = 3.0
)

// aiTerms is the fixed lexicon scanned in post text for trending keywords.
var aiTerms = []string{
	"llm", "gpt", "claude", "gemini", "transformer", "diffusion",
	"fine-tuning", "rag", "agent", "reasoning", "multimodal",
	"open-source", "benchmark", "rlhf", "moe", "vision",
	"embedding", "tokenizer", "inference", "training",
}

// Score computes the weighted engagement score for a post.
func Score(post core.RawPost) float64 {
	return float64(post.LikeCount)*likeWeight +
		float64(post.RetweetCount)*retweetWeight +
		float64(post.ReplyCount)*replyWeight +
		float64(post.QuoteCount)*quoteWeight
}

// RankPosts sorts posts by descending engagement score and keeps the top n.
// The sort is stable, so equal scores preserve original relative order.
func RankPosts(posts []core.RawPost, n int) []core.RawPost {
	ranked := make([]core.RawPost, len(posts))
	copy(ranked, posts)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i]) > Score(ranked[j])
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Merge ranks posts, keeps the top topPosts, and converts posts and articles
// into ContentItems with deterministic ids. Posts precede articles in the
// resulting corpus order.
func Merge(posts []core.RawPost, articles []core.Article, topPosts int) []core.ContentItem {
	ranked := RankPosts(posts, topPosts)

	items := make([]core.ContentItem, 0, len(ranked)+len(articles))
	for _, post := range ranked {
		items = append(items, postItem(post))
	}
	for _, article := range articles {
		items = append(items, articleItem(article))
	}

	logger.Info("Merged content items", "posts", len(ranked), "articles", len(articles))
	return items
}

// postItem converts a post. The id reuses the upstream post id so later
// stages can re-attach data deterministically.
func postItem(post core.RawPost) core.ContentItem {
	created := post.CreatedAt

	item := core.ContentItem{
		ID:              "post:" + post.ID,
		Source:          core.SourceSocial,
		Title:           "@" + post.Author.Username,
		Content:         post.Text,
		Author:          post.Author.Username,
		URL:             post.URL(),
		EngagementScore: Score(post),
		ReferenceLinks:  append([]string{}, post.URLs...),
	}
	if !created.IsZero() {
		t := created
		item.Published = &t
	}
	return item
}

// articleItem converts an article. The id is a content hash of the canonical
// URL, stable across runs for the same article.
func articleItem(article core.Article) core.ContentItem {
	return core.ContentItem{
		ID:             "article:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(article.URL)).String(),
		Source:         core.SourceArticle,
		Title:          article.Title,
		Content:        article.Content,
		Author:         article.SourceSite,
		URL:            article.URL,
		Published:      article.Published,
		ReferenceLinks: append([]string{}, article.Links...),
	}
}

// TrendingKeywords extracts the most frequent hashtags and lexicon terms from
// the ranked posts, most common first with first-seen order breaking ties.
func TrendingKeywords(posts []core.RawPost, limit int) []string {
	counts := make(map[string]int)
	order := make(map[string]int)
	bump := func(term string) {
		if _, ok := counts[term]; !ok {
			order[term] = len(order)
		}
		counts[term]++
	}

	for _, post := range posts {
		for _, tag := range post.Hashtags {
			bump(strings.ToLower(tag))
		}
		text := strings.ToLower(post.Text)
		for _, term := range aiTerms {
			if strings.Contains(text, term) {
				bump(term)
			}
		}
	}

	keywords := make([]string, 0, len(counts))
	for term := range counts {
		keywords = append(keywords, term)
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
