// Package pipeline orchestrates the end-to-end morning brief workflow:
// collect posts, collect articles, merge, crawl references, synthesize,
// build the digest, and deliver it.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"morningbrief/internal/blogs"
	"morningbrief/internal/collector"
	"morningbrief/internal/core"
	"morningbrief/internal/digest"
	"morningbrief/internal/logger"
	"morningbrief/internal/merge"
)

// PostCollector gathers recent social posts.
type PostCollector interface {
	Collect(ctx context.Context, notebook *core.Notebook) (collector.Output, error)
}

// ArticleCollector gathers recent blog articles.
type ArticleCollector interface {
	Collect(ctx context.Context, cutoff time.Time) blogs.Output
}

// ReferenceCrawler enriches items with fetched reference content.
type ReferenceCrawler interface {
	CrawlReferences(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) []core.ContentItem
}

// Synthesizer runs the analysis passes over the merged corpus.
type Synthesizer interface {
	Analyze(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) (core.SynthesisOutput, error)
}

// Deliverer sends the finished digest to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, doc core.DigestDocument) error
}

// Config holds pipeline settings.
type Config struct {
	Lookback      time.Duration
	TopPostsCount int
	MaxChunkChars int
	StageTimeout  time.Duration
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Lookback:      24 * time.Hour,
		TopPostsCount: 20,
		MaxChunkChars: 4096,
		StageTimeout:  5 * time.Minute,
	}
}

// Pipeline wires the stages together.
type Pipeline struct {
	posts     PostCollector
	articles  ArticleCollector
	crawler   ReferenceCrawler
	analyzer  Synthesizer
	deliverer Deliverer
	config    Config
}

// New creates a pipeline from its stage implementations.
func New(posts PostCollector, articles ArticleCollector, crawler ReferenceCrawler, analyzer Synthesizer, deliverer Deliverer, config Config) *Pipeline {
	if config.StageTimeout <= 0 {
		config.StageTimeout = DefaultConfig().StageTimeout
	}
	return &Pipeline{
		posts:     posts,
		articles:  articles,
		crawler:   crawler,
		analyzer:  analyzer,
		deliverer: deliverer,
		config:    config,
	}
}

// Options configures a single run.
type Options struct {
	RunDate      time.Time
	SeedKeywords []string
	DryRun       bool
}

// Result contains the outcome of one run.
type Result struct {
	Digest   core.DigestDocument
	Notebook *core.Notebook
	Stats    RunStats
}

// RunStats tracks per-run metrics.
type RunStats struct {
	PostsCollected    int
	ArticlesCollected int
	ItemsMerged       int
	ThemesExtracted   int
	ProcessingTime    time.Duration
}

// Run executes the full workflow. Post collection and synthesis failures
// abort the run; blog and reference failures degrade it and are recorded in
// the notebook.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	runDate := opts.RunDate
	if runDate.IsZero() {
		runDate = time.Now().UTC()
	}
	notebook := core.NewNotebook(runDate, opts.SeedKeywords)

	fmt.Printf("📡 Step 1/6: Collecting posts...\n")
	posts, err := p.collectPosts(ctx, notebook)
	if err != nil {
		return nil, fmt.Errorf("post collection failed: %w", err)
	}
	fmt.Printf("   ✓ Collected %d posts\n\n", len(posts))

	fmt.Printf("📰 Step 2/6: Collecting articles...\n")
	articles := p.collectArticles(ctx, runDate, notebook)
	fmt.Printf("   ✓ Collected %d articles (%d source errors)\n\n", len(articles), len(notebook.BlogErrors))

	fmt.Printf("🔗 Step 3/6: Merging and ranking...\n")
	items := merge.Merge(posts, articles, p.config.TopPostsCount)
	notebook.TrendingKeywords = merge.TrendingKeywords(merge.RankPosts(posts, p.config.TopPostsCount), 10)
	if len(items) == 0 {
		return nil, fmt.Errorf("nothing to analyze: no posts or articles collected")
	}
	fmt.Printf("   ✓ Merged into %d items\n\n", len(items))

	fmt.Printf("🕸️  Step 4/6: Crawling references...\n")
	items = p.crawlReferences(ctx, items, notebook)
	fmt.Printf("   ✓ Crawled references (%d failures)\n\n", crawlFailures(notebook))

	fmt.Printf("🧠 Step 5/6: Synthesizing...\n")
	synthesis, err := p.synthesize(ctx, items, notebook)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	fmt.Printf("   ✓ Synthesis complete (%d summaries, %d themes)\n\n", len(synthesis.Summaries), len(synthesis.Themes))

	doc := digest.Build(items, synthesis, notebook.TrendingKeywords, runDate, p.config.MaxChunkChars)

	result := &Result{
		Digest:   doc,
		Notebook: notebook,
		Stats: RunStats{
			PostsCollected:    len(posts),
			ArticlesCollected: len(articles),
			ItemsMerged:       len(items),
			ThemesExtracted:   len(synthesis.Themes),
		},
	}

	if opts.DryRun {
		fmt.Printf("👀 Step 6/6: Dry run, printing preview instead of delivering\n\n")
		fmt.Println(renderPreview(doc, result.Stats, notebook))
	} else {
		fmt.Printf("📬 Step 6/6: Delivering digest...\n")
		if err := p.deliverer.Deliver(ctx, doc); err != nil {
			return nil, fmt.Errorf("delivery failed: %w", err)
		}
		fmt.Printf("   ✓ Delivered %d chunks\n\n", len(doc.Chunks))
	}

	result.Stats.ProcessingTime = time.Since(start)
	logger.Info("Run complete",
		"posts", result.Stats.PostsCollected,
		"articles", result.Stats.ArticlesCollected,
		"items", result.Stats.ItemsMerged,
		"duration", result.Stats.ProcessingTime.Round(time.Millisecond).String())
	return result, nil
}

func (p *Pipeline) collectPosts(ctx context.Context, notebook *core.Notebook) ([]core.RawPost, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
	defer cancel()
	output, err := p.posts.Collect(ctx, notebook)
	if err != nil {
		return nil, err
	}
	return output.Posts, nil
}

func (p *Pipeline) collectArticles(ctx context.Context, runDate time.Time, notebook *core.Notebook) []core.Article {
	ctx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
	defer cancel()
	output := p.articles.Collect(ctx, runDate.Add(-p.config.Lookback))
	notebook.BlogErrors = append(notebook.BlogErrors, output.Errors...)
	return output.Articles
}

// crawlReferences never aborts the run: items keep whatever references were
// fetched before a failure.
func (p *Pipeline) crawlReferences(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) []core.ContentItem {
	ctx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
	defer cancel()
	return p.crawler.CrawlReferences(ctx, items, notebook)
}

func (p *Pipeline) synthesize(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) (core.SynthesisOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
	defer cancel()
	return p.analyzer.Analyze(ctx, items, notebook)
}

func crawlFailures(notebook *core.Notebook) int {
	count := 0
	for key := range notebook.StageErrors {
		if strings.HasPrefix(key, "crawl:") {
			count++
		}
	}
	return count
}
