/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"morningbrief/internal/analyzer"
	"morningbrief/internal/blogs"
	"morningbrief/internal/collector"
	"morningbrief/internal/config"
	"morningbrief/internal/crawler"
	"morningbrief/internal/delivery"
	"morningbrief/internal/fetch"
	"morningbrief/internal/llm"
	"morningbrief/internal/logger"
	"morningbrief/internal/pipeline"
)

// NewRunCmd creates the run command that executes one full digest cycle.
func NewRunCmd() *cobra.Command {
	var dryRun bool
	var verbose bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Collect, analyze and deliver today's digest",
		Long: `Run executes one full cycle: collect posts from followed accounts,
collect articles from followed blogs, crawl linked papers and repositories,
synthesize with the LLM, and deliver the digest to Discord.

With --dry-run the digest is printed to the terminal instead of delivered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger.SetVerbose(true)
			}
			return runDigest(cmd.Context(), dryRun)
		},
	}

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of delivering it")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return runCmd
}

func runDigest(ctx context.Context, dryRun bool) error {
	cfg := config.Get()

	if cfg.Collector.BearerToken == "" {
		return fmt.Errorf("no search API bearer token configured (set X_BEARER_TOKEN)")
	}
	if cfg.Analyzer.GeminiAPIKey == "" {
		return fmt.Errorf("no Gemini API key configured (set GEMINI_API_KEY)")
	}
	if !dryRun && cfg.Delivery.WebhookURL == "" {
		return fmt.Errorf("no Discord webhook configured (set DISCORD_WEBHOOK_URL or use --dry-run)")
	}

	posts := collector.New(cfg.Collector.BearerToken, collector.Options{
		Accounts:          cfg.Collector.Accounts,
		SeedKeywords:      cfg.Collector.SeedKeywords,
		AccountFetchLimit: cfg.Collector.AccountFetchLimit,
		KeywordFetchLimit: cfg.Collector.KeywordFetchLimit,
	}, parseTimeout(cfg.Collector.Timeout, 30*time.Second))

	blogFetch := fetch.NewClient(parseTimeout(cfg.Blogs.Timeout, 15*time.Second))
	articles := blogs.New(blogFetch, blogs.Options{
		Sites:                cfg.Blogs.Sites,
		MaxContentChars:      cfg.Blogs.MaxContentChars,
		MaxScrapeCandidates:  cfg.Blogs.MaxScrapeCandidates,
		RequireDatedFallback: cfg.Blogs.RequireDatedFallback,
	})

	crawlFetch := fetch.NewClient(parseTimeout(cfg.Crawler.Timeout, 20*time.Second))
	references := crawler.New(crawlFetch, crawler.Options{
		GitHubToken:    cfg.Crawler.GitHubToken,
		MaxPaperChars:  cfg.Crawler.MaxPaperChars,
		MaxReadmeChars: cfg.Crawler.MaxReadmeChars,
		MaxPageChars:   cfg.Crawler.MaxPageChars,
	}, parseTimeout(cfg.Crawler.Timeout, 20*time.Second))

	llmClient, err := llm.NewClient(ctx, cfg.Analyzer.GeminiAPIKey, cfg.Analyzer.Model, cfg.Analyzer.Temperature)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() { _ = llmClient.Close() }()

	analyzerOptions := analyzer.DefaultOptions()
	if cfg.Analyzer.BatchSize > 0 {
		analyzerOptions.BatchSize = cfg.Analyzer.BatchSize
	}
	if cfg.Analyzer.MaxRetries >= 0 {
		analyzerOptions.MaxRetries = cfg.Analyzer.MaxRetries
	}
	if cfg.Analyzer.NarrativeBudget > 0 {
		analyzerOptions.NarrativeBudget = cfg.Analyzer.NarrativeBudget
	}
	synthesis := analyzer.New(llmClient, analyzerOptions)

	deliveryOptions := delivery.DefaultOptions()
	if cfg.Delivery.Username != "" {
		deliveryOptions.Username = cfg.Delivery.Username
	}
	if cfg.Delivery.MaxEmbedsPerSend > 0 {
		deliveryOptions.MaxEmbedsPerSend = cfg.Delivery.MaxEmbedsPerSend
	}
	if cfg.Delivery.MaxRetries > 0 {
		deliveryOptions.MaxRetries = cfg.Delivery.MaxRetries
	}
	deliveryOptions.RetryDelay = parseTimeout(cfg.Delivery.RetryDelay, deliveryOptions.RetryDelay)
	deliverer := delivery.NewClient(cfg.Delivery.WebhookURL, deliveryOptions)

	pipelineConfig := pipeline.DefaultConfig()
	if cfg.Collector.TopPostsCount > 0 {
		pipelineConfig.TopPostsCount = cfg.Collector.TopPostsCount
	}
	if cfg.Digest.MaxChunkChars > 0 {
		pipelineConfig.MaxChunkChars = cfg.Digest.MaxChunkChars
	}

	p := pipeline.New(posts, articles, references, synthesis, deliverer, pipelineConfig)
	result, err := p.Run(ctx, pipeline.Options{
		RunDate:      time.Now().UTC(),
		SeedKeywords: cfg.Collector.SeedKeywords,
		DryRun:       dryRun,
	})
	if err != nil {
		// Stage failures exit zero; only usage and config errors are fatal.
		logger.Error("Run aborted", err)
		fmt.Printf("Run aborted: %v\n", err)
		return nil
	}

	fmt.Printf("Done in %s\n", result.Stats.ProcessingTime.Round(time.Millisecond))
	return nil
}

// parseTimeout parses a duration string, falling back to def when empty or
// malformed.
func parseTimeout(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Warn("Invalid duration in config, using default", "value", s, "default", def.String())
		return def
	}
	return d
}
