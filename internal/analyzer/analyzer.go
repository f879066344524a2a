// Package analyzer runs the staged LLM synthesis over the merged,
// reference-enriched corpus: per-batch article summarization, cross-item
// theme extraction with source attribution, and a final narrative pass.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/llm"
	"morningbrief/internal/logger"
)

// Options configures the analyzer passes.
type Options struct {
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	NarrativeBudget int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:       10,
		MaxRetries:      2,
		RetryDelay:      time.Second,
		NarrativeBudget: 3400,
	}
}

// Analyzer orchestrates the synthesis passes.
type Analyzer struct {
	gen     llm.TextGenerator
	options Options
}

// New creates an analyzer.
func New(gen llm.TextGenerator, options Options) *Analyzer {
	if options.BatchSize < 1 {
		options.BatchSize = 1
	}
	return &Analyzer{gen: gen, options: options}
}

// Analyze runs the three passes in sequence. A malformed or failed top-level
// response in the theme or narrative pass aborts the analyzer; per-batch
// failures in the summarization pass only drop that batch.
func (a *Analyzer) Analyze(ctx context.Context, items []core.ContentItem, notebook *core.Notebook) (core.SynthesisOutput, error) {
	corpusIDs := make(map[string]bool, len(items))
	for _, item := range items {
		corpusIDs[item.ID] = true
	}

	summaries := a.summarizeArticles(ctx, items, corpusIDs)
	logger.Info("Summarization pass complete", "summaries", len(summaries))

	themes, err := a.extractThemes(ctx, items, summaries, corpusIDs)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("theme pass failed: %w", err)
	}
	logger.Info("Theme pass complete", "themes", len(themes))

	narrative, err := a.composeNarrative(ctx, items, summaries, themes, notebook)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("narrative pass failed: %w", err)
	}
	logger.Info("Narrative pass complete", "chars", len(narrative))

	return core.SynthesisOutput{
		Summaries: summaries,
		Themes:    themes,
		Narrative: narrative,
	}, nil
}

// promptItem is the per-item view serialized into prompt payloads. Item order
// in every payload matches corpus order.
type promptItem struct {
	ItemID     string            `json:"item_id"`
	Kind       string            `json:"kind"`
	Author     string            `json:"author"`
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Content    string            `json:"content"`
	Summary    string            `json:"summary,omitempty"`
	References []promptReference `json:"references,omitempty"`
}

type promptReference struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

const referenceExcerptChars = 500

func toPromptItem(item core.ContentItem) promptItem {
	pi := promptItem{
		ItemID:  item.ID,
		Kind:    string(item.Source),
		Author:  item.Author,
		Title:   item.Title,
		URL:     item.URL,
		Content: item.Content,
	}
	for _, ref := range item.References {
		excerpt := ref.Content
		if len(excerpt) > referenceExcerptChars {
			excerpt = excerpt[:referenceExcerptChars]
		}
		pi.References = append(pi.References, promptReference{
			Type:    ref.SourceType,
			Title:   ref.Title,
			URL:     ref.SourceURL,
			Excerpt: excerpt,
		})
	}
	return pi
}

// summaryEnvelope is the expected shape of a summarization response.
type summaryEnvelope struct {
	Summaries []struct {
		ItemID         string   `json:"item_id"`
		Summary        string   `json:"summary"`
		ReferenceLinks []string `json:"reference_links"`
	} `json:"summaries"`
}

// summarizeArticles runs the first pass over the article items in fixed-size
// batches. A batch whose call or parse fails is dropped with a warning.
func (a *Analyzer) summarizeArticles(ctx context.Context, items []core.ContentItem, corpusIDs map[string]bool) []core.ItemSummary {
	var articles []core.ContentItem
	for _, item := range items {
		if item.Source == core.SourceArticle {
			articles = append(articles, item)
		}
	}

	var summaries []core.ItemSummary
	for start := 0; start < len(articles); start += a.options.BatchSize {
		end := start + a.options.BatchSize
		if end > len(articles) {
			end = len(articles)
		}
		batch := articles[start:end]

		payload := make([]promptItem, 0, len(batch))
		for _, item := range batch {
			payload = append(payload, toPromptItem(item))
		}
		payloadJSON, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			logger.Warn("Failed to encode summary batch", "error", err.Error())
			continue
		}

		response, err := a.generateWithRetry(ctx, buildSummaryPrompt(len(batch), string(payloadJSON)), true)
		if err != nil {
			logger.Warn("Summary batch call failed, dropping batch", "batch_start", start, "error", err.Error())
			continue
		}

		var parsed summaryEnvelope
		if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
			logger.Warn("Malformed summary batch response, dropping batch", "batch_start", start, "error", err.Error())
			continue
		}

		for _, s := range parsed.Summaries {
			if !corpusIDs[s.ItemID] {
				logger.Warn("Dropping summary for unknown item id", "item_id", s.ItemID)
				continue
			}
			if s.Summary == "" {
				continue
			}
			summaries = append(summaries, core.ItemSummary{
				ItemID:         s.ItemID,
				Summary:        s.Summary,
				ReferenceLinks: s.ReferenceLinks,
			})
		}
	}
	return summaries
}

// themeEnvelope is the expected shape of a theme response.
type themeEnvelope struct {
	Themes []struct {
		Title         string   `json:"title"`
		Claim         string   `json:"claim"`
		SupportingIDs []string `json:"supporting_ids"`
	} `json:"themes"`
}

// extractThemes runs one call over the entire corpus. Attribution ids not
// present in the corpus are filtered out rather than failing the call; a
// malformed top-level response is a hard failure.
func (a *Analyzer) extractThemes(ctx context.Context, items []core.ContentItem, summaries []core.ItemSummary, corpusIDs map[string]bool) ([]core.Theme, error) {
	if len(items) == 0 {
		return nil, nil
	}

	corpusJSON, err := a.corpusJSON(items, summaries)
	if err != nil {
		return nil, err
	}

	response, err := a.generateWithRetry(ctx, buildThemePrompt(corpusJSON), true)
	if err != nil {
		return nil, err
	}

	var parsed themeEnvelope
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("malformed theme response: %w", err)
	}

	themes := make([]core.Theme, 0, len(parsed.Themes))
	for _, t := range parsed.Themes {
		if t.Claim == "" && t.Title == "" {
			continue
		}
		var supporting []string
		for _, id := range t.SupportingIDs {
			if corpusIDs[id] {
				supporting = append(supporting, id)
			} else {
				logger.Warn("Dropping fabricated attribution id", "item_id", id)
			}
		}
		themes = append(themes, core.Theme{
			Title:         t.Title,
			Claim:         t.Claim,
			SupportingIDs: supporting,
		})
	}
	return themes, nil
}

// composeNarrative runs the final free-text pass and defensively enforces the
// character budget.
func (a *Analyzer) composeNarrative(ctx context.Context, items []core.ContentItem, summaries []core.ItemSummary, themes []core.Theme, notebook *core.Notebook) (string, error) {
	corpusJSON, err := a.corpusJSON(items, summaries)
	if err != nil {
		return "", err
	}
	themesJSON, err := json.MarshalIndent(themes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode themes: %w", err)
	}

	date := notebook.RunDate.Format("January 2, 2006")
	keywords := strings.Join(notebook.TrendingKeywords, ", ")
	if keywords == "" {
		keywords = "none identified"
	}

	narrative, err := a.generateWithRetry(ctx, buildNarrativePrompt(date, keywords, a.options.NarrativeBudget, string(themesJSON), corpusJSON), false)
	if err != nil {
		return "", err
	}

	narrative = strings.TrimSpace(narrative)
	if budget := a.options.NarrativeBudget; budget > 3 && len(narrative) > budget {
		if runes := []rune(narrative); len(runes) > budget {
			narrative = string(runes[:budget-3]) + "..."
		}
	}
	return narrative, nil
}

// corpusJSON serializes the corpus (with summaries attached) in corpus order.
func (a *Analyzer) corpusJSON(items []core.ContentItem, summaries []core.ItemSummary) (string, error) {
	summaryByID := make(map[string]string, len(summaries))
	for _, s := range summaries {
		summaryByID[s.ItemID] = s.Summary
	}

	payload := make([]promptItem, 0, len(items))
	for _, item := range items {
		pi := toPromptItem(item)
		pi.Summary = summaryByID[item.ID]
		payload = append(payload, pi)
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode corpus: %w", err)
	}
	return string(encoded), nil
}

// generateWithRetry runs one generation call with linear-backoff retries.
func (a *Analyzer) generateWithRetry(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	var response string
	var err error
	for attempt := 0; attempt <= a.options.MaxRetries; attempt++ {
		response, err = a.gen.GenerateText(ctx, prompt, jsonResponse)
		if err == nil {
			return response, nil
		}
		if attempt < a.options.MaxRetries {
			time.Sleep(a.options.RetryDelay * time.Duration(attempt+1))
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", a.options.MaxRetries+1, err)
}

// extractJSON strips the markdown code fences some models wrap around JSON.
func extractJSON(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
