// Package digest renders the synthesis output into one bounded markdown
// artifact and splits it into delivery-sized chunks without breaking
// structural sections.
package digest

import (
	"fmt"
	"strings"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/logger"
)

// Build renders the digest document for one run. Sections appear in fixed
// order: verbatim posts, article summaries, thematic analysis, narrative
// outlook; trending keywords render as a line under the header. When only the
// narrative is populated the single rendered text is truncated to one chunk
// instead of being split.
func Build(items []core.ContentItem, synthesis core.SynthesisOutput, keywords []string, runDate time.Time, maxChunkChars int) core.DigestDocument {
	title := fmt.Sprintf("AI Morning Brief — %s", runDate.Format("January 2, 2006"))

	full := renderFull(items, synthesis, keywords)

	var chunks []string
	if narrativeOnly(items, synthesis) {
		text := ellipsize(full, maxChunkChars)
		full = text
		chunks = []string{text}
	} else {
		chunks = SplitForDelivery(full, maxChunkChars)
	}

	logger.Info("Built digest", "chars", len(full), "chunks", len(chunks))
	return core.DigestDocument{
		Title:        title,
		FullMarkdown: full,
		Chunks:       chunks,
	}
}

// narrativeOnly reports whether the narrative is the only content available.
func narrativeOnly(items []core.ContentItem, synthesis core.SynthesisOutput) bool {
	return len(items) == 0 && len(synthesis.Themes) == 0 && synthesis.Narrative != ""
}

// renderFull assembles the markdown body.
func renderFull(items []core.ContentItem, synthesis core.SynthesisOutput, keywords []string) string {
	var posts, articles []core.ContentItem
	titleByID := make(map[string]string, len(items))
	for _, item := range items {
		titleByID[item.ID] = item.Title
		switch item.Source {
		case core.SourceSocial:
			posts = append(posts, item)
		case core.SourceArticle:
			articles = append(articles, item)
		}
	}
	summaryByID := make(map[string]core.ItemSummary, len(synthesis.Summaries))
	for _, s := range synthesis.Summaries {
		summaryByID[s.ItemID] = s
	}

	var b strings.Builder
	b.WriteString(headerLine(len(posts), len(articles)))
	if len(keywords) > 0 {
		b.WriteString(fmt.Sprintf("*Trending: %s*\n\n", strings.Join(keywords, ", ")))
	}

	if len(posts) > 0 {
		b.WriteString("# Posts\n\n")
		for _, post := range posts {
			b.WriteString(fmt.Sprintf("### %s\n%s\n[Link](%s)\n\n", post.Title, strings.TrimSpace(post.Content), post.URL))
		}
	}

	if len(articles) > 0 {
		b.WriteString("# Articles\n\n")
		for _, article := range articles {
			b.WriteString(fmt.Sprintf("### %s\n_%s_\n", article.Title, article.Author))
			if s, ok := summaryByID[article.ID]; ok {
				b.WriteString(s.Summary + "\n")
				for _, link := range s.ReferenceLinks {
					b.WriteString(fmt.Sprintf("- %s\n", link))
				}
			} else if article.Content != "" {
				b.WriteString(excerpt(article.Content, 280) + "\n")
			}
			b.WriteString(fmt.Sprintf("[Link](%s)\n\n", article.URL))
		}
	}

	if len(synthesis.Themes) > 0 {
		b.WriteString("# Analysis\n\n")
		for _, theme := range synthesis.Themes {
			if theme.Title != "" {
				b.WriteString(fmt.Sprintf("## %s\n", theme.Title))
			}
			b.WriteString(theme.Claim + "\n")
			if sources := attributionLine(theme.SupportingIDs, titleByID); sources != "" {
				b.WriteString(sources + "\n")
			}
			b.WriteString("\n")
		}
	}

	if synthesis.Narrative != "" {
		// The header line alone does not warrant a section heading.
		if len(posts) > 0 || len(articles) > 0 || len(synthesis.Themes) > 0 {
			b.WriteString("# Outlook\n\n")
		}
		b.WriteString(synthesis.Narrative + "\n")
	}

	return strings.TrimSpace(b.String())
}

// headerLine builds the analyzed-counts line with singular/plural handling.
func headerLine(posts, articles int) string {
	postLabel := "posts"
	if posts == 1 {
		postLabel = "post"
	}
	articleLabel := "articles"
	if articles == 1 {
		articleLabel = "article"
	}
	return fmt.Sprintf("*Analyzed %d %s and %d %s.*\n\n", posts, postLabel, articles, articleLabel)
}

// attributionLine renders a theme's supporting sources by title.
func attributionLine(ids []string, titleByID map[string]string) string {
	if len(ids) == 0 {
		return ""
	}
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if title, ok := titleByID[id]; ok && title != "" {
			labels = append(labels, title)
		} else {
			labels = append(labels, id)
		}
	}
	return "_Sources: " + strings.Join(labels, ", ") + "_"
}

// excerpt truncates text at max characters, appending an ellipsis marker.
func excerpt(text string, max int) string {
	return ellipsize(strings.TrimSpace(text), max)
}

// ellipsize caps text at max characters, counting runes so a multi-byte
// character is never cut in half.
func ellipsize(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// SplitForDelivery splits text into chunks of at most limit characters,
// preferring top-level section boundaries, then paragraph boundaries, and
// hard truncation only as a last resort. Whitespace-trimmed concatenation of
// the chunks reconstructs the text when no hard split was needed.
func SplitForDelivery(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}
	return packUnits(splitSections(text), "\n", limit, splitParagraphs)
}

// splitSections splits on top-level markdown headings, keeping the heading
// marker with its section.
func splitSections(text string) []string {
	parts := strings.Split(text, "\n# ")
	sections := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = "# " + part
		}
		if strings.TrimSpace(part) != "" {
			sections = append(sections, part)
		}
	}
	return sections
}

// splitParagraphs splits an oversized section on paragraph boundaries,
// hard-slicing any single paragraph that still exceeds the limit.
func splitParagraphs(section string, limit int) []string {
	paragraphs := strings.Split(section, "\n\n")
	return packUnits(paragraphs, "\n\n", limit, func(paragraph string, limit int) []string {
		var pieces []string
		runes := []rune(paragraph)
		for len(runes) > limit {
			pieces = append(pieces, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) > 0 {
			pieces = append(pieces, string(runes))
		}
		return pieces
	})
}

// packUnits greedily packs units into chunks of at most limit characters,
// joining adjacent units with joiner. A unit that alone exceeds the limit is
// handed to splitOversized.
func packUnits(units []string, joiner string, limit int, splitOversized func(string, int) []string) []string {
	var chunks []string
	current := ""

	flush := func() {
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		current = ""
	}

	for _, unit := range units {
		if len(unit) > limit {
			flush()
			chunks = append(chunks, splitOversized(unit, limit)...)
			continue
		}
		candidate := unit
		if current != "" {
			candidate = current + joiner + unit
		}
		if len(candidate) > limit {
			flush()
			current = unit
			continue
		}
		current = candidate
	}
	flush()
	return chunks
}
