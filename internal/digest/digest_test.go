package digest

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"morningbrief/internal/core"
)

func sampleItems() []core.ContentItem {
	return []core.ContentItem{
		{
			ID: "post:1", Source: core.SourceSocial, Title: "@alice",
			Content: "We just shipped a new model.", URL: "https://x.com/i/status/1",
		},
		{
			ID: "article:aaa", Source: core.SourceArticle, Title: "New model deep dive",
			Author: "https://lab.example.com", URL: "https://lab.example.com/posts/deep-dive",
			Content: "full article body",
		},
	}
}

func sampleSynthesis() core.SynthesisOutput {
	return core.SynthesisOutput{
		Summaries: []core.ItemSummary{{
			ItemID:         "article:aaa",
			Summary:        "A thorough look at the new model.",
			ReferenceLinks: []string{"https://arxiv.org/abs/2608.01234"},
		}},
		Themes: []core.Theme{{
			Title:         "Model releases",
			Claim:         "Releases are accelerating.",
			SupportingIDs: []string{"post:1", "article:aaa"},
		}},
		Narrative: "A busy morning in AI.",
	}
}

func TestBuildSectionsAndHeader(t *testing.T) {
	runDate := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	doc := Build(sampleItems(), sampleSynthesis(), nil, runDate, 4096)

	if doc.Title != "AI Morning Brief — August 31, 2026" {
		t.Errorf("title = %q", doc.Title)
	}
	if !strings.HasPrefix(doc.FullMarkdown, "*Analyzed 1 post and 1 article.*") {
		t.Errorf("header line missing or wrong: %q", doc.FullMarkdown[:60])
	}

	for _, section := range []string{"# Posts", "# Articles", "# Analysis", "# Outlook"} {
		if !strings.Contains(doc.FullMarkdown, section) {
			t.Errorf("missing section %q", section)
		}
	}

	order := []int{
		strings.Index(doc.FullMarkdown, "# Posts"),
		strings.Index(doc.FullMarkdown, "# Articles"),
		strings.Index(doc.FullMarkdown, "# Analysis"),
		strings.Index(doc.FullMarkdown, "# Outlook"),
	}
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("sections out of order: %v", order)
		}
	}

	if len(doc.Chunks) != 1 {
		t.Errorf("short digest should be one chunk, got %d", len(doc.Chunks))
	}
}

func TestBuildRendersPostsVerbatim(t *testing.T) {
	doc := Build(sampleItems(), sampleSynthesis(), nil, time.Now().UTC(), 4096)

	if !strings.Contains(doc.FullMarkdown, "### @alice\nWe just shipped a new model.\n[Link](https://x.com/i/status/1)") {
		t.Errorf("post not rendered verbatim:\n%s", doc.FullMarkdown)
	}
}

func TestBuildUsesSummariesForArticles(t *testing.T) {
	doc := Build(sampleItems(), sampleSynthesis(), nil, time.Now().UTC(), 4096)

	if !strings.Contains(doc.FullMarkdown, "A thorough look at the new model.") {
		t.Error("article summary not used")
	}
	if !strings.Contains(doc.FullMarkdown, "- https://arxiv.org/abs/2608.01234") {
		t.Error("summary reference links not rendered")
	}
	if !strings.Contains(doc.FullMarkdown, "_Sources: @alice, New model deep dive_") {
		t.Errorf("theme attribution not rendered by title:\n%s", doc.FullMarkdown)
	}
}

func TestBuildRendersTrendingKeywordsLine(t *testing.T) {
	doc := Build(sampleItems(), sampleSynthesis(), []string{"llm", "agents"}, time.Now().UTC(), 4096)

	if !strings.Contains(doc.FullMarkdown, "*Trending: llm, agents*") {
		t.Errorf("trending keywords line missing:\n%s", doc.FullMarkdown)
	}
	header := strings.Index(doc.FullMarkdown, "*Analyzed")
	trending := strings.Index(doc.FullMarkdown, "*Trending:")
	posts := strings.Index(doc.FullMarkdown, "# Posts")
	if !(header < trending && trending < posts) {
		t.Errorf("keywords line out of place: header=%d trending=%d posts=%d", header, trending, posts)
	}

	empty := Build(sampleItems(), sampleSynthesis(), nil, time.Now().UTC(), 4096)
	if strings.Contains(empty.FullMarkdown, "*Trending:") {
		t.Error("keywords line rendered without keywords")
	}
}

func TestBuildNarrativeOnlyTruncatesToOneChunk(t *testing.T) {
	synthesis := core.SynthesisOutput{Narrative: strings.Repeat("n", 500)}
	doc := Build(nil, synthesis, nil, time.Now().UTC(), 100)

	if len(doc.Chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(doc.Chunks))
	}
	if len(doc.Chunks[0]) != 100 {
		t.Errorf("chunk length = %d, want 100", len(doc.Chunks[0]))
	}
	if !strings.HasSuffix(doc.Chunks[0], "...") {
		t.Error("truncated chunk missing marker")
	}
}

func TestBuildNarrativeOnlyOmitsOutlookHeading(t *testing.T) {
	synthesis := core.SynthesisOutput{Narrative: "Quiet morning, nothing collected."}
	doc := Build(nil, synthesis, nil, time.Now().UTC(), 4096)

	if strings.Contains(doc.FullMarkdown, "# Outlook") {
		t.Errorf("narrative-only digest should have no section heading:\n%s", doc.FullMarkdown)
	}
	if !strings.Contains(doc.FullMarkdown, synthesis.Narrative) {
		t.Error("narrative text missing")
	}
}

func TestSplitForDeliveryFitsInOneChunk(t *testing.T) {
	chunks := SplitForDelivery("short text", 100)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("chunks = %v", chunks)
	}
	if got := SplitForDelivery("   ", 100); got != nil {
		t.Errorf("blank input should produce no chunks, got %v", got)
	}
}

func TestSplitForDeliveryPrefersSectionBoundaries(t *testing.T) {
	a := "# Alpha\n" + strings.Repeat("a", 60)
	b := "# Beta\n" + strings.Repeat("b", 60)
	text := a + "\n" + b

	chunks := SplitForDelivery(text, 80)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != a || chunks[1] != b {
		t.Errorf("sections split mid-body: %v", chunks)
	}
}

func TestSplitForDeliveryFallsBackToParagraphs(t *testing.T) {
	paragraphs := []string{
		strings.Repeat("a", 50),
		strings.Repeat("b", 50),
		strings.Repeat("c", 50),
	}
	text := "# Section\n" + strings.Join(paragraphs, "\n\n")

	chunks := SplitForDelivery(text, 80)

	if len(chunks) < 2 {
		t.Fatalf("expected paragraph-level split, got %v", chunks)
	}
	for i, chunk := range chunks {
		if len(chunk) > 80 {
			t.Errorf("chunk %d has %d chars, over the limit", i, len(chunk))
		}
	}
	joined := strings.Join(chunks, " ")
	for _, p := range paragraphs {
		if !strings.Contains(joined, p) {
			t.Errorf("paragraph lost in split: %q...", p[:10])
		}
	}
}

func TestSplitForDeliveryHardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitForDelivery(text, 100)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d has %d chars", i, len(chunk))
		}
		rebuilt.WriteString(chunk)
	}
	if rebuilt.String() != text {
		t.Error("hard split lost characters")
	}
}

func TestSplitForDeliveryHardSplitKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 150)
	chunks := SplitForDelivery(text, 100)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d splits a rune: %q", i, chunk[:4])
		}
		rebuilt.WriteString(chunk)
	}
	if rebuilt.String() != text {
		t.Error("hard split lost characters")
	}
}

func TestSplitForDeliveryNoChunkExceedsLimit(t *testing.T) {
	doc := Build(sampleItems(), sampleSynthesis(), nil, time.Now().UTC(), 120)
	if len(doc.Chunks) < 2 {
		t.Fatalf("expected the digest to need multiple chunks, got %d", len(doc.Chunks))
	}
	for i, chunk := range doc.Chunks {
		if len(chunk) > 120 {
			t.Errorf("chunk %d has %d chars, over the limit", i, len(chunk))
		}
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}
