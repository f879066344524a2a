package analyzer

import "fmt"

// summaryPromptTemplate drives the per-batch summarization pass. The model
// must answer with a JSON object so the response can be validated at the
// boundary.
const summaryPromptTemplate = `You are an AI research analyst. Summarize each of the following %d articles in 2-3 sentences, focusing on why it matters rather than restating what it is. For each article also list the URLs a reader should follow for deeper understanding.

Respond with a JSON object of this exact shape:
{"summaries": [{"item_id": "...", "summary": "...", "reference_links": ["..."]}]}

Use only the item_id values given below.

Articles:
%s`

// themePromptTemplate drives the cross-item synthesis pass.
const themePromptTemplate = `You are an AI research analyst. Given today's corpus of social posts and article summaries, extract the thematic clusters: discussion points, trends, and notable contrarian ideas. Do not compare items pairwise; identify themes that span the corpus.

For every theme provide a short title, a one-to-three sentence claim, and the ids of the items that support it. Use only item ids that appear in the corpus; never invent ids.

Respond with a JSON object of this exact shape:
{"themes": [{"title": "...", "claim": "...", "supporting_ids": ["..."]}]}

Corpus:
%s`

// narrativePromptTemplate drives the final rendering pass.
const narrativePromptTemplate = `You are an AI intelligence briefing writer. Write the narrative for the morning brief of %s: a flowing markdown text that walks the reader through today's most significant developments and how they connect.

Trending keywords today: %s

Constraints:
- Total output MUST be under %d characters.
- Be concise but informative; focus on the "why", not just the "what".
- Mention sources by author or title, not by item id.

Themes:
%s

Corpus:
%s`

func buildSummaryPrompt(count int, itemsJSON string) string {
	return fmt.Sprintf(summaryPromptTemplate, count, itemsJSON)
}

func buildThemePrompt(corpusJSON string) string {
	return fmt.Sprintf(themePromptTemplate, corpusJSON)
}

func buildNarrativePrompt(date, keywords string, budget int, themesJSON, corpusJSON string) string {
	return fmt.Sprintf(narrativePromptTemplate, date, keywords, budget, themesJSON, corpusJSON)
}
