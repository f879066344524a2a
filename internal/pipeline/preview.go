package pipeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"morningbrief/internal/core"
)

var (
	previewTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	previewBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			Padding(1).
			Width(100)

	previewStatStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	previewWarnStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))
)

// renderPreview builds the terminal preview shown instead of delivery on a
// dry run.
func renderPreview(doc core.DigestDocument, stats RunStats, notebook *core.Notebook) string {
	var b strings.Builder

	b.WriteString(previewTitleStyle.Render(doc.Title))
	b.WriteString("\n")
	b.WriteString(previewStatStyle.Render(fmt.Sprintf(
		"%d posts, %d articles, %d items, %d themes, %d delivery chunks",
		stats.PostsCollected, stats.ArticlesCollected, stats.ItemsMerged,
		stats.ThemesExtracted, len(doc.Chunks))))
	b.WriteString("\n")
	if notebook != nil && len(notebook.AccountKeywords) > 0 {
		b.WriteString(previewStatStyle.Render("Keywords discovered from accounts: " + strings.Join(notebook.AccountKeywords, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, chunk := range doc.Chunks {
		label := fmt.Sprintf("Chunk %d of %d (%d chars)", i+1, len(doc.Chunks), len(chunk))
		b.WriteString(previewStatStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(previewBoxStyle.Render(chunk))
		b.WriteString("\n")
	}

	if warnings := collectWarnings(notebook); len(warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(previewWarnStyle.Render(fmt.Sprintf("%d warnings during the run:", len(warnings))))
		b.WriteString("\n")
		for _, warning := range warnings {
			b.WriteString(previewWarnStyle.Render("  • " + warning))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func collectWarnings(notebook *core.Notebook) []string {
	if notebook == nil {
		return nil
	}
	warnings := make([]string, 0, len(notebook.BlogErrors)+len(notebook.StageErrors))
	warnings = append(warnings, notebook.BlogErrors...)
	for key, msg := range notebook.StageErrors {
		warnings = append(warnings, key+": "+msg)
	}
	return warnings
}
