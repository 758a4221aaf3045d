// Package render formats ranked article lists for terminals and for
// markdown export.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"litgate/internal/core"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	badgeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

const abstractSnippetLen = 280

// Terminal renders a styled result list for interactive use.
func Terminal(articles []core.Article, query string) string {
	var b strings.Builder
	if query != "" {
		b.WriteString(headerStyle.Render(fmt.Sprintf("Results for %q", query)))
		b.WriteString("\n\n")
	}
	if len(articles) == 0 {
		b.WriteString(metaStyle.Render("No articles found."))
		b.WriteString("\n")
		return b.String()
	}

	for i, a := range articles {
		b.WriteString(titleStyle.Render(fmt.Sprintf("%2d. %s", i+1, a.Title)))
		b.WriteString("\n")

		if line := citationLine(a); line != "" {
			b.WriteString("    " + metaStyle.Render(line) + "\n")
		}
		if ids := identifierLine(a); ids != "" {
			b.WriteString("    " + metaStyle.Render(ids) + "\n")
		}

		var tags []string
		if a.Type != "" && a.Type != core.ArticleTypeUnknown {
			tags = append(tags, string(a.Type))
		}
		if isOpenAccess(a) {
			tags = append(tags, "open access")
		}
		if c := citationCount(a); c >= 0 {
			tags = append(tags, fmt.Sprintf("%d citations", c))
		}
		if len(tags) > 0 {
			b.WriteString("    " + badgeStyle.Render(strings.Join(tags, " | ")) + "\n")
		}
		if a.RankingScore > 0 {
			b.WriteString("    " + scoreStyle.Render(fmt.Sprintf("score %.3f", a.RankingScore)) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Markdown renders the list as a markdown document.
func Markdown(articles []core.Article, query string) string {
	var b strings.Builder
	b.WriteString("# Literature search results\n\n")
	if query != "" {
		b.WriteString(fmt.Sprintf("Query: `%s`\n\n", query))
	}
	if len(articles) == 0 {
		b.WriteString("No articles found.\n")
		return b.String()
	}

	for i, a := range articles {
		b.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, a.Title))
		if line := citationLine(a); line != "" {
			b.WriteString(line + "\n\n")
		}
		if a.DOI != "" {
			b.WriteString(fmt.Sprintf("- DOI: [%s](https://doi.org/%s)\n", a.DOI, a.DOI))
		}
		if a.PMID != "" {
			b.WriteString(fmt.Sprintf("- PMID: [%s](https://pubmed.ncbi.nlm.nih.gov/%s/)\n", a.PMID, a.PMID))
		}
		if c := citationCount(a); c >= 0 {
			b.WriteString(fmt.Sprintf("- Citations: %d\n", c))
		}
		if best := bestOALink(a); best != "" {
			b.WriteString(fmt.Sprintf("- Full text: <%s>\n", best))
		}
		if a.RankingScore > 0 {
			b.WriteString(fmt.Sprintf("- Score: %.3f\n", a.RankingScore))
		}
		b.WriteString("\n")

		if a.Abstract != "" {
			b.WriteString(snippet(a.Abstract) + "\n\n")
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// WriteMarkdown renders the list and writes it to a dated file under
// outputDir, returning the file path.
func WriteMarkdown(articles []core.Article, query, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = "results"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filename := fmt.Sprintf("results_%s.md", time.Now().UTC().Format("2006-01-02"))
	filePath := filepath.Join(outputDir, filename)
	if err := os.WriteFile(filePath, []byte(Markdown(articles, query)), 0644); err != nil {
		return "", fmt.Errorf("failed to write results file %s: %w", filePath, err)
	}
	return filePath, nil
}

// StepSummary renders a pipeline run's per-step outcome table.
func StepSummary(steps []core.StepResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Pipeline steps"))
	b.WriteString("\n")
	for _, s := range steps {
		status := "ok"
		if s.Error != "" {
			status = "failed: " + s.Error
		}
		line := fmt.Sprintf("%-16s %-12s %4d articles  %s", s.StepID, s.Action, len(s.Articles), status)
		if s.Error != "" {
			b.WriteString(badgeStyle.Render(line))
		} else {
			b.WriteString(metaStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// citationLine builds "First Author et al. Journal (Year)".
func citationLine(a core.Article) string {
	var parts []string
	if len(a.Authors) > 0 {
		name := a.Authors[0].DisplayName()
		if len(a.Authors) > 1 {
			name += " et al."
		}
		parts = append(parts, name)
	}
	if a.Journal != "" {
		parts = append(parts, a.Journal)
	}
	if a.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d)", a.Year))
	}
	return strings.Join(parts, " ")
}

func identifierLine(a core.Article) string {
	var parts []string
	if a.DOI != "" {
		parts = append(parts, "doi:"+a.DOI)
	}
	if a.PMID != "" {
		parts = append(parts, "pmid:"+a.PMID)
	}
	return strings.Join(parts, "  ")
}

func citationCount(a core.Article) int {
	if a.Metrics != nil && a.Metrics.CitationCount != nil {
		return *a.Metrics.CitationCount
	}
	return -1
}

func isOpenAccess(a core.Article) bool {
	switch a.OAStatus {
	case core.OAStatusGold, core.OAStatusGreen, core.OAStatusHybrid, core.OAStatusBronze:
		return true
	}
	return len(a.OALinks) > 0
}

func bestOALink(a core.Article) string {
	for _, l := range a.OALinks {
		if l.IsBest {
			return l.URL
		}
	}
	if len(a.OALinks) > 0 {
		return a.OALinks[0].URL
	}
	return ""
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= abstractSnippetLen {
		return text
	}
	cut := text[:abstractSnippetLen]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
