// Package tui is an interactive browser for ranked search results: a
// list pane on the left, the selected article's detail on the right.
package tui

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"litgate/internal/core"
)

type model struct {
	query       string
	articles    []core.Article
	selectedIdx int
	width       int
	height      int
	quitting    bool
}

// InitialModel returns the initial state of the TUI model.
func InitialModel(query string, articles []core.Article) model {
	return model{query: query, articles: articles}
}

// Init is the first command that will be run. We don't need any for now.
func (m model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.articles)-1 {
				m.selectedIdx++
			}
		case "g":
			m.selectedIdx = 0
		case "G":
			if len(m.articles) > 0 {
				m.selectedIdx = len(m.articles) - 1
			}
		}
	}

	return m, nil
}

// View renders the TUI.
func (m model) View() string {
	if m.quitting {
		return "Quitting...\n"
	}

	docStyle := lipgloss.NewStyle().Margin(1, 2)
	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)

	var list strings.Builder
	list.WriteString(fmt.Sprintf("Results for %q\n\n", m.query))
	if len(m.articles) == 0 {
		list.WriteString("No articles found.")
	} else {
		for i, a := range m.articles {
			cursor := " "
			if i == m.selectedIdx {
				cursor = ">"
			}
			title := a.Title
			if len(title) > paneWidth-6 && paneWidth > 7 {
				title = title[:paneWidth-7] + "…"
			}
			list.WriteString(fmt.Sprintf("%s %2d. %s\n", cursor, i+1, title))
		}
	}

	leftPane := listStyle.Render(list.String())
	rightPane := detailStyle.Render(m.detailView())

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	help := "\n\n[↑/k] Up | [↓/j] Down | [g/G] First/Last | [q] Quit"

	return docStyle.Render(mainContent + help)
}

func (m model) detailView() string {
	if len(m.articles) == 0 || m.selectedIdx >= len(m.articles) {
		return "Nothing selected."
	}
	a := m.articles[m.selectedIdx]

	var b strings.Builder
	b.WriteString(a.Title + "\n\n")
	if len(a.Authors) > 0 {
		names := make([]string, 0, len(a.Authors))
		for _, au := range a.Authors {
			names = append(names, au.DisplayName())
		}
		if len(names) > 6 {
			names = append(names[:6], "…")
		}
		b.WriteString(strings.Join(names, ", ") + "\n")
	}
	if a.Journal != "" || a.Year > 0 {
		b.WriteString(fmt.Sprintf("%s %d\n", a.Journal, a.Year))
	}
	if a.DOI != "" {
		b.WriteString("doi:" + a.DOI + "\n")
	}
	if a.PMID != "" {
		b.WriteString("pmid:" + a.PMID + "\n")
	}
	if a.Metrics != nil && a.Metrics.CitationCount != nil {
		b.WriteString(fmt.Sprintf("citations: %d\n", *a.Metrics.CitationCount))
	}
	if a.RankingScore > 0 {
		b.WriteString(fmt.Sprintf("score: %.3f\n", a.RankingScore))
	}
	if a.Abstract != "" {
		b.WriteString("\n" + a.Abstract)
	}
	return b.String()
}

// Browse starts the Bubble Tea application over a result set.
func Browse(query string, articles []core.Article) {
	p := tea.NewProgram(InitialModel(query, articles), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
