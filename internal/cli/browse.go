package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trieloff/calibre-mcp/internal/model"
	"github.com/trieloff/calibre-mcp/internal/search"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Search the library interactively",
	RunE:  runBrowse,
}

func runBrowse(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("browse needs an interactive terminal; use `calibre-mcp search` instead")
	}

	cfg, err := loadConfig()
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	svc, err := buildService(cfg)
	if err != nil {
		exitWith(ExitLibraryInaccessible, "ERROR: "+err.Error())
	}

	ui := newBrowseModel(cmd.Context(), svc, cfg.DefaultLimit)
	_, err = tea.NewProgram(ui).Run()
	return err
}

type searchDoneMsg struct {
	query   string
	matches []model.SearchMatch
}

// browseModel is a bubbletea model: one query input on top, the current
// result list below. Enter runs the search; esc quits.
type browseModel struct {
	ctx     context.Context
	svc     *search.Service
	limit   int
	input   textinput.Model
	matches []model.SearchMatch
	status  string
	width   int
	height  int
}

func newBrowseModel(ctx context.Context, svc *search.Service, limit int) browseModel {
	ti := textinput.New()
	ti.Placeholder = `author:asimov robots, or any words to search for`
	ti.Prompt = "> "
	ti.Focus()
	return browseModel{
		ctx:    ctx,
		svc:    svc,
		limit:  limit,
		input:  ti,
		status: "type a query and press enter",
		width:  80,
	}
}

func (m browseModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case searchDoneMsg:
		m.matches = msg.matches
		if len(msg.matches) == 0 {
			m.status = fmt.Sprintf("no results for %q", msg.query)
		} else {
			m.status = fmt.Sprintf("%d result(s) for %q", len(msg.matches), msg.query)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.status = "searching…"
			return m, m.runSearch(query)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m browseModel) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		res := m.svc.Search(m.ctx, query, m.limit, false)
		return searchDoneMsg{query: query, matches: res.Matches}
	}
}

var (
	browseTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(clrBrand)
	browseLocatorStyle = lipgloss.NewStyle().Foreground(clrCyan)
	browseStatusStyle  = lipgloss.NewStyle().Foreground(clrDim)
)

func (m browseModel) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(browseStatusStyle.Render(m.status))
	b.WriteString("\n\n")

	// leave room for the input, status and controls lines
	visible := m.height - 6
	if visible < 1 {
		visible = len(m.matches)
	}
	for i, match := range m.matches {
		if i >= visible {
			b.WriteString(browseStatusStyle.Render(fmt.Sprintf("… and %d more", len(m.matches)-i)))
			b.WriteString("\n")
			break
		}
		head := match.Title
		if match.Authors != "" {
			head = fmt.Sprintf("%s by %s", match.Title, match.Authors)
		}
		b.WriteString(browseTitleStyle.Render(head))
		b.WriteString("\n")
		if match.Text != "" {
			b.WriteString("  " + truncateLine(match.Text, m.width-2))
			b.WriteString("\n")
		}
		b.WriteString("  " + browseLocatorStyle.Render(match.Locator))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(browseStatusStyle.Render("enter search · esc quit"))
	return b.String()
}

func truncateLine(s string, width int) string {
	if width < 4 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
