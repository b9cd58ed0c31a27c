package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// palette holds the ANSI-256 color values used throughout the CLI.
var (
	clrBrand = lipgloss.Color("99") // violet
	clrCyan  = lipgloss.Color("81")
	clrDim   = lipgloss.Color("245")
	clrRed   = lipgloss.Color("203")
	clrWhite = lipgloss.Color("255")
)

// styles wraps lipgloss renderers that respect TTY detection. When output
// is piped or redirected, all styling is disabled and raw text is emitted.
type styles struct {
	enabled bool

	Title lipgloss.Style
	Dim   lipgloss.Style
	URL   lipgloss.Style
	Error lipgloss.Style
	Value lipgloss.Style
}

// newStyles creates a styles instance. Colors are enabled only when w points
// to a terminal file descriptor.
func newStyles(w io.Writer) styles {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}

	s := styles{enabled: enabled}
	if !enabled {
		noop := lipgloss.NewStyle()
		s.Title = noop
		s.Dim = noop
		s.URL = noop
		s.Error = noop
		s.Value = noop
		return s
	}

	s.Title = lipgloss.NewStyle().Bold(true).Foreground(clrBrand)
	s.Dim = lipgloss.NewStyle().Foreground(clrDim)
	s.URL = lipgloss.NewStyle().Foreground(clrCyan).Underline(true)
	s.Error = lipgloss.NewStyle().Foreground(clrRed).Bold(true)
	s.Value = lipgloss.NewStyle().Foreground(clrWhite)
	return s
}

// kv formats a key-value pair like "  Key:  value".
func (s styles) kv(key, value string) string {
	if !s.enabled {
		return fmt.Sprintf("  %-22s %s", key+":", value)
	}
	return fmt.Sprintf("  %s %s",
		s.Dim.Render(fmt.Sprintf("%-22s", key+":")),
		s.Value.Render(value),
	)
}

// errPrefix returns a styled "ERROR:" prefix.
func (s styles) errPrefix() string {
	if !s.enabled {
		return "ERROR:"
	}
	return s.Error.Render("ERROR:")
}
