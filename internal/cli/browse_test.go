package cli

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trieloff/calibre-mcp/internal/model"
)

func TestBrowseModelShowsResults(t *testing.T) {
	m := newBrowseModel(context.Background(), nil, 10)
	updated, _ := m.Update(searchDoneMsg{
		query: "whales",
		matches: []model.SearchMatch{
			{Title: "Moby-Dick", Authors: "Herman Melville", Text: "Call me Ishmael.", Locator: "calibre://Herman%20Melville/Moby-Dick@3#1:6"},
		},
	})
	view := updated.View()
	for _, want := range []string{"Moby-Dick by Herman Melville", "Call me Ishmael.", "calibre://", `1 result(s) for "whales"`} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBrowseModelEmptyQueryDoesNotSearch(t *testing.T) {
	m := newBrowseModel(context.Background(), nil, 10)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter on an empty input must not start a search")
	}
}

func TestBrowseModelQuits(t *testing.T) {
	m := newBrowseModel(context.Background(), nil, 10)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("esc produced %T, want tea.QuitMsg", cmd())
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("short", 40); got != "short" {
		t.Errorf("got %q", got)
	}
	got := truncateLine(strings.Repeat("x", 50), 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("got %q", got)
	}
}
