package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type homeEntry struct {
	label string
	open  func(a *App) Screen
}

// homeScreen is the role picker.
type homeScreen struct {
	entries []homeEntry
	cursor  int
}

func newHomeScreen() *homeScreen {
	return &homeScreen{entries: []homeEntry{
		{"I want to help", func(a *App) Screen { return newHelperScreen(a) }},
		{"I need help", func(a *App) Screen { return newItemListScreen(a) }},
		{"My details", func(a *App) Screen { return newUserScreen(a) }},
	}}
}

func (s *homeScreen) Title() string { return "Home" }
func (s *homeScreen) Scope() string { return scopeHome }

func (s *homeScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, false
	}
	switch {
	case a.keys.IsAction(km, actUp, scopeHome):
		s.cursor = clamp(s.cursor-1, len(s.entries))
	case a.keys.IsAction(km, actDown, scopeHome):
		s.cursor = clamp(s.cursor+1, len(s.entries))
	case a.keys.IsAction(km, actSelect, scopeHome):
		a.push(s.entries[s.cursor].open(a))
	}
	return nil, false
}

func (s *homeScreen) View(width, height int) string {
	rows := make([]string, len(s.entries))
	for i, e := range s.entries {
		rows[i] = e.label
	}
	lines := append([]string{titleStyle.Render("Welcome to nexd"), ""}, listLines(rows, s.cursor, true, width, height-2)...)
	return strings.Join(lines, "\n")
}
