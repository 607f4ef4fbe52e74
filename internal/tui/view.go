package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func renderHeader(a *App) string {
	crumbs := make([]string, 0, a.screens.Len())
	for _, s := range a.screens.items {
		crumbs = append(crumbs, s.Title())
	}
	left := headerAppStyle.Render("nexd")
	right := strings.Join(crumbs, " › ")
	return renderBar(headerBarStyle, max(1, a.width), left+"  "+right, colorMantle)
}

func renderStatusBar(a *App) string {
	msg := strings.TrimSpace(a.status)
	if msg == "" {
		msg = "Ready"
	}
	if a.statusErr {
		return renderBar(statusErrBarStyle, max(1, a.width), msg, colorSurface0)
	}
	return renderBar(statusBarStyle, max(1, a.width), msg, colorSurface0)
}

func renderFooter(a *App) string {
	bg := colorMantle
	keyStyle := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Background(bg)
	descStyle := lipgloss.NewStyle().Foreground(colorMuted).Background(bg)
	space := lipgloss.NewStyle().Background(bg).Render(" ")
	sep := lipgloss.NewStyle().Background(bg).Render("  ")

	bindings := a.keys.BindingsForScope(a.scope())
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if len(b.Keys) == 0 {
			continue
		}
		h := key.NewBinding(key.WithKeys(b.Keys...), key.WithHelp(b.Keys[0], b.Description)).Help()
		parts = append(parts, keyStyle.Render(h.Key)+space+descStyle.Render(h.Desc))
	}
	return renderBar(footerStyle, max(1, a.width), strings.Join(parts, sep), bg)
}

func renderBar(style lipgloss.Style, width int, text string, bg lipgloss.TerminalColor) string {
	line := ansi.Truncate(strings.ReplaceAll(text, "\n", " "), width, "")
	if w := ansi.StringWidth(line); w < width {
		line += strings.Repeat(" ", width-w)
	}
	return style.Background(bg).Width(width).MaxWidth(width).Render(line)
}

func fitHeight(s string, height int) string {
	if height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// listLines renders rows with a cursor marker, scrolled so the cursor
// stays within height.
func listLines(rows []string, cursor int, focused bool, width, height int) []string {
	if len(rows) == 0 || height <= 0 {
		return nil
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(len(rows), start+height)
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		row := ansi.Truncate(rows[i], max(1, width-2), "…")
		if focused && i == cursor {
			out = append(out, cursorStyle.Render("▸ "+row))
		} else {
			out = append(out, "  "+row)
		}
	}
	return out
}

func clamp(cursor, n int) int {
	if cursor >= n {
		cursor = n - 1
	}
	return max(0, cursor)
}
