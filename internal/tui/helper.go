package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexd/nexd/internal/flow"
	"github.com/nexd/nexd/internal/model"
)

type helperSection int

const (
	sectionOpen helperSection = iota
	sectionAccepted
)

// helperScreen lists the requests near the helper and the ones they took.
// It owns the helper flow: leaving it leaves the role.
type helperScreen struct {
	flow     *flow.HelperFlow
	overview *flow.HelperOverview
	section  helperSection
	cursor   int
}

func newHelperScreen(a *App) *helperScreen {
	f := flow.NewHelperFlow(a.ctx, a.loop, a.services, a.opts)
	return &helperScreen{flow: f, overview: flow.NewHelperOverview(f)}
}

func (s *helperScreen) Title() string { return "Help requests" }
func (s *helperScreen) Scope() string { return scopeHelper }
func (s *helperScreen) Show(a *App)   { s.overview.Bind(a.notify) }
func (s *helperScreen) Hide()         { s.overview.Unbind() }
func (s *helperScreen) Close()        { s.flow.Close() }

func (s *helperScreen) rows() []model.HelpRequest {
	if s.section == sectionAccepted {
		return s.flow.Workflow.AcceptedRequests()
	}
	return s.flow.Workflow.FilteredRequests()
}

func (s *helperScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, false
	}
	rows := s.rows()
	switch {
	case a.keys.IsAction(km, actBack, scopeHelper):
		return nil, true
	case a.keys.IsAction(km, actUp, scopeHelper):
		s.cursor = clamp(s.cursor-1, len(rows))
	case a.keys.IsAction(km, actDown, scopeHelper):
		s.cursor = clamp(s.cursor+1, len(rows))
	case a.keys.IsAction(km, actSection, scopeHelper):
		s.section = 1 - s.section
		s.cursor = 0
	case a.keys.IsAction(km, actRefresh, scopeHelper):
		s.overview.Refresh()
		return statusCmd("Refreshing…"), false
	case a.keys.IsAction(km, actFilter, scopeHelper):
		a.push(newFilterScreen(s.flow))
	case a.keys.IsAction(km, actSelect, scopeHelper):
		if len(rows) == 0 {
			return nil, false
		}
		return s.apply(rows[clamp(s.cursor, len(rows))]), false
	}
	return nil, false
}

// apply accepts an open request or removes an accepted one and reports
// the outcome once the controller is done.
func (s *helperScreen) apply(req model.HelpRequest) tea.Cmd {
	section := s.section
	return func() tea.Msg {
		done := make(chan error, 1)
		if section == sectionAccepted {
			s.overview.RemoveAcceptedRequest(req, func(err error) { done <- err })
		} else {
			s.overview.AcceptRequest(req, func(err error) { done <- err })
		}
		if err := <-done; err != nil {
			return errorCmd(err)()
		}
		if section == sectionAccepted {
			return statusMsg{text: "Removed " + req.DisplayName() + " from your list."}
		}
		return statusMsg{text: "You are now helping " + req.DisplayName() + "."}
	}
}

func (s *helperScreen) View(width, height int) string {
	zip := s.flow.Filter.ZipCode.Get()
	filter := "all zip codes"
	if zip != "" {
		filter = "zip code " + zip
	}
	lines := []string{titleStyle.Render("Help requests") + mutedStyle.Render("  ("+filter+")"), ""}

	accepted := s.flow.Workflow.AcceptedRequests()
	lines = append(lines, sectionStyle.Render(fmt.Sprintf("Your list (%d)", len(accepted))))
	lines = append(lines, s.renderSection(accepted, sectionAccepted, "You have not accepted any requests.", width, max(1, height/3))...)
	lines = append(lines, "")

	open := s.flow.Workflow.FilteredRequests()
	lines = append(lines, sectionStyle.Render(fmt.Sprintf("Open requests (%d)", len(open))))
	if open == nil {
		lines = append(lines, mutedStyle.Render("  Could not load requests."))
	} else {
		lines = append(lines, s.renderSection(open, sectionOpen, "No open requests here.", width, max(1, height-len(lines)-1))...)
	}
	return strings.Join(lines, "\n")
}

func (s *helperScreen) renderSection(reqs []model.HelpRequest, sec helperSection, empty string, width, height int) []string {
	if len(reqs) == 0 {
		return []string{mutedStyle.Render("  " + empty)}
	}
	rows := make([]string, len(reqs))
	for i, r := range reqs {
		rows[i] = requestRow(r)
	}
	return listLines(rows, clamp(s.cursor, len(rows)), s.section == sec, width, height)
}

func requestRow(r model.HelpRequest) string {
	names := make([]string, 0, len(r.Articles))
	for _, a := range r.Articles {
		name := a.ArticleName
		if name == "" {
			name = fmt.Sprintf("#%d", a.ArticleID)
		}
		names = append(names, fmt.Sprintf("%d× %s", a.ArticleCount, name))
	}
	row := fmt.Sprintf("%-20s %s %s", r.DisplayName(), r.ZipCode, r.City)
	if len(names) > 0 {
		row += mutedStyle.Render("  " + strings.Join(names, ", "))
	}
	return row
}

// filterScreen edits the zip code filter.
type filterScreen struct {
	settings *flow.FilterSettings
	input    textinput.Model
	err      string
}

func newFilterScreen(f *flow.HelperFlow) *filterScreen {
	settings := flow.NewFilterSettings(f)
	in := textinput.New()
	in.Placeholder = "12345 (empty for all)"
	in.CharLimit = 5
	in.SetValue(settings.ZipCode())
	in.Focus()
	return &filterScreen{settings: settings, input: in}
}

func (s *filterScreen) Title() string { return "Filter" }
func (s *filterScreen) Scope() string { return scopeFilter }
func (s *filterScreen) Show(a *App)   { s.settings.Bind(a.notify) }
func (s *filterScreen) Hide()         { s.settings.Unbind() }

func (s *filterScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case a.keys.IsAction(km, actBack, scopeFilter):
			return nil, true
		case a.keys.IsAction(km, actSave, scopeFilter):
			if err := s.settings.Apply(s.input.Value()); err != nil {
				s.err = flow.UserMessage(err)
				return nil, false
			}
			return statusCmd("Filter updated."), true
		}
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return cmd, false
}

func (s *filterScreen) View(width, height int) string {
	lines := []string{
		titleStyle.Render("Show requests in zip code"),
		"",
		s.input.View(),
	}
	if s.err != "" {
		lines = append(lines, "", errorStyle.Render(s.err))
	}
	return modalStyle.Width(min(width-2, 48)).Render(strings.Join(lines, "\n"))
}
