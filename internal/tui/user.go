package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexd/nexd/internal/flow"
	"github.com/nexd/nexd/internal/model"
)

type savedMsg struct {
	user model.User
	err  error
}

// userScreen completes the profile with zip code and phone number.
type userScreen struct {
	details   *flow.UserDetails
	zip       textinput.Model
	phone     textinput.Model
	focus     int
	prefilled bool
}

func newUserScreen(a *App) *userScreen {
	zip := textinput.New()
	zip.Placeholder = "12345"
	zip.CharLimit = 5
	zip.Prompt = ""
	zip.Focus()
	phone := textinput.New()
	phone.Placeholder = "+49 30 1234567"
	phone.Prompt = ""
	return &userScreen{
		details: flow.NewUserDetails(a.ctx, a.loop, a.services.Users, a.opts),
		zip:     zip,
		phone:   phone,
	}
}

func (s *userScreen) Title() string { return "My details" }
func (s *userScreen) Scope() string { return scopeUser }
func (s *userScreen) Show(a *App)   { s.details.Bind(func(model.User) { a.notify() }) }
func (s *userScreen) Hide()         { s.details.Unbind() }
func (s *userScreen) Close()        { s.details.Close() }

func (s *userScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	switch m := msg.(type) {
	case changedMsg:
		if u := s.details.User.Get(); !s.prefilled && u.ID != "" {
			s.prefilled = true
			if s.zip.Value() == "" {
				s.zip.SetValue(u.ZipCode)
			}
			if s.phone.Value() == "" {
				s.phone.SetValue(u.PhoneNumber)
			}
		}
		return nil, false
	case savedMsg:
		if m.err != nil {
			return errorCmd(m.err), false
		}
		return statusCmd("Saved. Thank you, " + strings.TrimSpace(m.user.FirstName+" "+m.user.LastName) + "."), true
	case tea.KeyMsg:
		switch {
		case a.keys.IsAction(m, actBack, scopeUser):
			return nil, true
		case a.keys.IsAction(m, actNextField, scopeUser), a.keys.IsAction(m, actPrevField, scopeUser):
			s.focus = 1 - s.focus
			if s.focus == 0 {
				s.phone.Blur()
				s.zip.Focus()
			} else {
				s.zip.Blur()
				s.phone.Focus()
			}
			return nil, false
		case a.keys.IsAction(m, actSave, scopeUser):
			zip, phone := s.zip.Value(), s.phone.Value()
			return func() tea.Msg {
				done := make(chan savedMsg, 1)
				s.details.Save(zip, phone, func(u model.User, err error) { done <- savedMsg{u, err} })
				return <-done
			}, false
		}
	}
	var cmd tea.Cmd
	if s.focus == 0 {
		s.zip, cmd = s.zip.Update(msg)
	} else {
		s.phone, cmd = s.phone.Update(msg)
	}
	return cmd, false
}

func (s *userScreen) View(width, height int) string {
	u := s.details.User.Get()
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "…"
	}
	zipLabel, phoneLabel := focusedLabel, labelStyle
	if s.focus == 1 {
		zipLabel, phoneLabel = labelStyle, focusedLabel
	}
	return strings.Join([]string{
		titleStyle.Render("My details"),
		"",
		labelStyle.Render("Name") + name,
		zipLabel.Render("Zip code") + s.zip.View(),
		phoneLabel.Render("Phone") + s.phone.View(),
		"",
		mutedStyle.Render("Helpers nearby see requests by zip code. Your phone number is shared with your helper."),
	}, "\n")
}
