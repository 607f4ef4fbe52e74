package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/flow"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

func itemRow(item model.Item) string {
	row := fmt.Sprintf("%d× %s", item.Amount, item.Name)
	if item.Unit != nil {
		row += " (" + item.Unit.Name + ")"
	}
	if item.Article == nil {
		row += mutedStyle.Render("  new article")
	}
	return row
}

// itemListScreen is the seeker's shopping list. It owns the seeker flow.
type itemListScreen struct {
	flow   *flow.SeekerFlow
	list   *flow.ItemList
	cursor int
}

func newItemListScreen(a *App) *itemListScreen {
	f := flow.NewSeekerFlow(a.ctx, a.loop, a.services, a.opts)
	return &itemListScreen{flow: f, list: flow.NewItemList(f)}
}

func (s *itemListScreen) Title() string { return "Shopping list" }
func (s *itemListScreen) Scope() string { return scopeItems }
func (s *itemListScreen) Show(a *App)   { s.list.Bind(a.notify) }
func (s *itemListScreen) Hide()         { s.list.Unbind() }
func (s *itemListScreen) Close()        { s.flow.Close() }

func (s *itemListScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, false
	}
	items := s.list.Items()
	switch {
	case a.keys.IsAction(km, actBack, scopeItems):
		return nil, true
	case a.keys.IsAction(km, actUp, scopeItems):
		s.cursor = clamp(s.cursor-1, len(items))
	case a.keys.IsAction(km, actDown, scopeItems):
		s.cursor = clamp(s.cursor+1, len(items))
	case a.keys.IsAction(km, actNew, scopeItems):
		a.push(newArticleScreen(s.list.NewItem(nil)))
	case a.keys.IsAction(km, actSelect, scopeItems):
		if len(items) > 0 {
			a.push(newArticleScreen(s.list.EditItem(clamp(s.cursor, len(items)), nil)))
		}
	case a.keys.IsAction(km, actDelete, scopeItems):
		if len(items) > 0 {
			s.list.Remove(clamp(s.cursor, len(items)))
		}
	case a.keys.IsAction(km, actContinue, scopeItems):
		if len(items) == 0 {
			return statusCmd("Add at least one item first."), false
		}
		a.push(newConfirmScreen(s.flow))
	}
	return nil, false
}

func (s *itemListScreen) View(width, height int) string {
	items := s.list.Items()
	lines := []string{titleStyle.Render("What do you need?"), ""}
	if len(items) == 0 {
		lines = append(lines, mutedStyle.Render("  Your list is empty. Press n to add an item."))
		return strings.Join(lines, "\n")
	}
	rows := make([]string, len(items))
	for i, item := range items {
		rows[i] = itemRow(item)
	}
	lines = append(lines, listLines(rows, clamp(s.cursor, len(rows)), true, width, height-2)...)
	return strings.Join(lines, "\n")
}

const (
	focusName = iota
	focusAmount
)

// articleScreen edits one item: name with autocomplete, amount and unit.
type articleScreen struct {
	input      *flow.ArticleInput
	name       textinput.Model
	amount     textinput.Model
	focus      int
	suggestion int // -1: none highlighted
	unitCursor int
	accepted   *model.Article
}

func newArticleScreen(input *flow.ArticleInput) *articleScreen {
	name := textinput.New()
	name.Placeholder = "Article"
	name.SetValue(input.Draft.Name.Get())
	name.Focus()

	amount := textinput.New()
	amount.Placeholder = "1"
	amount.CharLimit = 6
	amount.SetValue(input.Draft.AmountText.Get())

	return &articleScreen{
		input:      input,
		name:       name,
		amount:     amount,
		suggestion: -1,
		accepted:   input.Draft.Accepted.Get(),
	}
}

func (s *articleScreen) Title() string { return "Item" }

func (s *articleScreen) Scope() string {
	if s.picking() {
		return scopeUnits
	}
	return scopeArticle
}

func (s *articleScreen) Show(a *App) { s.input.Bind(a.notify) }
func (s *articleScreen) Hide()       { s.input.Unbind() }

func (s *articleScreen) picking() bool {
	return s.input.Draft.Mode.Get() == state.ModePickingUnit
}

func (s *articleScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	switch m := msg.(type) {
	case changedMsg:
		// An accepted suggestion rewrites the name.
		if acc := s.input.Draft.Accepted.Get(); acc != s.accepted {
			s.accepted = acc
			if acc != nil {
				s.name.SetValue(s.input.Draft.Name.Get())
				s.name.CursorEnd()
			}
		}
		return nil, false
	case tea.KeyMsg:
		if s.picking() {
			return s.updatePicker(a, m), false
		}
		suggestions := s.input.Search.Suggestions.Get()
		switch {
		case a.keys.IsAction(m, actBack, scopeArticle):
			s.input.Cancel()
			return nil, true
		case a.keys.IsAction(m, actUnit, scopeArticle):
			s.input.UnitButtonTapped()
			s.unitCursor = 0
			return nil, false
		case a.keys.IsAction(m, actNextField, scopeArticle), a.keys.IsAction(m, actPrevField, scopeArticle):
			s.toggleFocus()
			return nil, false
		case a.keys.IsAction(m, actUp, scopeArticle):
			s.suggestion = max(-1, s.suggestion-1)
			return nil, false
		case a.keys.IsAction(m, actDown, scopeArticle):
			s.suggestion = min(len(suggestions)-1, s.suggestion+1)
			return nil, false
		case a.keys.IsAction(m, actSelect, scopeArticle):
			if s.suggestion >= 0 && s.suggestion < len(suggestions) {
				s.input.SuggestionAccepted(suggestions[s.suggestion])
				s.suggestion = -1
				return nil, false
			}
			s.input.Done()
			return nil, true
		}
	}
	return s.updateInputs(msg), false
}

func (s *articleScreen) updatePicker(a *App, m tea.KeyMsg) tea.Cmd {
	units := s.input.Units()
	switch {
	case a.keys.IsAction(m, actBack, scopeUnits):
		s.input.DismissUnitPicker()
	case a.keys.IsAction(m, actUp, scopeUnits):
		s.unitCursor = clamp(s.unitCursor-1, len(units))
	case a.keys.IsAction(m, actDown, scopeUnits):
		s.unitCursor = clamp(s.unitCursor+1, len(units))
	case a.keys.IsAction(m, actSelect, scopeUnits):
		if len(units) > 0 {
			s.input.UnitSelected(units[clamp(s.unitCursor, len(units))])
		}
	}
	return nil
}

func (s *articleScreen) toggleFocus() {
	if s.focus == focusName {
		s.focus = focusAmount
		s.name.Blur()
		s.amount.Focus()
		return
	}
	s.focus = focusName
	s.amount.Blur()
	s.name.Focus()
}

func (s *articleScreen) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if s.focus == focusName {
		before := s.name.Value()
		s.name, cmd = s.name.Update(msg)
		if v := s.name.Value(); v != before {
			s.suggestion = -1
			s.input.NameChanged(v)
		}
		return cmd
	}
	before := s.amount.Value()
	s.amount, cmd = s.amount.Update(msg)
	if v := s.amount.Value(); v != before {
		s.input.SetAmount(v)
	}
	return cmd
}

func (s *articleScreen) View(width, height int) string {
	label := func(text string, focused bool) string {
		if focused {
			return focusedLabel.Render(text)
		}
		return labelStyle.Render(text)
	}
	unit := mutedStyle.Render("none (ctrl+u to choose)")
	if u := s.input.Draft.Unit.Get(); u != nil {
		unit = u.Name
	}
	lines := []string{
		titleStyle.Render("Item"),
		"",
		label("Article", s.focus == focusName) + s.name.View(),
		label("Amount", s.focus == focusAmount) + s.amount.View(),
		labelStyle.Render("Unit") + unit,
		"",
	}

	if s.picking() {
		units := s.input.Units()
		lines = append(lines, sectionStyle.Render("Choose a unit"))
		if units == nil {
			return strings.Join(append(lines, mutedStyle.Render("  Loading units…")), "\n")
		}
		rows := make([]string, len(units))
		for i, u := range units {
			rows[i] = u.Name + mutedStyle.Render(" "+u.NameShort)
		}
		lines = append(lines, listLines(rows, clamp(s.unitCursor, len(rows)), true, width, height-len(lines))...)
		return strings.Join(lines, "\n")
	}

	if suggestions := s.input.Search.Suggestions.Get(); len(suggestions) > 0 {
		lines = append(lines, sectionStyle.Render("Suggestions"))
		rows := make([]string, len(suggestions))
		for i, a := range suggestions {
			rows[i] = a.Name
		}
		lines = append(lines, listLines(rows, max(0, s.suggestion), s.suggestion >= 0, width, height-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

type formField struct {
	key   string
	label string
	get   func(*flow.Form) *string
}

var formFields = []formField{
	{flow.FieldFirstName, "First name", func(f *flow.Form) *string { return &f.FirstName }},
	{flow.FieldLastName, "Last name", func(f *flow.Form) *string { return &f.LastName }},
	{flow.FieldStreet, "Street", func(f *flow.Form) *string { return &f.Street }},
	{flow.FieldNumber, "Number", func(f *flow.Form) *string { return &f.Number }},
	{flow.FieldZipCode, "Zip code", func(f *flow.Form) *string { return &f.ZipCode }},
	{flow.FieldCity, "City", func(f *flow.Form) *string { return &f.City }},
	{flow.FieldPhone, "Phone", func(f *flow.Form) *string { return &f.PhoneNumber }},
	{"additionalRequest", "Anything else", func(f *flow.Form) *string { return &f.AdditionalRequest }},
	{"deliveryComment", "Delivery note", func(f *flow.Form) *string { return &f.DeliveryComment }},
}

type submittedMsg struct {
	req model.HelpRequest
	err error
}

// confirmScreen collects the address and submits the request.
type confirmScreen struct {
	conf      *flow.RequestConfirmation
	inputs    []textinput.Model
	focus     int
	prefilled bool
	invalid   *collab.ValidationError
}

func newConfirmScreen(f *flow.SeekerFlow) *confirmScreen {
	s := &confirmScreen{conf: flow.NewRequestConfirmation(f)}
	for i := range formFields {
		in := textinput.New()
		in.Prompt = ""
		if i == 0 {
			in.Focus()
		}
		s.inputs = append(s.inputs, in)
	}
	return s
}

func (s *confirmScreen) Title() string { return "Confirm" }
func (s *confirmScreen) Scope() string { return scopeConfirm }

func (s *confirmScreen) Show(a *App) {
	s.conf.Bind(func(flow.Form) { a.notify() })
}

func (s *confirmScreen) Hide() { s.conf.Unbind() }

func (s *confirmScreen) form() flow.Form {
	var f flow.Form
	for i, field := range formFields {
		*field.get(&f) = s.inputs[i].Value()
	}
	return f
}

// prefill copies the profile into fields the user has not typed into.
func (s *confirmScreen) prefill(f flow.Form) {
	for i, field := range formFields {
		if s.inputs[i].Value() == "" {
			s.inputs[i].SetValue(*field.get(&f))
		}
	}
}

func (s *confirmScreen) Update(a *App, msg tea.Msg) (tea.Cmd, bool) {
	switch m := msg.(type) {
	case changedMsg:
		if f := s.conf.Prefill.Get(); !s.prefilled && f != (flow.Form{}) {
			s.prefilled = true
			s.prefill(f)
		}
		return nil, false
	case submittedMsg:
		if errors.Is(m.err, flow.ErrSubmitInProgress) {
			return errorCmd(m.err), false
		}
		if m.err != nil {
			s.invalid = nil
			errors.As(m.err, &s.invalid)
			return errorCmd(m.err), false
		}
		return statusCmd(fmt.Sprintf("Request #%d submitted. A helper nearby will pick it up.", m.req.ID)), true
	case tea.KeyMsg:
		switch {
		case a.keys.IsAction(m, actBack, scopeConfirm):
			return nil, true
		case a.keys.IsAction(m, actNextField, scopeConfirm):
			s.moveFocus(1)
			return nil, false
		case a.keys.IsAction(m, actPrevField, scopeConfirm):
			s.moveFocus(-1)
			return nil, false
		case a.keys.IsAction(m, actSave, scopeConfirm):
			return s.submit(), false
		}
	}
	var cmd tea.Cmd
	s.inputs[s.focus], cmd = s.inputs[s.focus].Update(msg)
	return cmd, false
}

func (s *confirmScreen) moveFocus(delta int) {
	s.inputs[s.focus].Blur()
	s.focus = (s.focus + delta + len(s.inputs)) % len(s.inputs)
	s.inputs[s.focus].Focus()
}

func (s *confirmScreen) submit() tea.Cmd {
	form := s.form()
	return func() tea.Msg {
		type result struct {
			req model.HelpRequest
			err error
		}
		done := make(chan result, 1)
		s.conf.Submit(form, func(req model.HelpRequest, err error) { done <- result{req, err} })
		r := <-done
		return submittedMsg{req: r.req, err: r.err}
	}
}

func (s *confirmScreen) View(width, height int) string {
	lines := []string{titleStyle.Render("Your request"), ""}
	items := s.conf.Items()
	for _, item := range items {
		lines = append(lines, "  "+itemRow(item))
	}
	if len(items) == 0 {
		lines = append(lines, errorStyle.Render("  No items with an amount."))
	}
	lines = append(lines, "")
	for i, field := range formFields {
		label := labelStyle
		if i == s.focus {
			label = focusedLabel
		}
		row := label.Render(field.label) + s.inputs[i].View()
		if s.invalid != nil && s.invalid.Has(field.key) {
			row += errorStyle.Render("  !")
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
