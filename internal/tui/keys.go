package tui

import (
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Screen scopes. A binding without scopes applies everywhere.
const (
	scopeHome    = "home"
	scopeHelper  = "helper"
	scopeFilter  = "filter"
	scopeItems   = "items"
	scopeArticle = "article"
	scopeUnits   = "units"
	scopeConfirm = "confirm"
	scopeUser    = "user"
)

// Actions.
const (
	actQuit      = "quit"
	actBack      = "back"
	actUp        = "up"
	actDown      = "down"
	actSelect    = "select"
	actSection   = "section"
	actFilter    = "filter"
	actRefresh   = "refresh"
	actNew       = "new"
	actDelete    = "delete"
	actContinue  = "continue"
	actUnit      = "unit"
	actNextField = "next-field"
	actPrevField = "prev-field"
	actSave      = "save"
)

type KeyBinding struct {
	Keys        []string
	Action      string
	Description string
	Scopes      []string
}

type KeyRegistry struct {
	bindings []KeyBinding
}

func NewKeyRegistry(bindings []KeyBinding) *KeyRegistry {
	return &KeyRegistry{bindings: slices.Clone(bindings)}
}

func (r *KeyRegistry) BindingsForScope(scope string) []KeyBinding {
	out := make([]KeyBinding, 0, len(r.bindings))
	for _, b := range r.bindings {
		if scopeMatch(scope, b.Scopes) && b.Description != "" {
			out = append(out, b)
		}
	}
	return out
}

func (r *KeyRegistry) IsAction(msg tea.KeyMsg, action, scope string) bool {
	pressed := normalizeKey(msg.String())
	for _, b := range r.bindings {
		if b.Action != action || !scopeMatch(scope, b.Scopes) {
			continue
		}
		for _, k := range b.Keys {
			if normalizeKey(k) == pressed {
				return true
			}
		}
	}
	return false
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func scopeMatch(scope string, scopes []string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// Text-entry screens only get modifier and navigation keys so typing is
// never swallowed.
func defaultBindings() []KeyBinding {
	lists := []string{scopeHome, scopeHelper, scopeItems, scopeUnits}
	forms := []string{scopeFilter, scopeArticle, scopeConfirm, scopeUser}
	return []KeyBinding{
		{Keys: []string{"ctrl+c"}, Action: actQuit, Description: "quit"},
		{Keys: []string{"q"}, Action: actQuit, Scopes: []string{scopeHome}},
		{Keys: []string{"esc"}, Action: actBack, Description: "back", Scopes: append(slices.Clone(lists[1:]), forms...)},
		{Keys: []string{"up", "k"}, Action: actUp, Description: "up", Scopes: lists},
		{Keys: []string{"up"}, Action: actUp, Scopes: []string{scopeArticle}},
		{Keys: []string{"down", "j"}, Action: actDown, Description: "down", Scopes: lists},
		{Keys: []string{"down"}, Action: actDown, Scopes: []string{scopeArticle}},
		{Keys: []string{"enter"}, Action: actSelect, Description: "select", Scopes: append(lists, scopeArticle)},
		{Keys: []string{"enter"}, Action: actSave, Description: "save", Scopes: []string{scopeFilter}},
		{Keys: []string{"ctrl+s"}, Action: actSave, Description: "submit", Scopes: []string{scopeConfirm, scopeUser}},
		{Keys: []string{"tab"}, Action: actSection, Description: "switch list", Scopes: []string{scopeHelper}},
		{Keys: []string{"f"}, Action: actFilter, Description: "filter", Scopes: []string{scopeHelper}},
		{Keys: []string{"r"}, Action: actRefresh, Description: "refresh", Scopes: []string{scopeHelper}},
		{Keys: []string{"n"}, Action: actNew, Description: "new item", Scopes: []string{scopeItems}},
		{Keys: []string{"d", "delete"}, Action: actDelete, Description: "remove", Scopes: []string{scopeItems}},
		{Keys: []string{"c"}, Action: actContinue, Description: "continue", Scopes: []string{scopeItems}},
		{Keys: []string{"ctrl+u"}, Action: actUnit, Description: "unit", Scopes: []string{scopeArticle}},
		{Keys: []string{"tab"}, Action: actNextField, Description: "next field", Scopes: []string{scopeArticle, scopeConfirm, scopeUser}},
		{Keys: []string{"shift+tab"}, Action: actPrevField, Scopes: []string{scopeArticle, scopeConfirm, scopeUser}},
	}
}
