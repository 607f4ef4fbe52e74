package flow

import (
	"strings"

	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/pipeline"
	"github.com/nexd/nexd/internal/state"
)

// ArticleInput drives the item-entry screen: the name field with article
// autocomplete, the amount, and the unit picker.
//
// While the unit picker is open, name and amount input is ignored. Done
// hands the drafted item to onDone; Cancel calls onCancel and hands over
// nothing. Either ends the input.
type ArticleInput struct {
	flow   *SeekerFlow
	Draft  *state.ItemDraft
	Search *state.Search

	query    *pipeline.Query
	bag      state.Bag
	onDone   func(model.Item)
	onCancel func()

	// Only touched on the loop.
	finished bool
}

// NewArticleInput starts an input prefilled from item, or blank for nil.
func NewArticleInput(f *SeekerFlow, item *model.Item, onDone func(model.Item), onCancel func()) *ArticleInput {
	search := state.NewSearch()
	return &ArticleInput{
		flow:     f,
		Draft:    state.NewItemDraft(item),
		Search:   search,
		query:    pipeline.NewQuery(f.ctx, f.Loop, f.services.Articles, search, f.opts.pipeline()),
		onDone:   onDone,
		onCancel: onCancel,
	}
}

func (a *ArticleInput) Bind(observer func()) {
	a.flow.Loop.Post(func() {
		a.bag.Release()
		a.flow.loadUnits()
		a.bag.Subscribe(a.Draft, observer)
		a.bag.Subscribe(a.Search, observer)
		a.bag.Subscribe(a.flow.Selection, observer)
		if a.flow.opts.MatchLateUnits {
			state.Observe(&a.bag, a.flow.Selection.Units, a.matchLateUnit)
		}
	})
}

func (a *ArticleInput) Unbind() { a.flow.Loop.Post(a.bag.Release) }

// Units is the unit catalog, nil until loaded.
func (a *ArticleInput) Units() []model.Unit { return a.flow.Selection.Units.Get() }

func (a *ArticleInput) editing() bool {
	return !a.finished && a.Draft.Mode.Get() == state.ModeEditing
}

// NameChanged records a keystroke in the name field. Typing away from an
// accepted suggestion drops it.
func (a *ArticleInput) NameChanged(text string) {
	a.flow.Loop.Post(func() {
		if !a.editing() {
			return
		}
		a.Draft.Name.Set(text)
		if acc := a.Draft.Accepted.Get(); acc != nil && acc.Name != strings.TrimSpace(text) {
			a.Draft.Accepted.Set(nil)
		}
		a.query.Submit(text)
	})
}

func (a *ArticleInput) SetAmount(text string) {
	a.flow.Loop.Post(func() {
		if !a.editing() {
			return
		}
		a.Draft.AmountText.Set(text)
	})
}

func (a *ArticleInput) UnitButtonTapped() {
	a.flow.Loop.Post(func() {
		if a.finished {
			return
		}
		a.Draft.Mode.Set(state.ModePickingUnit)
	})
}

func (a *ArticleInput) UnitSelected(unit model.Unit) {
	a.flow.Loop.Post(func() {
		if a.finished {
			return
		}
		a.Draft.Unit.Set(&unit)
		a.Draft.Mode.Set(state.ModeEditing)
	})
}

func (a *ArticleInput) DismissUnitPicker() {
	a.flow.Loop.Post(func() {
		if a.finished {
			return
		}
		a.Draft.Mode.Set(state.ModeEditing)
	})
}

// SuggestionAccepted takes article as the item's article. Suggestions are
// cleared and, when the catalog is loaded, the first unit of the article's
// order that the catalog knows is selected. With no known unit the current
// one is kept.
func (a *ArticleInput) SuggestionAccepted(article model.Article) {
	a.flow.Loop.Post(func() {
		if !a.editing() {
			return
		}
		a.query.Cancel()
		a.Draft.Accepted.Set(&article)
		a.Draft.Name.Set(article.Name)
		a.query.Reset()
		if len(article.UnitIDOrder) == 0 {
			return
		}
		if unit := model.FindUnit(a.flow.Selection.Units.Get(), article.UnitIDOrder); unit != nil {
			a.Draft.Unit.Set(unit)
		}
	})
}

// matchLateUnit fills in the unit of an accepted article once the catalog
// is known, unless the user already picked one.
func (a *ArticleInput) matchLateUnit(units []model.Unit) {
	acc := a.Draft.Accepted.Get()
	if units == nil || acc == nil || a.Draft.Unit.Get() != nil {
		return
	}
	if unit := model.FindUnit(units, acc.UnitIDOrder); unit != nil {
		a.Draft.Unit.Set(unit)
	}
}

func (a *ArticleInput) Done() {
	a.flow.Loop.Post(func() {
		if a.finished {
			return
		}
		a.finished = true
		a.query.Close()
		if a.onDone != nil {
			a.onDone(a.Draft.Item())
		}
	})
}

func (a *ArticleInput) Cancel() {
	a.flow.Loop.Post(func() {
		if a.finished {
			return
		}
		a.finished = true
		a.query.Close()
		if a.onCancel != nil {
			a.onCancel()
		}
	})
}
