package state

import (
	"slices"
	"strconv"
	"strings"

	"github.com/nexd/nexd/internal/model"
)

// store is the store-level change feed shared by every field of a store.
type store struct {
	changes Notifier
}

// Subscribe calls fn immediately, so a new subscriber observes the last
// written values, and again after every change to any field.
func (s *store) Subscribe(fn Observer) Handle {
	h := s.changes.Subscribe(fn)
	fn()
	return h
}

func (s *store) Unsubscribe(h Handle) bool { return s.changes.Unsubscribe(h) }

// Subscribers is the number of live store-level subscriptions.
func (s *store) Subscribers() int { return s.changes.Len() }

// RequestSet is one synchronizer result: the unfiltered candidates and the
// filtered view, both computed against ZipCode.
type RequestSet struct {
	Open     []model.HelpRequest
	Filtered []model.HelpRequest
	ZipCode  string
}

// NewRequestSet filters open by zip (empty means no zip constraint) and
// pending status. A nil open yields a nil filtered list.
func NewRequestSet(open []model.HelpRequest, zip string) RequestSet {
	set := RequestSet{Open: open, ZipCode: zip}
	if open == nil {
		return set
	}
	set.Filtered = make([]model.HelpRequest, 0, len(open))
	for _, r := range open {
		if r.Status != model.StatusPending {
			continue
		}
		if zip != "" && r.ZipCode != zip {
			continue
		}
		set.Filtered = append(set.Filtered, r)
	}
	return set
}

// Workflow is the helper flow's shared record.
type Workflow struct {
	store
	ActiveList *Field[*model.HelpList]
	Requests   *Field[RequestSet]
}

func NewWorkflow() *Workflow {
	w := &Workflow{}
	w.ActiveList = NewField[*model.HelpList](&w.changes, nil)
	w.Requests = NewField(&w.changes, RequestSet{})
	return w
}

func (w *Workflow) OpenRequests() []model.HelpRequest { return w.Requests.Get().Open }

func (w *Workflow) FilteredRequests() []model.HelpRequest { return w.Requests.Get().Filtered }

// AcceptedRequests are the requests on the active list, nil without one.
func (w *Workflow) AcceptedRequests() []model.HelpRequest {
	list := w.ActiveList.Get()
	if list == nil {
		return nil
	}
	if list.HelpRequests == nil {
		return []model.HelpRequest{}
	}
	return list.HelpRequests
}

// ActiveListID is nil while no list is known.
func (w *Workflow) ActiveListID() *int64 {
	list := w.ActiveList.Get()
	if list == nil {
		return nil
	}
	id := list.ID
	return &id
}

// Filter is the helper's request filter.
type Filter struct {
	store
	ZipCode *Field[string]
}

func NewFilter() *Filter {
	f := &Filter{}
	f.ZipCode = NewField(&f.changes, "")
	return f
}

// SetZipCode writes the trimmed zip; an empty value clears the filter.
func (f *Filter) SetZipCode(zip string) { f.ZipCode.Set(strings.TrimSpace(zip)) }

// ItemSelection is the seeker flow's record of items being put together.
type ItemSelection struct {
	store
	Language string
	Units    *Field[[]model.Unit]
	Items    *Field[[]model.Item]
}

func NewItemSelection(language string) *ItemSelection {
	s := &ItemSelection{Language: language}
	s.Units = NewField[[]model.Unit](&s.changes, nil)
	s.Items = NewField(&s.changes, []model.Item{})
	return s
}

// NormalizeItem trims the name and clamps the amount at zero.
func NormalizeItem(item model.Item) model.Item {
	item.Name = strings.TrimSpace(item.Name)
	if item.Amount < 0 {
		item.Amount = 0
	}
	return item
}

// AddItem appends item and returns its index.
func (s *ItemSelection) AddItem(item model.Item) int {
	idx := -1
	s.Items.Update(func(items []model.Item) []model.Item {
		out := append(slices.Clone(items), NormalizeItem(item))
		idx = len(out) - 1
		return out
	})
	return idx
}

// ReplaceItem overwrites the item at idx.
func (s *ItemSelection) ReplaceItem(idx int, item model.Item) bool {
	ok := false
	s.Items.Update(func(items []model.Item) []model.Item {
		if idx < 0 || idx >= len(items) {
			return items
		}
		ok = true
		out := slices.Clone(items)
		out[idx] = NormalizeItem(item)
		return out
	})
	return ok
}

// RemoveItem drops the item at idx.
func (s *ItemSelection) RemoveItem(idx int) bool {
	ok := false
	s.Items.Update(func(items []model.Item) []model.Item {
		if idx < 0 || idx >= len(items) {
			return items
		}
		ok = true
		return slices.Delete(slices.Clone(items), idx, idx+1)
	})
	return ok
}

// SubmittableItems drops blank items.
func (s *ItemSelection) SubmittableItems() []model.Item {
	var out []model.Item
	for _, item := range s.Items.Get() {
		item = NormalizeItem(item)
		if item.Blank() {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Search is the autocomplete record of one item-entry screen.
type Search struct {
	store
	Query       *Field[string]
	Suggestions *Field[[]model.Article]
}

func NewSearch() *Search {
	s := &Search{}
	s.Query = NewField(&s.changes, "")
	s.Suggestions = NewField[[]model.Article](&s.changes, nil)
	return s
}

// Mode is the item-entry screen's state.
type Mode int

const (
	ModeEditing Mode = iota
	ModePickingUnit
)

func (m Mode) String() string {
	if m == ModePickingUnit {
		return "picking-unit"
	}
	return "editing"
}

// ItemDraft is the view state of the item-entry screen.
type ItemDraft struct {
	store
	Name       *Field[string]
	AmountText *Field[string]
	Unit       *Field[*model.Unit]
	Accepted   *Field[*model.Article]
	Mode       *Field[Mode]
}

// NewItemDraft prefills the draft from item when editing an existing line.
func NewItemDraft(item *model.Item) *ItemDraft {
	d := &ItemDraft{}
	var (
		name, amount string
		unit         *model.Unit
		article      *model.Article
	)
	if item != nil {
		name, amount = item.Name, strconv.FormatInt(item.Amount, 10)
		unit, article = item.Unit, item.Article
	}
	d.Name = NewField(&d.changes, name)
	d.AmountText = NewField(&d.changes, amount)
	d.Unit = NewField(&d.changes, unit)
	d.Accepted = NewField(&d.changes, article)
	d.Mode = NewField(&d.changes, ModeEditing)
	return d
}

// Item snapshots the draft.
func (d *ItemDraft) Item() model.Item {
	return NormalizeItem(model.Item{
		Article: d.Accepted.Get(),
		Name:    d.Name.Get(),
		Amount:  ParseAmount(d.AmountText.Get()),
		Unit:    d.Unit.Get(),
	})
}

// ParseAmount reads a non-negative count; anything unparsable is 0.
func ParseAmount(text string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
