package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

// ItemList drives the seeker's list of items.
type ItemList struct {
	flow *SeekerFlow
	bag  state.Bag
}

func NewItemList(f *SeekerFlow) *ItemList { return &ItemList{flow: f} }

// Bind attaches observer to the item selection. The first bind of a flow
// loads the unit catalog.
func (l *ItemList) Bind(observer func()) {
	l.flow.Loop.Post(func() {
		l.bag.Release()
		l.flow.loadUnits()
		l.bag.Subscribe(l.flow.Selection, observer)
	})
}

func (l *ItemList) Unbind() { l.flow.Loop.Post(l.bag.Release) }

func (l *ItemList) Items() []model.Item { return l.flow.Selection.Items.Get() }

func (l *ItemList) Add(item model.Item) {
	l.flow.Loop.Post(func() { l.flow.Selection.AddItem(item) })
}

func (l *ItemList) Replace(idx int, item model.Item) {
	l.flow.Loop.Post(func() { l.flow.Selection.ReplaceItem(idx, item) })
}

func (l *ItemList) Remove(idx int) {
	l.flow.Loop.Post(func() { l.flow.Selection.RemoveItem(idx) })
}

// NewItem opens an input whose result is appended to the list. A blank
// result is discarded. onClose runs on the loop either way.
func (l *ItemList) NewItem(onClose func()) *ArticleInput {
	return NewArticleInput(l.flow, nil, func(item model.Item) {
		if !item.Blank() {
			l.flow.Selection.AddItem(item)
		}
		closed(onClose)
	}, func() { closed(onClose) })
}

// EditItem opens an input prefilled with the item at idx. A blank result
// removes the item.
func (l *ItemList) EditItem(idx int, onClose func()) *ArticleInput {
	var current *model.Item
	if items := l.Items(); idx >= 0 && idx < len(items) {
		item := items[idx]
		current = &item
	}
	return NewArticleInput(l.flow, current, func(item model.Item) {
		if item.Blank() {
			l.flow.Selection.RemoveItem(idx)
		} else {
			l.flow.Selection.ReplaceItem(idx, item)
		}
		closed(onClose)
	}, func() { closed(onClose) })
}

func closed(fn func()) {
	if fn != nil {
		fn()
	}
}

// Form is the address and comment part of a help request.
type Form struct {
	FirstName         string
	LastName          string
	Street            string
	Number            string
	ZipCode           string
	City              string
	PhoneNumber       string
	AdditionalRequest string
	DeliveryComment   string
}

func formFromUser(u model.User) Form {
	return Form{
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Street:      u.Street,
		Number:      u.Number,
		ZipCode:     u.ZipCode,
		City:        u.City,
		PhoneNumber: u.PhoneNumber,
	}
}

func (f Form) trimmed() Form {
	for _, s := range []*string{&f.FirstName, &f.LastName, &f.Street, &f.Number, &f.ZipCode, &f.City, &f.PhoneNumber, &f.AdditionalRequest, &f.DeliveryComment} {
		*s = strings.TrimSpace(*s)
	}
	return f
}

// Validate checks the form and the items client-side.
func (f Form) Validate(items []model.Item) error {
	verr := &collab.ValidationError{}
	if len(items) == 0 {
		verr.Add(FieldItems, "must contain at least one item")
	}
	checkRequired(verr, FieldFirstName, f.FirstName)
	checkRequired(verr, FieldLastName, f.LastName)
	checkRequired(verr, FieldStreet, f.Street)
	checkRequired(verr, FieldNumber, f.Number)
	checkZip(verr, f.ZipCode)
	checkRequired(verr, FieldCity, f.City)
	checkPhone(verr, f.PhoneNumber)
	return verr.Err()
}

// RequestConfirmation drives the last seeker screen: the address form and
// the submission.
type RequestConfirmation struct {
	flow *SeekerFlow
	// Prefill is the form as loaded from the caller's profile.
	Prefill *state.Field[Form]
	bag     state.Bag

	// Only touched on the loop.
	submitting bool
}

func NewRequestConfirmation(f *SeekerFlow) *RequestConfirmation {
	return &RequestConfirmation{flow: f, Prefill: state.NewField[Form](nil, Form{})}
}

// Bind calls observer with the prefill now and once the profile has been
// loaded. A failed profile lookup leaves the form blank.
func (c *RequestConfirmation) Bind(observer func(Form)) {
	c.flow.Loop.Post(func() {
		c.bag.Release()
		state.Observe(&c.bag, c.Prefill, observer)
		ticket := c.Prefill.Begin()
		call(&c.flow.scope, func(ctx context.Context) (model.User, error) {
			return c.flow.services.Users.FindCurrentUser(ctx)
		}, func(user model.User, err error) {
			if err != nil {
				c.flow.opts.Logger.Debug("profile lookup failed", "err", err)
				return
			}
			c.Prefill.Apply(ticket, formFromUser(user))
		})
	})
}

func (c *RequestConfirmation) Unbind() { c.flow.Loop.Post(c.bag.Release) }

// Items are the items that will be submitted: named and with an amount.
func (c *RequestConfirmation) Items() []model.Item {
	var out []model.Item
	for _, item := range c.flow.Selection.SubmittableItems() {
		if item.Amount > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Submit validates form and the items and submits the request. Items
// without a catalog article are created first. done runs on the loop and
// is called exactly once; a submit while another is running fails with
// ErrSubmitInProgress. On success the item selection is cleared.
func (c *RequestConfirmation) Submit(form Form, done func(model.HelpRequest, error)) {
	c.flow.Loop.Post(func() {
		if c.submitting {
			if done != nil {
				done(model.HelpRequest{}, ErrSubmitInProgress)
			}
			return
		}
		form := form.trimmed()
		items := c.Items()
		if err := form.Validate(items); err != nil {
			if done != nil {
				done(model.HelpRequest{}, err)
			}
			return
		}
		c.submitting = true
		lang := c.flow.Selection.Language
		call(&c.flow.scope, func(ctx context.Context) (model.HelpRequest, error) {
			return submitRequest(ctx, c.flow.services, lang, form, items)
		}, func(created model.HelpRequest, err error) {
			c.submitting = false
			if err != nil {
				c.flow.opts.Logger.Info("submitting help request failed", "err", err)
			} else {
				c.flow.Selection.Items.Set([]model.Item{})
			}
			if done != nil {
				done(created, err)
			}
		})
	})
}

func submitRequest(ctx context.Context, services collab.Services, lang string, form Form, items []model.Item) (model.HelpRequest, error) {
	req := collab.NewHelpRequest{
		FirstName:         form.FirstName,
		LastName:          form.LastName,
		Street:            form.Street,
		Number:            form.Number,
		ZipCode:           form.ZipCode,
		City:              form.City,
		PhoneNumber:       form.PhoneNumber,
		AdditionalRequest: form.AdditionalRequest,
		DeliveryComment:   form.DeliveryComment,
		Articles:          make([]collab.RequestArticle, 0, len(items)),
	}
	for _, item := range items {
		article := item.Article
		if article == nil {
			created, err := services.Articles.CreateArticle(ctx, item.Name, lang)
			if err != nil {
				return model.HelpRequest{}, fmt.Errorf("create article %q: %w", item.Name, err)
			}
			article = &created
		}
		line := collab.RequestArticle{ArticleID: article.ID, ArticleCount: item.Amount}
		if item.Unit != nil {
			id := item.Unit.ID
			line.UnitID = &id
		}
		req.Articles = append(req.Articles, line)
	}
	created, err := services.HelpRequests.SubmitHelpRequest(ctx, req)
	if err != nil {
		return model.HelpRequest{}, fmt.Errorf("submit help request: %w", err)
	}
	return created, nil
}
