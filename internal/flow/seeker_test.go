package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/collab/collabtest"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/pipeline"
	"github.com/nexd/nexd/internal/state"
)

var catalog = []model.Unit{
	{ID: 3, Name: "Stück", NameShort: "St."},
	{ID: 5, Name: "Packung", NameShort: "Pck."},
	{ID: 7, Name: "Liter", NameShort: "l"},
}

func (e *env) seeker(t *testing.T) *SeekerFlow {
	f := NewSeekerFlow(e.ctx, e.loop, e.fake.Services(), e.opts)
	t.Cleanup(f.Close)
	return f
}

// typeName enters text and lets the debounce window elapse.
func (e *env) typeName(in *ArticleInput, text string) {
	in.NameChanged(text)
	e.flush()
	e.clock.Advance(pipeline.DefaultWindow)
}

func TestSuggestionPreselectsFirstKnownUnit(t *testing.T) {
	e := newEnv(t)
	e.fake.Units = catalog
	e.fake.Articles = []model.Article{{ID: 11, Name: "Milch", UnitIDOrder: []int64{7, 3}}}
	f := e.seeker(t)

	in := NewArticleInput(f, nil, nil, nil)
	in.Bind(func() {})
	require.Eventually(t, func() bool { return in.Units() != nil }, waitFor, tick)

	e.typeName(in, "Mil")
	require.Eventually(t, func() bool { return len(in.Search.Suggestions.Get()) == 1 }, waitFor, tick)

	in.SuggestionAccepted(in.Search.Suggestions.Get()[0])
	e.flush()

	require.Equal(t, "Milch", in.Draft.Name.Get())
	require.Equal(t, int64(11), in.Draft.Accepted.Get().ID)
	require.Equal(t, int64(7), in.Draft.Unit.Get().ID)
	require.Nil(t, in.Search.Suggestions.Get())
	require.Equal(t, 0, e.clock.Pending())
}

func TestSuggestionWithoutCatalogLeavesUnitUnset(t *testing.T) {
	e := newEnv(t)
	e.fake.UnitsErr = &collab.Error{Op: "ListUnits", Kind: collab.ErrRequestFailed}
	f := e.seeker(t)

	in := NewArticleInput(f, nil, nil, nil)
	in.Bind(func() {})
	require.Eventually(t, func() bool { return e.fake.UnitsCalls() == 1 }, waitFor, tick)
	e.flush()

	in.SuggestionAccepted(model.Article{ID: 11, Name: "Milch", UnitIDOrder: []int64{7}})
	e.flush()
	require.Equal(t, "Milch", in.Draft.Name.Get())
	require.Nil(t, in.Draft.Unit.Get())
}

func TestSuggestionWithUnknownUnitsKeepsChosenUnit(t *testing.T) {
	e := newEnv(t)
	e.fake.Units = catalog
	f := e.seeker(t)

	in := NewArticleInput(f, nil, nil, nil)
	in.Bind(func() {})
	require.Eventually(t, func() bool { return in.Units() != nil }, waitFor, tick)

	in.UnitSelected(catalog[0])
	in.SuggestionAccepted(model.Article{ID: 11, Name: "Milch", UnitIDOrder: []int64{99}})
	e.flush()
	require.Equal(t, "Milch", in.Draft.Name.Get())
	require.Equal(t, int64(3), in.Draft.Unit.Get().ID)

	in.NameChanged("Mehl")
	in.SuggestionAccepted(model.Article{ID: 12, Name: "Mehl", UnitIDOrder: []int64{99, 5}})
	e.flush()
	require.Equal(t, int64(5), in.Draft.Unit.Get().ID)
}

func TestLateCatalogMatchesUnitWhenEnabled(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		e := newEnv(t)
		e.opts.MatchLateUnits = enabled
		gate := make(chan struct{})
		e.fake.OnUnits = func(ctx context.Context, language string) ([]model.Unit, error) {
			<-gate
			return catalog, nil
		}
		f := e.seeker(t)

		in := NewArticleInput(f, nil, nil, nil)
		in.Bind(func() {})
		in.SuggestionAccepted(model.Article{ID: 11, Name: "Milch", UnitIDOrder: []int64{9, 5}})
		e.flush()
		require.Nil(t, in.Draft.Unit.Get())

		close(gate)
		require.Eventually(t, func() bool { return in.Units() != nil }, waitFor, tick)
		e.flush()
		if enabled {
			require.Equal(t, int64(5), in.Draft.Unit.Get().ID)
		} else {
			require.Nil(t, in.Draft.Unit.Get())
		}
	}
}

func TestUnitPickerMakesInputInert(t *testing.T) {
	e := newEnv(t)
	e.fake.Units = catalog
	f := e.seeker(t)
	in := NewArticleInput(f, nil, nil, nil)
	in.Bind(func() {})

	in.NameChanged("Brot")
	in.SetAmount("2")
	in.UnitButtonTapped()
	in.NameChanged("Brötchen")
	in.SetAmount("9")
	e.flush()

	require.Equal(t, state.ModePickingUnit, in.Draft.Mode.Get())
	require.Equal(t, "Brot", in.Draft.Name.Get())
	require.Equal(t, "2", in.Draft.AmountText.Get())

	in.UnitSelected(catalog[1])
	e.flush()
	require.Equal(t, state.ModeEditing, in.Draft.Mode.Get())
	require.Equal(t, int64(5), in.Draft.Unit.Get().ID)

	in.UnitButtonTapped()
	in.DismissUnitPicker()
	e.flush()
	require.Equal(t, state.ModeEditing, in.Draft.Mode.Get())
	require.Equal(t, int64(5), in.Draft.Unit.Get().ID)
}

func TestTypingAwayDropsAcceptedArticle(t *testing.T) {
	e := newEnv(t)
	f := e.seeker(t)
	in := NewArticleInput(f, nil, nil, nil)
	in.Bind(func() {})

	in.SuggestionAccepted(model.Article{ID: 11, Name: "Milch"})
	in.NameChanged("Milch ")
	e.flush()
	require.NotNil(t, in.Draft.Accepted.Get())

	in.NameChanged("Milchreis")
	e.flush()
	require.Nil(t, in.Draft.Accepted.Get())
}

func TestDoneAndCancelEndTheInput(t *testing.T) {
	e := newEnv(t)
	f := e.seeker(t)
	list := NewItemList(f)
	list.Bind(func() {})

	closes := 0
	in := list.NewItem(func() { closes++ })
	in.Bind(func() {})
	in.NameChanged("Hefe")
	in.SetAmount("2")
	in.Done()
	in.Done()
	in.NameChanged("ignored")
	e.flush()

	items := list.Items()
	require.Len(t, items, 1)
	require.Equal(t, model.Item{Name: "Hefe", Amount: 2}, items[0])

	edit := list.EditItem(0, func() { closes++ })
	require.Equal(t, "Hefe", edit.Draft.Name.Get())
	edit.SetAmount("4")
	edit.Cancel()
	e.flush()
	require.Equal(t, int64(2), list.Items()[0].Amount)

	blank := list.NewItem(func() { closes++ })
	blank.Done()
	e.flush()
	require.Len(t, list.Items(), 1)

	var n int
	e.loop.Do(func() { n = closes })
	require.Equal(t, 3, n)
	require.Equal(t, 1, e.fake.UnitsCalls())
}

func TestRequestConfirmationPrefillsFromProfile(t *testing.T) {
	e := newEnv(t)
	e.fake.User.Street, e.fake.User.Number = "Hauptstr.", "4"
	e.fake.User.ZipCode, e.fake.User.City = "12345", "Berlin"
	f := e.seeker(t)
	c := NewRequestConfirmation(f)

	forms := make(chan Form, 4)
	c.Bind(func(form Form) { forms <- form })
	require.Equal(t, Form{}, <-forms)
	got := <-forms
	require.Equal(t, "Max", got.FirstName)
	require.Equal(t, "Hauptstr.", got.Street)
	require.Equal(t, "12345", got.ZipCode)
}

func validForm() Form {
	return Form{
		FirstName: "Max", LastName: "Muster",
		Street: "Hauptstr.", Number: "4",
		ZipCode: "12345", City: "Berlin",
		PhoneNumber: "+49 30 1234567",
	}
}

func TestRequestConfirmationValidatesWithoutNetwork(t *testing.T) {
	e := newEnv(t)
	f := e.seeker(t)
	e.loop.Do(func() {
		f.Selection.AddItem(model.Item{Name: "  "})
		f.Selection.AddItem(model.Item{Name: "Salz", Amount: 0})
	})
	c := NewRequestConfirmation(f)

	form := validForm()
	form.Street, form.ZipCode, form.PhoneNumber = " ", "1234a", "call me"
	errs := make(chan error, 1)
	c.Submit(form, func(_ model.HelpRequest, err error) { errs <- err })

	err := <-errs
	require.ErrorIs(t, err, collab.ErrValidation)
	verr := err.(*collab.ValidationError)
	for _, field := range []string{FieldItems, FieldStreet, FieldZipCode, FieldPhone} {
		require.True(t, verr.Has(field), field)
	}
	require.False(t, verr.Has(FieldFirstName))
	require.Empty(t, e.fake.Submitted())
	require.Empty(t, e.fake.CreatedArticles())
}

func TestRequestConfirmationCreatesMissingArticlesAndSubmits(t *testing.T) {
	e := newEnv(t)
	f := e.seeker(t)
	unit := catalog[0]
	e.loop.Do(func() {
		f.Selection.AddItem(model.Item{Article: &model.Article{ID: 11, Name: "Milch"}, Name: "Milch", Amount: 2, Unit: &unit})
		f.Selection.AddItem(model.Item{Name: "Hefe", Amount: 1})
		f.Selection.AddItem(model.Item{Name: "", Amount: 3})
		f.Selection.AddItem(model.Item{Name: "Salz", Amount: 0})
	})
	c := NewRequestConfirmation(f)
	require.Len(t, c.Items(), 2)

	form := validForm()
	form.PhoneNumber = ""
	form.DeliveryComment = "  bitte klingeln "
	type result struct {
		req model.HelpRequest
		err error
	}
	results := make(chan result, 1)
	c.Submit(form, func(req model.HelpRequest, err error) { results <- result{req, err} })

	res := <-results
	require.NoError(t, res.err)
	require.Equal(t, model.StatusPending, res.req.Status)
	require.Equal(t, []string{"Hefe"}, e.fake.CreatedArticles())

	submitted := e.fake.Submitted()
	require.Len(t, submitted, 1)
	require.Equal(t, "bitte klingeln", submitted[0].DeliveryComment)
	require.Len(t, submitted[0].Articles, 2)
	require.Equal(t, int64(11), submitted[0].Articles[0].ArticleID)
	require.Equal(t, int64(3), *submitted[0].Articles[0].UnitID)
	require.Nil(t, submitted[0].Articles[1].UnitID)
	require.Equal(t, int64(1), submitted[0].Articles[1].ArticleCount)

	require.Empty(t, f.Selection.Items.Get())
}

func TestRequestConfirmationSurfacesServerFailure(t *testing.T) {
	e := newEnv(t)
	e.fake.SubmitErr = &collab.Error{Op: "SubmitHelpRequest", Kind: collab.ErrRequestFailed, Status: 500}
	f := e.seeker(t)
	e.loop.Do(func() { f.Selection.AddItem(model.Item{Article: &model.Article{ID: 1}, Name: "Reis", Amount: 1}) })

	errs := make(chan error, 1)
	NewRequestConfirmation(f).Submit(validForm(), func(_ model.HelpRequest, err error) { errs <- err })
	err := <-errs
	require.ErrorIs(t, err, collab.ErrRequestFailed)
	require.Equal(t, "Could not reach the server. Please try again.", UserMessage(err))
	require.Len(t, f.Selection.Items.Get(), 1)
}

func TestUserDetailsSave(t *testing.T) {
	e := newEnv(t)
	d := NewUserDetails(e.ctx, e.loop, e.fake, e.opts)
	t.Cleanup(d.Close)

	users := make(chan model.User, 4)
	d.Bind(func(u model.User) { users <- u })
	<-users
	require.Equal(t, "Max", (<-users).FirstName)

	type result struct {
		user model.User
		err  error
	}
	results := make(chan result, 1)
	d.Save("1011", "", func(u model.User, err error) { results <- result{u, err} })
	res := <-results
	require.ErrorIs(t, res.err, collab.ErrValidation)
	verr := res.err.(*collab.ValidationError)
	require.True(t, verr.Has(FieldZipCode))
	require.True(t, verr.Has(FieldPhone))
	require.Empty(t, e.fake.Updates())

	d.Save(" 10115 ", "030 123456", func(u model.User, err error) { results <- result{u, err} })
	res = <-results
	require.NoError(t, res.err)
	require.Equal(t, "10115", res.user.ZipCode)
	require.Equal(t, []collab.UserUpdate{{FirstName: "Max", LastName: "Muster", ZipCode: "10115", PhoneNumber: "030 123456"}}, e.fake.Updates())
	require.Equal(t, "10115", (<-users).ZipCode)
}

func TestUserDetailsSaveWaitsForProfile(t *testing.T) {
	e := newEnv(t)
	e.fake.User.ZipCode = "12345"
	e.fake.UserErr = &collab.Error{Op: "FindCurrentUser", Kind: collab.ErrRequestFailed, Status: 503}
	d := NewUserDetails(e.ctx, e.loop, e.fake, e.opts)
	t.Cleanup(d.Close)

	d.Bind(func(model.User) {})
	require.Eventually(t, func() bool { return e.fake.UserCalls() == 1 }, waitFor, tick)
	e.fake.Set(func(f *collabtest.Fake) { f.UserErr = nil })

	errs := make(chan error, 1)
	d.Save("10115", "030 123456", func(_ model.User, err error) { errs <- err })
	err := <-errs
	require.ErrorIs(t, err, ErrProfileNotLoaded)
	require.ErrorIs(t, err, collab.ErrRequestFailed)
	require.Equal(t, "Your profile is still loading. Please try again in a moment.", UserMessage(err))
	require.Empty(t, e.fake.Updates())

	// Showing the screen again loads the profile, and the save keeps the names.
	d.Bind(func(model.User) {})
	require.Eventually(t, func() bool { return d.User.Get().ID != "" }, waitFor, tick)
	d.Save("10115", "030 123456", func(_ model.User, err error) { errs <- err })
	require.NoError(t, <-errs)
	require.Equal(t, []collab.UserUpdate{{FirstName: "Max", LastName: "Muster", ZipCode: "10115", PhoneNumber: "030 123456"}}, e.fake.Updates())
}

func TestRequestConfirmationRejectsSecondSubmit(t *testing.T) {
	e := newEnv(t)
	f := e.seeker(t)
	e.loop.Do(func() { f.Selection.AddItem(model.Item{Article: &model.Article{ID: 1}, Name: "Reis", Amount: 1}) })
	c := NewRequestConfirmation(f)

	first, second := make(chan error, 1), make(chan error, 1)
	// Both submits land in the same loop turn, before the first call returns.
	e.loop.Do(func() {
		c.Submit(validForm(), func(_ model.HelpRequest, err error) { first <- err })
		c.Submit(validForm(), func(_ model.HelpRequest, err error) { second <- err })
	})

	require.ErrorIs(t, <-second, ErrSubmitInProgress)
	require.NoError(t, <-first)
	require.Len(t, e.fake.Submitted(), 1)
	require.Equal(t, "Your request is already being sent.", UserMessage(ErrSubmitInProgress))
}
