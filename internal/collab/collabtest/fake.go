// Package collabtest provides an in-memory backend implementing every
// collaborator interface, for tests.
package collabtest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/model"
)

// ApplyCall records one ApplyToWorkflow invocation.
type ApplyCall struct {
	RequestID int64
	Snapshot  collab.WorkflowSnapshot
	Op        collab.ApplyOp
}

// Fake behaves like a tiny backend. Hooks override the default behavior of
// the matching call; *Err fields make the call fail.
type Fake struct {
	mu sync.Mutex

	User       model.User
	UserErr    error
	ActiveList *model.HelpList
	ListErr    error
	Requests   []model.HelpRequest
	OpenErr    error
	Articles   []model.Article
	SearchErr  error
	Units      []model.Unit
	UnitsErr   error
	ApplyErr   error
	SubmitErr  error

	OnSearch func(ctx context.Context, q collab.ArticleQuery) ([]model.Article, error)
	OnOpen   func(ctx context.Context, q collab.OpenRequestsQuery) ([]model.HelpRequest, error)
	OnUnits  func(ctx context.Context, language string) ([]model.Unit, error)

	openCalls   []collab.OpenRequestsQuery
	searchCalls []collab.ArticleQuery
	applyCalls  []ApplyCall
	submitted   []collab.NewHelpRequest
	created     []string
	updates     []collab.UserUpdate
	unitsCalls  int
	listCalls   int
	userCalls   int
	nextID      int64
}

// New returns a Fake whose current user is "me".
func New() *Fake {
	return &Fake{User: model.User{ID: collab.CurrentUserID, FirstName: "Max", LastName: "Muster"}, nextID: 1000}
}

// Services exposes f as every collaborator.
func (f *Fake) Services() collab.Services {
	return collab.Services{Users: f, HelpLists: f, HelpRequests: f, Workflow: f, Articles: f}
}

func (f *Fake) FindCurrentUser(ctx context.Context) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.UserErr != nil {
		return model.User{}, f.UserErr
	}
	return f.User, nil
}

func (f *Fake) UpdateCurrentUser(ctx context.Context, u collab.UserUpdate) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	if f.UserErr != nil {
		return model.User{}, f.UserErr
	}
	f.User.FirstName, f.User.LastName = u.FirstName, u.LastName
	f.User.ZipCode, f.User.PhoneNumber = u.ZipCode, u.PhoneNumber
	return f.User, nil
}

func (f *Fake) ActiveHelpList(ctx context.Context) (model.HelpList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.ListErr != nil {
		return model.HelpList{}, f.ListErr
	}
	if f.ActiveList == nil {
		return model.HelpList{}, &collab.Error{Op: "ActiveHelpList", Kind: collab.ErrNotFound, Status: 404}
	}
	out := *f.ActiveList
	out.HelpRequests = slices.Clone(f.ActiveList.HelpRequests)
	return out, nil
}

func (f *Fake) OpenHelpRequests(ctx context.Context, q collab.OpenRequestsQuery) ([]model.HelpRequest, error) {
	f.mu.Lock()
	f.openCalls = append(f.openCalls, q)
	hook := f.OnOpen
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, q)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	out := []model.HelpRequest{}
	for _, r := range f.Requests {
		if q.ExcludeUserID && r.RequesterID == f.User.ID {
			continue
		}
		if len(q.Status) > 0 && !slices.Contains(q.Status, r.Status) {
			continue
		}
		if len(q.ZipCodes) > 0 && !slices.Contains(q.ZipCodes, r.ZipCode) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) SubmitHelpRequest(ctx context.Context, req collab.NewHelpRequest) (model.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.SubmitErr != nil {
		return model.HelpRequest{}, f.SubmitErr
	}
	f.nextID++
	created := model.HelpRequest{
		ID:          f.nextID,
		RequesterID: f.User.ID,
		Status:      model.StatusPending,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		ZipCode:     req.ZipCode,
		City:        req.City,
	}
	for _, a := range req.Articles {
		created.Articles = append(created.Articles, model.HelpRequestArticle{ArticleID: a.ArticleID, ArticleCount: a.ArticleCount, UnitID: a.UnitID})
	}
	f.Requests = append(f.Requests, created)
	return created, nil
}

func (f *Fake) ApplyToWorkflow(ctx context.Context, req model.HelpRequest, wf collab.WorkflowSnapshot, op collab.ApplyOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls = append(f.applyCalls, ApplyCall{RequestID: req.ID, Snapshot: wf, Op: op})
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	switch op {
	case collab.ApplyAdd:
		idx := slices.IndexFunc(f.Requests, func(r model.HelpRequest) bool { return r.ID == req.ID })
		if idx < 0 || f.Requests[idx].Status != model.StatusPending {
			return &collab.Error{Op: "ApplyToWorkflow", Kind: collab.ErrConflict, Status: 409}
		}
		if f.ActiveList == nil {
			f.ActiveList = &model.HelpList{ID: 1, OwnerID: f.User.ID, Status: model.ListActive}
		}
		listID := f.ActiveList.ID
		f.Requests[idx].Status = model.StatusOngoing
		f.Requests[idx].HelpListID = &listID
		f.ActiveList.HelpRequests = append(f.ActiveList.HelpRequests, f.Requests[idx])
	case collab.ApplyRemove:
		if f.ActiveList == nil {
			return &collab.Error{Op: "ApplyToWorkflow", Kind: collab.ErrConflict, Status: 409}
		}
		idx := slices.IndexFunc(f.ActiveList.HelpRequests, func(r model.HelpRequest) bool { return r.ID == req.ID })
		if idx < 0 {
			return &collab.Error{Op: "ApplyToWorkflow", Kind: collab.ErrConflict, Status: 409}
		}
		f.ActiveList.HelpRequests = slices.Delete(f.ActiveList.HelpRequests, idx, idx+1)
		for i := range f.Requests {
			if f.Requests[i].ID == req.ID {
				f.Requests[i].Status = model.StatusPending
				f.Requests[i].HelpListID = nil
			}
		}
	}
	return nil
}

func (f *Fake) SearchArticles(ctx context.Context, q collab.ArticleQuery) ([]model.Article, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, q)
	hook := f.OnSearch
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, q)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	out := []model.Article{}
	prefix := strings.ToLower(q.StartsWith)
	for _, a := range f.Articles {
		if q.OnlyVerified && !a.Verified {
			continue
		}
		if strings.HasPrefix(strings.ToLower(a.Name), prefix) {
			out = append(out, a)
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) ListUnits(ctx context.Context, language string) ([]model.Unit, error) {
	f.mu.Lock()
	f.unitsCalls++
	hook := f.OnUnits
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, language)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnitsErr != nil {
		return nil, f.UnitsErr
	}
	return slices.Clone(f.Units), nil
}

func (f *Fake) CreateArticle(ctx context.Context, name, language string) (model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	f.nextID++
	a := model.Article{ID: f.nextID, Name: name, Language: language}
	f.Articles = append(f.Articles, a)
	return a, nil
}

func (f *Fake) OpenCalls() []collab.OpenRequestsQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.openCalls)
}

func (f *Fake) SearchCalls() []collab.ArticleQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.searchCalls)
}

func (f *Fake) ApplyCalls() []ApplyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.applyCalls)
}

func (f *Fake) Submitted() []collab.NewHelpRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.submitted)
}

func (f *Fake) CreatedArticles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.created)
}

func (f *Fake) Updates() []collab.UserUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

func (f *Fake) UnitsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unitsCalls
}

func (f *Fake) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *Fake) UserCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls
}

// Set runs fn with the fake locked, for changing its data mid-test.
func (f *Fake) Set(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
