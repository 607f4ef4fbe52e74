// Package collab declares the network services the client core consumes.
//
// The core only depends on these interfaces; internal/api binds them to
// HTTP and collabtest provides in-memory fakes.
package collab

import (
	"context"

	"github.com/nexd/nexd/internal/model"
)

// CurrentUserID is the alias the backend resolves to the caller.
const CurrentUserID = "me"

type Users interface {
	FindCurrentUser(ctx context.Context) (model.User, error)
	UpdateCurrentUser(ctx context.Context, update UserUpdate) (model.User, error)
}

type HelpLists interface {
	// ActiveHelpList fails with ErrNotFound when the caller has no list yet.
	ActiveHelpList(ctx context.Context) (model.HelpList, error)
}

type HelpRequests interface {
	OpenHelpRequests(ctx context.Context, q OpenRequestsQuery) ([]model.HelpRequest, error)
	SubmitHelpRequest(ctx context.Context, req NewHelpRequest) (model.HelpRequest, error)
}

type Workflow interface {
	// ApplyToWorkflow adds the request to, or removes it from, the caller's
	// active list. Fails with ErrConflict if another helper got there first.
	ApplyToWorkflow(ctx context.Context, req model.HelpRequest, wf WorkflowSnapshot, op ApplyOp) error
}

type Articles interface {
	SearchArticles(ctx context.Context, q ArticleQuery) ([]model.Article, error)
	ListUnits(ctx context.Context, language string) ([]model.Unit, error)
	CreateArticle(ctx context.Context, name, language string) (model.Article, error)
}

// Services bundles every collaborator a flow may need.
type Services struct {
	Users        Users
	HelpLists    HelpLists
	HelpRequests HelpRequests
	Workflow     Workflow
	Articles     Articles
}

// OpenRequestsQuery selects candidate requests for a helper.
type OpenRequestsQuery struct {
	UserID        string
	ExcludeUserID bool
	ZipCodes      []string
	Status        []model.RequestStatus
}

// ArticleQuery drives autocomplete lookups.
type ArticleQuery struct {
	Limit        int
	StartsWith   string
	Language     string
	OnlyVerified bool
}

type ApplyOp int

const (
	ApplyAdd ApplyOp = iota
	ApplyRemove
)

func (op ApplyOp) String() string {
	if op == ApplyRemove {
		return "remove"
	}
	return "add"
}

// WorkflowSnapshot is the part of the workflow state a mutation is issued
// against.
type WorkflowSnapshot struct {
	ActiveListID *int64
}

// UserUpdate is the onboarding profile update.
type UserUpdate struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	ZipCode     string `json:"zipCode"`
	PhoneNumber string `json:"phoneNumber"`
}

// RequestArticle is one submitted line.
type RequestArticle struct {
	ArticleID    int64  `json:"articleId"`
	ArticleCount int64  `json:"articleCount"`
	UnitID       *int64 `json:"unitId,omitempty"`
}

// NewHelpRequest is the payload of SubmitHelpRequest.
type NewHelpRequest struct {
	FirstName         string           `json:"firstName"`
	LastName          string           `json:"lastName"`
	Street            string           `json:"street"`
	Number            string           `json:"number"`
	ZipCode           string           `json:"zipCode"`
	City              string           `json:"city"`
	PhoneNumber       string           `json:"phoneNumber,omitempty"`
	AdditionalRequest string           `json:"additionalRequest,omitempty"`
	DeliveryComment   string           `json:"deliveryComment,omitempty"`
	Articles          []RequestArticle `json:"articles"`
}
