// Package api binds the collaborator interfaces to the nexd REST backend.
package api

// Routes served by the backend.
const (
	PathCurrentUser    = "/users/me"
	PathActiveList     = "/help-lists/active"
	PathListRequests   = "/help-lists/active/help-requests/"
	PathHelpRequests   = "/help-requests"
	PathArticles       = "/article/articles"
	PathUnits          = "/article/units"
	HeaderRequestID    = "X-Request-ID"
	QueryHelpListID    = "helpListId"
	QueryUserID        = "userId"
	QueryExcludeUserID = "excludeUserId"
	QueryZipCode       = "zipCode"
	QueryStatus        = "status"
	QueryLimit         = "limit"
	QueryStartsWith    = "startsWith"
	QueryLanguage      = "language"
	QueryOnlyVerified  = "onlyVerified"
)

// CreateArticleRequest is the body of POST /article/articles.
type CreateArticleRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
