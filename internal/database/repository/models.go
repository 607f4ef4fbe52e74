package repository

import (
	"context"
	"database/sql"

	"github.com/nexd/nexd/internal/model"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, so every repo can run inside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// HelpRequestFilters defines list filters. Empty slices do not constrain.
type HelpRequestFilters struct {
	RequesterID        string
	ExcludeRequesterID string
	ZipCodes           []string
	Statuses           []model.RequestStatus
	HelpListID         *int64
}

// ArticleFilters selects catalog entries.
type ArticleFilters struct {
	Language     string
	Prefix       string
	OnlyVerified bool
}
