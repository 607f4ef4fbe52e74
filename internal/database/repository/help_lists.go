package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nexd/nexd/internal/model"
)

// HelpListRepo handles helper lists.
type HelpListRepo struct {
	db DBTX
}

func NewHelpListRepo(db DBTX) *HelpListRepo { return &HelpListRepo{db: db} }

// Active returns the owner's active list without its requests, or nil, nil
// when there is none.
func (r *HelpListRepo) Active(ctx context.Context, ownerID string) (*model.HelpList, error) {
	var l model.HelpList
	err := r.db.QueryRowContext(ctx, `
	SELECT id, owner_id, status FROM help_lists
	WHERE owner_id = ? AND status = ?`, ownerID, model.ListActive).
		Scan(&l.ID, &l.OwnerID, &l.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// EnsureActive returns the owner's active list id, creating the list on
// first use.
func (r *HelpListRepo) EnsureActive(ctx context.Context, ownerID string) (int64, error) {
	l, err := r.Active(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if l != nil {
		return l.ID, nil
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
	INSERT INTO help_lists(owner_id, status) VALUES (?, ?)
	RETURNING id`, ownerID, model.ListActive).Scan(&id)
	return id, err
}
