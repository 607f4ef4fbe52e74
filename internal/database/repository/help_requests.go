package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/nexd/nexd/internal/model"
)

// HelpRequestRepo handles help requests and their articles.
type HelpRequestRepo struct {
	db DBTX
}

func NewHelpRequestRepo(db DBTX) *HelpRequestRepo { return &HelpRequestRepo{db: db} }

const helpRequestColumns = `id, requester_id, status, first_name, last_name, street, number, zip_code,
 city, phone_number, additional_request, delivery_comment, help_list_id, created_at`

// Insert stores req with its articles and returns the new id. Run it in a
// transaction.
func (r *HelpRequestRepo) Insert(ctx context.Context, req model.HelpRequest) (int64, error) {
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
	INSERT INTO help_requests(
	 requester_id, status, first_name, last_name, street, number, zip_code, city,
	 phone_number, additional_request, delivery_comment, help_list_id, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id;
	`,
		req.RequesterID, req.Status, req.FirstName, req.LastName, req.Street, req.Number, req.ZipCode, req.City,
		req.PhoneNumber, req.AdditionalRequest, req.DeliveryComment, req.HelpListID, req.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, a := range req.Articles {
		if _, err := r.db.ExecContext(ctx, `
		INSERT INTO help_request_articles(help_request_id, article_id, article_count, unit_id, done)
		VALUES(?, ?, ?, ?, ?)`, id, a.ArticleID, a.ArticleCount, a.UnitID, a.Done); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Get returns nil, nil when the request does not exist.
func (r *HelpRequestRepo) Get(ctx context.Context, id int64) (*model.HelpRequest, error) {
	req, err := scanHelpRequest(r.db.QueryRowContext(ctx, `SELECT `+helpRequestColumns+` FROM help_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	articles, err := r.fetchArticles(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	req.Articles = articles[id]
	return &req, nil
}

func (r *HelpRequestRepo) List(ctx context.Context, f HelpRequestFilters) ([]model.HelpRequest, error) {
	var where []string
	var args []any

	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.ExcludeRequesterID != "" {
		where = append(where, "requester_id <> ?")
		args = append(args, f.ExcludeRequesterID)
	}
	if len(f.ZipCodes) > 0 {
		where = append(where, "zip_code IN ("+placeholders(len(f.ZipCodes))+")")
		for _, z := range f.ZipCodes {
			args = append(args, z)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.HelpListID != nil {
		where = append(where, "help_list_id = ?")
		args = append(args, *f.HelpListID)
	}

	query := "SELECT " + helpRequestColumns + " FROM help_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := []model.HelpRequest{}
	for rows.Next() {
		req, err := scanHelpRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	articles, err := r.fetchArticles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Articles = articles[out[i].ID]
	}
	return out, nil
}

// Assign puts a pending, unassigned request on list listID and marks it
// ongoing. It reports false when the request was not available.
func (r *HelpRequestRepo) Assign(ctx context.Context, id, listID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE help_requests SET help_list_id = ?, status = ?
	WHERE id = ? AND status = ? AND help_list_id IS NULL`,
		listID, model.StatusOngoing, id, model.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Release takes an ongoing request off list listID and makes it pending
// again. It reports false when the request was not on that list.
func (r *HelpRequestRepo) Release(ctx context.Context, id, listID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE help_requests SET help_list_id = NULL, status = ?
	WHERE id = ? AND help_list_id = ? AND status = ?`,
		model.StatusPending, id, listID, model.StatusOngoing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *HelpRequestRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM help_requests`).Scan(&n)
	return n, err
}

func (r *HelpRequestRepo) fetchArticles(ctx context.Context, ids []int64) (map[int64][]model.HelpRequestArticle, error) {
	out := make(map[int64][]model.HelpRequestArticle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT hra.help_request_id, hra.article_id, a.name, hra.article_count, hra.unit_id, hra.done
	FROM help_request_articles hra
	JOIN articles a ON a.id = hra.article_id
	WHERE hra.help_request_id IN (`+placeholders(len(ids))+`)
	ORDER BY hra.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			reqID int64
			a     model.HelpRequestArticle
		)
		if err := rows.Scan(&reqID, &a.ArticleID, &a.ArticleName, &a.ArticleCount, &a.UnitID, &a.Done); err != nil {
			return nil, err
		}
		out[reqID] = append(out[reqID], a)
	}
	return out, rows.Err()
}

func scanHelpRequest(s scanner) (model.HelpRequest, error) {
	var req model.HelpRequest
	err := s.Scan(&req.ID, &req.RequesterID, &req.Status, &req.FirstName, &req.LastName, &req.Street,
		&req.Number, &req.ZipCode, &req.City, &req.PhoneNumber, &req.AdditionalRequest,
		&req.DeliveryComment, &req.HelpListID, &req.CreatedAt)
	return req, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
