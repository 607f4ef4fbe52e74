package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nexd/nexd/internal/model"
)

// ArticleRepo handles the article catalog.
type ArticleRepo struct {
	db DBTX
}

func NewArticleRepo(db DBTX) *ArticleRepo { return &ArticleRepo{db: db} }

const articleColumns = `id, name, language, verified, unit_id_order`

// Upsert inserts or updates the article with the same name and language and
// returns its id.
func (r *ArticleRepo) Upsert(ctx context.Context, a model.Article) (int64, error) {
	order, err := encodeOrder(a.UnitIDOrder)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
	INSERT INTO articles(name, language, verified, unit_id_order)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(name, language) DO UPDATE SET
	 verified=excluded.verified,
	 unit_id_order=excluded.unit_id_order
	RETURNING id;
	`, a.Name, a.Language, a.Verified, order).Scan(&id)
	return id, err
}

// Create adds an unverified article, or returns the existing one with the
// same name and language.
func (r *ArticleRepo) Create(ctx context.Context, name, language string) (model.Article, error) {
	if _, err := r.db.ExecContext(ctx, `
	INSERT INTO articles(name, language) VALUES (?, ?)
	ON CONFLICT(name, language) DO NOTHING`, name, language); err != nil {
		return model.Article{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE name = ? AND language = ?`, name, language)
	return scanArticle(row)
}

// Get returns nil, nil when the article does not exist.
func (r *ArticleRepo) Get(ctx context.Context, id int64) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns the catalog entries matching f, ordered by name. Prefix
// matching is case-insensitive.
func (r *ArticleRepo) List(ctx context.Context, f ArticleFilters) ([]model.Article, error) {
	var where []string
	var args []any
	if f.Language != "" {
		where = append(where, "language = ?")
		args = append(args, f.Language)
	}
	if f.Prefix != "" {
		where = append(where, `name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(f.Prefix)+"%")
	}
	if f.OnlyVerified {
		where = append(where, "verified = 1")
	}
	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name COLLATE NOCASE"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (model.Article, error) {
	var (
		a     model.Article
		order string
	)
	if err := s.Scan(&a.ID, &a.Name, &a.Language, &a.Verified, &order); err != nil {
		return model.Article{}, err
	}
	if order != "" {
		if err := json.Unmarshal([]byte(order), &a.UnitIDOrder); err != nil {
			return model.Article{}, fmt.Errorf("article %d unit order: %w", a.ID, err)
		}
	}
	if len(a.UnitIDOrder) == 0 {
		a.UnitIDOrder = nil
	}
	return a, nil
}

func encodeOrder(order []int64) (string, error) {
	if len(order) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(order)
	return string(b), err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
