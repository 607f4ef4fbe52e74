package repository

import (
	"context"

	"github.com/nexd/nexd/internal/model"
)

// UnitRepo handles the unit catalog.
type UnitRepo struct {
	db DBTX
}

func NewUnitRepo(db DBTX) *UnitRepo { return &UnitRepo{db: db} }

func (r *UnitRepo) Upsert(ctx context.Context, u model.Unit) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO units(id, name, name_short, language)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 name_short=excluded.name_short,
	 language=excluded.language;
	`, u.ID, u.Name, u.NameShort, u.Language)
	return err
}

// List returns the units of language, or every unit for "".
func (r *UnitRepo) List(ctx context.Context, language string) ([]model.Unit, error) {
	query := `SELECT id, name, name_short, language FROM units`
	var args []any
	if language != "" {
		query += ` WHERE language = ?`
		args = append(args, language)
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Unit{}
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.NameShort, &u.Language); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UnitRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&n)
	return n, err
}
