package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nexd/nexd/internal/model"
)

// UserRepo handles users.
type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO users(id, first_name, last_name, street, number, zip_code, city, phone_number)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 first_name=excluded.first_name,
	 last_name=excluded.last_name,
	 street=excluded.street,
	 number=excluded.number,
	 zip_code=excluded.zip_code,
	 city=excluded.city,
	 phone_number=excluded.phone_number;
	`, u.ID, u.FirstName, u.LastName, u.Street, u.Number, u.ZipCode, u.City, u.PhoneNumber)
	return err
}

// Get returns nil, nil when the user does not exist.
func (r *UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `
	SELECT id, first_name, last_name, street, number, zip_code, city, phone_number
	FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Street, &u.Number, &u.ZipCode, &u.City, &u.PhoneNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile writes the onboarding fields; empty names keep the stored
// ones. It reports false when the user does not exist.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, firstName, lastName, zip, phone string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE users SET
		first_name = COALESCE(NULLIF(?, ''), first_name),
		last_name = COALESCE(NULLIF(?, ''), last_name),
		zip_code = ?, phone_number = ?
	WHERE id = ?`, firstName, lastName, zip, phone, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
