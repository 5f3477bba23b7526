package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var userColumns = []string{"id", "email", "name", "surname", "role", "status", "created_at"}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Surname, &u.Role, &u.Status, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, or nil if none exists
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row, err := d.queryRow(ctx, sq.Select(userColumns...).From("users").Where(sq.Eq{"email": email}))
	if err != nil {
		return nil, err
	}

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	return u, nil
}

// CreateUser inserts a user, assigning an ID and creation time when unset
func (d *DB) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	err := d.exec(ctx, sq.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Email, u.Name, u.Surname, u.Role, u.Status, u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

// EnsureUser returns the user with u.Email, creating it from u if absent
func (d *DB) EnsureUser(ctx context.Context, u *User) (*User, bool, error) {
	existing, err := d.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := d.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
