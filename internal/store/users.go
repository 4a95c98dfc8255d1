package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"partflow/m/domain"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

func (s *Store) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `SELECT id, username, password, full_name, role, created_at FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user %s: %w", username, err)
	}
	return user, nil
}

// InsertUser stores a user whose password is already hashed.
func (s *Store) InsertUser(ctx context.Context, user domain.User) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (id, username, password, full_name, role)
        VALUES (:id, :username, :password, :full_name, :role)`, user)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.Username, err)
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hashed string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE id = ?`, hashed, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
