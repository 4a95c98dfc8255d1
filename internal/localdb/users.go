package localdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"partflow/m/domain"
	"partflow/m/internal/store"
	"partflow/m/internal/util"
)

// EnsureUser creates the user with a hashed password unless the username is
// already taken. Existing users are left untouched.
func (r *Repository) EnsureUser(ctx context.Context, u domain.User) error {
	if strings.TrimSpace(u.Username) == "" || u.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	_, err := r.store.UserByUsername(ctx, u.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("unable to secure password: %w", err)
	}
	if u.ID == "" {
		u.ID = util.NewID("user")
	}
	if u.Role == "" {
		u.Role = "rep"
	}
	u.Password = string(hashed)
	return r.store.InsertUser(ctx, u)
}

// Authenticate checks a username and password and returns the user without
// its password hash.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := r.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	user.Password = ""
	return user, nil
}

func (r *Repository) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}
	user, err := r.Authenticate(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("unable to secure password: %w", err)
	}
	return r.store.UpdatePassword(ctx, user.ID, string(hashed))
}

// CurrentUser returns the signed in user of this device, or nil.
func (r *Repository) CurrentUser(ctx context.Context) (*domain.User, error) {
	var u domain.User
	ok, err := r.store.GetValue(ctx, store.KeyCurrentUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) SetCurrentUser(ctx context.Context, u domain.User) error {
	u.Password = ""
	return r.store.Tx(ctx, "set_current_user", func(tx *store.Tx) error {
		return tx.PutValue(store.KeyCurrentUser, u)
	})
}

func (r *Repository) ClearCurrentUser(ctx context.Context) error {
	return r.store.Tx(ctx, "clear_current_user", func(tx *store.Tx) error {
		return tx.DeleteValue(store.KeyCurrentUser)
	})
}
