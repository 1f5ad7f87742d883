package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchdeck/watchdeck/internal/model"
)

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new user account. The ID, CreatedAt, and UpdatedAt
// fields are populated.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const q = `INSERT INTO users
		(id, email, username, password_hash, is_admin, is_active, last_login_at, created_at, updated_at)
		VALUES
		(:id, :email, :username, :password_hash, :is_admin, :is_active, :last_login_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.rebind("SELECT * FROM users WHERE email = ?"), email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserAdmin promotes or demotes a user.
func (s *Store) SetUserAdmin(ctx context.Context, id string, isAdmin bool) error {
	return s.updateUserFlag(ctx, "is_admin", id, isAdmin)
}

// SetUserActive enables or disables a user account.
func (s *Store) SetUserActive(ctx context.Context, id string, isActive bool) error {
	return s.updateUserFlag(ctx, "is_active", id, isActive)
}

func (s *Store) updateUserFlag(ctx context.Context, column, id string, val bool) error {
	now := time.Now().UTC()
	q := s.rebind("UPDATE users SET " + column + " = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, val, now, id)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %s rows affected: %w", column, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?"), now, now, id)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasAnyUser reports whether at least one user account exists. Used for
// first-run detection.
func (s *Store) HasAnyUser(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// ---------------------------------------------------------------------------
// Invites
// ---------------------------------------------------------------------------

// CreateInvite inserts a new invite code.
func (s *Store) CreateInvite(ctx context.Context, inv *model.Invite) error {
	if inv.ID == "" {
		inv.ID = uuid.Must(uuid.NewV7()).String()
	}
	inv.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO invites
		(id, code, created_by, used_by, expires_at, created_at, used_at)
		VALUES
		(:id, :code, :created_by, :used_by, :expires_at, :created_at, :used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, inv); err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// GetInviteByCode returns an invite by its code.
func (s *Store) GetInviteByCode(ctx context.Context, code string) (*model.Invite, error) {
	var inv model.Invite
	if err := s.db.GetContext(ctx, &inv, s.rebind("SELECT * FROM invites WHERE code = ?"), code); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invite by code: %w", err)
	}
	return &inv, nil
}

// ListInvites returns all invites, newest first.
func (s *Store) ListInvites(ctx context.Context) ([]model.Invite, error) {
	var invites []model.Invite
	if err := s.db.SelectContext(ctx, &invites, "SELECT * FROM invites ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// ConsumeInvite marks an unused invite as used by the given user. The WHERE
// clause guards against double redemption: a second racer affects zero rows
// and gets ErrNotFound.
func (s *Store) ConsumeInvite(ctx context.Context, id, userID string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE invites SET used_by = ?, used_at = ? WHERE id = ? AND used_by IS NULL"),
		userID, now, id)
	if err != nil {
		return fmt.Errorf("consume invite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume invite rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
