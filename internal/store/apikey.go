package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchdeck/watchdeck/internal/model"
)

// apiKeyRow is a flat struct that maps 1:1 to the api_keys table columns.
// The permissions_json column stores the JSON-encoded permission list.
type apiKeyRow struct {
	ID              string     `db:"id"`
	KeyHash         string     `db:"key_hash"`
	KeyPrefix       string     `db:"key_prefix"`
	Name            string     `db:"name"`
	PermissionsJSON string     `db:"permissions_json"`
	UserID          *string    `db:"user_id"`
	Revoked         bool       `db:"revoked"`
	Frozen          bool       `db:"frozen"`
	ExpiresAt       *time.Time `db:"expires_at"`
	CreatedAt       time.Time  `db:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return apiKeyRow{
		ID:              k.ID,
		KeyHash:         k.KeyHash,
		KeyPrefix:       k.KeyPrefix,
		Name:            k.Name,
		PermissionsJSON: string(permsJSON),
		UserID:          k.UserID,
		Revoked:         k.Revoked,
		Frozen:          k.Frozen,
		ExpiresAt:       k.ExpiresAt,
		CreatedAt:       k.CreatedAt,
		LastUsedAt:      k.LastUsedAt,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	var perms []string
	if r.PermissionsJSON != "" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	if perms == nil {
		perms = []string{}
	}
	return model.APIKey{
		ID:          r.ID,
		KeyHash:     r.KeyHash,
		KeyPrefix:   r.KeyPrefix,
		Name:        r.Name,
		Permissions: perms,
		UserID:      r.UserID,
		Revoked:     r.Revoked,
		Frozen:      r.Frozen,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		LastUsedAt:  r.LastUsedAt,
	}, nil
}

// CreateAPIKey inserts a new API key record. The key_hash must already be
// set (use auth.HashKey). The ID and CreatedAt fields are populated.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.Must(uuid.NewV7()).String()
	}
	key.CreatedAt = time.Now().UTC()

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(id, key_hash, key_prefix, name, permissions_json, user_id, revoked, frozen, expires_at, created_at, last_used_at)
		VALUES
		(:id, :key_hash, :key_prefix, :name, :permissions_json, :user_id, :revoked, :frozen, :expires_at, :created_at, :last_used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM api_keys WHERE key_hash = ?"), hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetAPIKey looks up an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as revoked. Keys are retired logically, not
// deleted, so request-log references stay resolvable.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	return s.setAPIKeyFlag(ctx, "revoked", id, true)
}

// SetAPIKeyFrozen freezes or unfreezes an API key.
func (s *Store) SetAPIKeyFrozen(ctx context.Context, id string, frozen bool) error {
	return s.setAPIKeyFlag(ctx, "frozen", id, frozen)
}

func (s *Store) setAPIKeyFlag(ctx context.Context, column, id string, val bool) error {
	q := s.rebind("UPDATE api_keys SET " + column + " = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, val, id)
	if err != nil {
		return fmt.Errorf("update api key %s: %w", column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key %s rows affected: %w", column, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used_at timestamp for an API key. The
// update is best-effort bookkeeping; last write wins under concurrency.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), now, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
