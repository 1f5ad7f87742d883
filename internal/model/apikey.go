package model

import "time"

// APIKey represents a scoped API key used to authenticate service consumers.
// The raw key is never stored; only a SHA-256 hash and a short prefix for
// identification are persisted.
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	KeyHash     string     `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	KeyPrefix   string     `json:"key_prefix" db:"key_prefix"` // First chars for identification
	Name        string     `json:"name" db:"name"`
	Permissions []string   `json:"permissions"`
	UserID      *string    `json:"user_id,omitempty" db:"user_id"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	Frozen      bool       `json:"frozen" db:"frozen"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// IsExpired reports whether the key's expiry time has passed. Keys without
// an expiry never expire.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Usable reports whether the key may authorize requests at all. A revoked,
// frozen, or expired key never authorizes a request regardless of its
// permission content.
func (k *APIKey) Usable(now time.Time) bool {
	return !k.Revoked && !k.Frozen && !k.IsExpired(now)
}

// CreateAPIKeyRequest is the request body for creating an API key.
type CreateAPIKeyRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
	UserID      string   `json:"user_id,omitempty"`
	ExpiresIn   string   `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
}

// CreateAPIKeyResponse is returned when creating an API key. The raw key is
// only shown once.
type CreateAPIKeyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"` // Only returned on creation
	KeyPrefix   string    `json:"key_prefix"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}
