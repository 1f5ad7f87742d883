package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/model"
)

func createTestKey(t *testing.T, s *Store, mutate func(*model.APIKey)) (raw string, key *model.APIKey) {
	t.Helper()
	raw, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key = &model.APIKey{
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Name:        "test key",
		Permissions: []string{"public.watch.read", "public.comments.*"},
	}
	if mutate != nil {
		mutate(key)
	}
	if err := s.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return raw, key
}

func TestAPIKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, key := createTestKey(t, s, nil)
	if key.ID == "" {
		t.Fatal("expected non-empty ID after create")
	}

	got, err := s.GetAPIKeyByHash(ctx, auth.HashKey(raw))
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ID != key.ID {
		t.Errorf("got key %q, want %q", got.ID, key.ID)
	}
	if len(got.Permissions) != 2 || got.Permissions[0] != "public.watch.read" {
		t.Errorf("permissions did not survive round trip: %v", got.Permissions)
	}

	got2, err := s.GetAPIKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got2.Name != "test key" {
		t.Errorf("got name %q", got2.Name)
	}

	keys, err := s.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d keys, want 1", len(keys))
	}

	if _, err := s.GetAPIKeyByHash(ctx, "no-such-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeyRevokeAndFreeze(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, key := createTestKey(t, s, nil)

	if err := s.SetAPIKeyFrozen(ctx, key.ID, true); err != nil {
		t.Fatalf("SetAPIKeyFrozen: %v", err)
	}
	got, _ := s.GetAPIKey(ctx, key.ID)
	if !got.Frozen {
		t.Error("key not frozen")
	}

	if err := s.SetAPIKeyFrozen(ctx, key.ID, false); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, key.ID)
	if got.Frozen {
		t.Error("key still frozen")
	}

	if err := s.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, key.ID)
	if !got.Revoked {
		t.Error("key not revoked")
	}

	// Revocation is logical; the row survives for audit references.
	keys, _ := s.ListAPIKeys(ctx)
	if len(keys) != 1 {
		t.Errorf("revoked key deleted, got %d keys", len(keys))
	}

	if err := s.RevokeAPIKey(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeyLastUsed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, key := createTestKey(t, s, nil)
	if key.LastUsedAt != nil {
		t.Error("fresh key has last_used_at")
	}

	before := time.Now().UTC().Add(-time.Second)
	if err := s.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed: %v", err)
	}
	got, _ := s.GetAPIKey(ctx, key.ID)
	if got.LastUsedAt == nil || got.LastUsedAt.Before(before) {
		t.Errorf("last_used_at not updated: %v", got.LastUsedAt)
	}

	if err := s.UpdateAPIKeyLastUsed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeyEmptyPermissions(t *testing.T) {
	s := newTestStore(t)

	_, key := createTestKey(t, s, func(k *model.APIKey) { k.Permissions = nil })
	got, err := s.GetAPIKey(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.Permissions == nil || len(got.Permissions) != 0 {
		t.Errorf("expected empty permission list, got %v", got.Permissions)
	}
}

func TestAPIKeyUserBinding(t *testing.T) {
	s := newTestStore(t)
	user := createTestUser(t, s, "alice@example.com", "alice")

	_, key := createTestKey(t, s, func(k *model.APIKey) { k.UserID = &user.ID })
	got, err := s.GetAPIKey(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.UserID == nil || *got.UserID != user.ID {
		t.Errorf("user binding lost: %v", got.UserID)
	}
}
