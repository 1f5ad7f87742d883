package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/watchdeck/watchdeck/internal/model"
)

// fakeStore is an in-memory Store for auth tests.
type fakeStore struct {
	keysByHash map[string]*model.APIKey
	users      map[string]*model.User // by email
	usersByID  map[string]*model.User

	lastUsed  chan string
	lastLogin chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keysByHash: make(map[string]*model.APIKey),
		users:      make(map[string]*model.User),
		usersByID:  make(map[string]*model.User),
		lastUsed:   make(chan string, 8),
		lastLogin:  make(chan string, 8),
	}
}

func (f *fakeStore) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	if k, ok := f.keysByHash[hash]; ok {
		return k, nil
	}
	return nil, errNotFound
}

func (f *fakeStore) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	f.lastUsed <- id
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, errNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := f.usersByID[id]; ok {
		return u, nil
	}
	return nil, errNotFound
}

func (f *fakeStore) UpdateUserLastLogin(ctx context.Context, id string) error {
	f.lastLogin <- id
	return nil
}

var errNotFound = errors.New("not found")

func newTestService(store Store) *Service {
	return New(store, "test-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (f *fakeStore) addKey(t *testing.T, mutate func(*model.APIKey)) (raw string, key *model.APIKey) {
	t.Helper()
	raw, hash, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key = &model.APIKey{
		ID:          "key-" + prefix,
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Name:        "test key",
		Permissions: []string{"public.watch.read"},
		CreatedAt:   time.Now(),
	}
	if mutate != nil {
		mutate(key)
	}
	f.keysByHash[hash] = key
	return raw, key
}

func TestGenerateKey(t *testing.T) {
	raw, hash, prefix, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if !strings.HasPrefix(raw, KeyPrefix) {
		t.Errorf("raw key %q does not carry prefix %q", raw, KeyPrefix)
	}
	if !strings.HasPrefix(raw, prefix) {
		t.Errorf("identifying prefix %q is not a prefix of the raw key", prefix)
	}
	if hash != HashKey(raw) {
		t.Error("returned hash does not match HashKey(raw)")
	}
	if raw2, _, _, _ := GenerateKey(); raw2 == raw {
		t.Error("two generated keys are identical")
	}
}

func TestVerifyKey(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		mutate func(*model.APIKey)
		want   bool
	}{
		{"valid key", nil, true},
		{"valid key with expiry ahead", func(k *model.APIKey) { k.ExpiresAt = &future }, true},
		{"revoked", func(k *model.APIKey) { k.Revoked = true }, false},
		{"frozen", func(k *model.APIKey) { k.Frozen = true }, false},
		{"expired", func(k *model.APIKey) { k.ExpiresAt = &past }, false},
		{"revoked and frozen", func(k *model.APIKey) { k.Revoked = true; k.Frozen = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store)
			raw, key := store.addKey(t, tt.mutate)

			got := svc.VerifyKey(context.Background(), raw)
			if tt.want && got == nil {
				t.Fatal("expected key, got nil")
			}
			if !tt.want && got != nil {
				t.Fatal("expected nil, got key")
			}
			if got != nil && got.ID != key.ID {
				t.Errorf("got key %q, want %q", got.ID, key.ID)
			}
		})
	}
}

func TestVerifyKeyUnknownAndMalformed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	store.addKey(t, nil)

	for _, raw := range []string{
		"",
		"wd_",
		"wd_deadbeef",
		"not-a-key",
		"sk_0123456789abcdef",
		KeyPrefix + strings.Repeat("ff", 32), // well-formed but not stored
	} {
		if got := svc.VerifyKey(context.Background(), raw); got != nil {
			t.Errorf("VerifyKey(%q) = %v, want nil", raw, got)
		}
	}
}

func TestVerifyKeyUpdatesLastUsed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	raw, key := store.addKey(t, nil)

	if svc.VerifyKey(context.Background(), raw) == nil {
		t.Fatal("expected key")
	}

	select {
	case id := <-store.lastUsed:
		if id != key.ID {
			t.Errorf("last-used update for %q, want %q", id, key.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("last-used update never arrived")
	}
}

func TestVerifyKeyFailureSkipsLastUsed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	raw, _ := store.addKey(t, func(k *model.APIKey) { k.Revoked = true })

	if svc.VerifyKey(context.Background(), raw) != nil {
		t.Fatal("expected nil for revoked key")
	}

	select {
	case id := <-store.lastUsed:
		t.Errorf("unexpected last-used update for %q", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.users["user@example.com"] = &model.User{
		ID:           "u1",
		Email:        "user@example.com",
		PasswordHash: hash,
		IsActive:     true,
	}
	disabledHash, _ := HashPassword("secret-password")
	store.users["gone@example.com"] = &model.User{
		ID:           "u2",
		Email:        "gone@example.com",
		PasswordHash: disabledHash,
		IsActive:     false,
	}

	t.Run("success", func(t *testing.T) {
		user, err := svc.Login(context.Background(), "user@example.com", "correct horse battery")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if user.ID != "u1" {
			t.Errorf("got user %q, want u1", user.ID)
		}
		select {
		case <-store.lastLogin:
		case <-time.After(2 * time.Second):
			t.Fatal("last-login update never arrived")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(context.Background(), "user@example.com", "nope"); err != ErrInvalidCredentials {
			t.Errorf("got %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.Login(context.Background(), "nobody@example.com", "whatever"); err != ErrInvalidCredentials {
			t.Errorf("got %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("disabled account", func(t *testing.T) {
		if _, err := svc.Login(context.Background(), "gone@example.com", "secret-password"); err != ErrAccountDisabled {
			t.Errorf("got %v, want ErrAccountDisabled", err)
		}
	})
}

func TestSessionRoundTrip(t *testing.T) {
	svc := newTestService(newFakeStore())

	token, expires, err := svc.IssueSession("u1", true, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if time.Until(expires) < 50*time.Minute {
		t.Errorf("expiry %v too soon", expires)
	}

	claims, err := svc.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.UserID != "u1" || !claims.IsAdmin {
		t.Errorf("claims = %+v, want u1/admin", claims)
	}
}

func TestValidateSessionRejectsTampering(t *testing.T) {
	svc := newTestService(newFakeStore())
	other := New(newFakeStore(), "different-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))

	token, _, err := other.IssueSession("u1", false, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := svc.ValidateSession(token); err == nil {
		t.Error("expected rejection of token signed with another secret")
	}
	if _, err := svc.ValidateSession("garbage.token.here"); err == nil {
		t.Error("expected rejection of malformed token")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{"bearer token", "Bearer wd_abc123", "wd_abc123", true},
		{"missing header", "", "", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", false},
		{"bearer no token", "Bearer ", "", false},
		{"bare word", "wd_abc123", "", false},
		{"lowercase scheme", "bearer wd_abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := ExtractBearer(r)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractBearer = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
