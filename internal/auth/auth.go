package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/watchdeck/watchdeck/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
)

// KeyPrefix is prepended to every generated raw key so bearer tokens can be
// told apart from JWT session tokens without a parse attempt.
const KeyPrefix = "wd_"

// dummyHash is compared against when a login email is unknown, keeping that
// path as slow as a real password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("watchdeck-timing-pad"), bcrypt.DefaultCost)

// Store is the subset of the persistence layer the auth service needs.
type Store interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserLastLogin(ctx context.Context, id string) error
}

// SessionClaims is the payload of a user session token.
type SessionClaims struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Service authenticates API keys and user sessions.
type Service struct {
	store     Store
	jwtSecret []byte
	logger    *slog.Logger
}

// New creates an auth Service backed by the given store.
func New(store Store, jwtSecret string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// ExtractBearer pulls the opaque token out of the Authorization header.
// A missing header or a non-Bearer scheme yields ok=false; that is "no
// credential presented", not an error.
func ExtractBearer(r *http.Request) (token string, ok bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// VerifyKey checks a presented raw key against stored key hashes and returns
// the matching record, or nil if the key is unknown, revoked, frozen, or
// expired. Every failure path degrades to nil so callers can fall back to
// session auth; the caller is never told why verification failed.
//
// Lookup is a two-phase check: the SHA-256 digest indexes the row, then the
// stored hash is compared in constant time. On success the last-used
// timestamp is updated in a detached goroutine; a failed update never fails
// the request.
func (s *Service) VerifyKey(ctx context.Context, rawKey string) *model.APIKey {
	if !strings.HasPrefix(rawKey, KeyPrefix) {
		return nil
	}

	hash := HashKey(rawKey)
	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		s.logger.Debug("api key lookup failed", "error", err)
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil
	}

	if !key.Usable(time.Now()) {
		return nil
	}

	// Fire and forget; detached from the request context so a client
	// disconnect cannot cancel the write.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
			s.logger.Debug("update api key last used", "key_id", key.ID, "error", err)
		}
	}()

	return key
}

// Login verifies email/password credentials and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a bcrypt comparison so unknown emails cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.UpdateUserLastLogin(ctx, user.ID); err != nil {
			s.logger.Debug("update user last login", "user_id", user.ID, "error", err)
		}
	}()

	return user, nil
}

// IssueSession creates a signed session token for the given user.
func (s *Service) IssueSession(userID string, isAdmin bool, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := SessionClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "watchdeck",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateSession verifies a session token and returns its claims.
func (s *Service) ValidateSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateKey mints a new raw API key. The raw key is shown to the caller
// once; only the hash and the identifying prefix are stored.
func GenerateKey() (raw, hash, prefix string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", err
	}
	raw = KeyPrefix + hex.EncodeToString(randomBytes)
	hash = HashKey(raw)
	prefix = raw[:len(KeyPrefix)+8]
	return raw, hash, prefix, nil
}

// HashKey returns the hex-encoded SHA-256 digest of a raw key. API keys are
// high-entropy random strings, so a fast unsalted digest is safe to index.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
