package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/model"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal represents the authenticated identity making the request.
// Exactly one of KeyID or UserID is set for API-key and session callers
// respectively.
type Principal struct {
	Type        string // "api_key" or "session"
	KeyID       string
	KeyName     string
	Permissions []string
	UserID      string
	IsAdmin     bool
}

// Identity returns the string the rate limiter and request log attribute
// this caller to.
func (p *Principal) Identity() string {
	if p.KeyID != "" {
		return p.KeyID
	}
	return p.UserID
}

// Authenticate resolves the caller's identity from the Authorization header
// and attaches a Principal to the request context. Bearer tokens carrying
// the API-key prefix are verified against stored key hashes; anything else
// is tried as a session token.
//
// Resolution is optional here: a missing header, an unknown key, and a bad
// session token all leave the request unauthenticated rather than rejecting
// it, and are indistinguishable downstream. Routes that need identity chain
// RequireAuth or RequirePermission after this.
func Authenticate(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.ExtractBearer(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var principal *Principal
			if strings.HasPrefix(token, auth.KeyPrefix) {
				if key := authSvc.VerifyKey(r.Context(), token); key != nil {
					principal = principalFromKey(key)
				}
			} else {
				if claims, err := authSvc.ValidateSession(token); err == nil {
					principal = &Principal{
						Type:    "session",
						UserID:  claims.UserID,
						IsAdmin: claims.IsAdmin,
					}
				}
			}

			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			if c := carrierFrom(ctx); c != nil {
				c.set(principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromKey(key *model.APIKey) *Principal {
	p := &Principal{
		Type:        "api_key",
		KeyID:       key.ID,
		KeyName:     key.Name,
		Permissions: key.Permissions,
	}
	if key.UserID != nil {
		p.UserID = *key.UserID
	}
	return p
}

// RequireAuth rejects unauthenticated requests with 401. Must run after
// Authenticate.
func RequireAuth(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetPrincipal(r.Context()) == nil {
				rejectAuth(w, m, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission enforces a scope on API-key callers. Session callers
// pass with their account standing instead: admins hold every scope and
// regular users hold the public namespace. Unauthenticated requests get
// 401; authenticated ones lacking the scope get 403, distinct so callers
// can tell a missing credential from an insufficient one.
func RequirePermission(scope string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				rejectAuth(w, m, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principalAuthorized(principal, scope) {
				rejectAuth(w, m, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalAuthorized(p *Principal, scope string) bool {
	if p.Type == "session" {
		if p.IsAdmin {
			return true
		}
		return strings.HasPrefix(scope, "public.")
	}
	return auth.Authorized(p.Permissions, scope)
}

// RequireAdmin enforces admin-level access: an admin session, or an API key
// holding the admin namespace. Must run after Authenticate.
func RequireAdmin(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				rejectAuth(w, m, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.IsAdmin && !auth.Authorized(principal.Permissions, "admin.*") {
				rejectAuth(w, m, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// rejectAuth counts the rejection and writes the error envelope. Both 401
// and 403 outcomes feed the auth-failure counter.
func rejectAuth(w http.ResponseWriter, m *metrics.Metrics, status int, message string) {
	if m != nil {
		m.AuthFailuresTotal.Inc()
	}
	writeAuthError(w, status, message)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid an import cycle with the handler
	// package.
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "401"
	case http.StatusForbidden:
		return "403"
	case http.StatusTooManyRequests:
		return "429"
	default:
		return "500"
	}
}
