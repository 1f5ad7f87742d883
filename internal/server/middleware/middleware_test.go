package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/ratelimit"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header %q != context %q", got, seen)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "client-supplied" {
		t.Errorf("got %q, want client-supplied", seen)
	}
}

// ---------------------------------------------------------------------------
// Authenticate / Require*
// ---------------------------------------------------------------------------

// authStore is a minimal auth.Store for middleware tests.
type authStore struct {
	keys map[string]*model.APIKey
}

func (s *authStore) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	if k, ok := s.keys[hash]; ok {
		return k, nil
	}
	return nil, errors.New("not found")
}
func (s *authStore) UpdateAPIKeyLastUsed(ctx context.Context, id string) error { return nil }
func (s *authStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, errors.New("not found")
}
func (s *authStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return nil, errors.New("not found")
}
func (s *authStore) UpdateUserLastLogin(ctx context.Context, id string) error { return nil }

func newAuthFixture(t *testing.T, perms []string) (svc *auth.Service, rawKey string) {
	t.Helper()
	raw, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	store := &authStore{keys: map[string]*model.APIKey{
		hash: {
			ID:          "key-1",
			KeyHash:     hash,
			KeyPrefix:   prefix,
			Name:        "test",
			Permissions: perms,
		},
	}}
	return auth.New(store, "test-secret", discard), raw
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateResolvesAPIKey(t *testing.T) {
	svc, raw := newAuthFixture(t, []string{"public.watch.read"})

	var principal *Principal
	h := Authenticate(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if principal == nil {
		t.Fatal("no principal resolved")
	}
	if principal.Type != "api_key" || principal.KeyID != "key-1" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestAuthenticateResolvesSession(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	token, _, err := svc.IssueSession("u1", true, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	var principal *Principal
	h := Authenticate(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if principal == nil {
		t.Fatal("no principal resolved")
	}
	if principal.Type != "session" || principal.UserID != "u1" || !principal.IsAdmin {
		t.Errorf("principal = %+v", principal)
	}
}

func TestAuthenticateLeavesBadCredentialUnauthenticated(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)

	for _, header := range []string{"", "Bearer wd_unknown", "Bearer bad.jwt.token"} {
		var principal *Principal
		called := false
		h := Authenticate(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			principal = GetPrincipal(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)

		if !called {
			t.Errorf("header %q: request rejected, want passthrough", header)
		}
		if principal != nil {
			t.Errorf("header %q: unexpected principal %+v", header, principal)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	svc, raw := newAuthFixture(t, nil)
	h := Authenticate(svc)(RequireAuth(nil)(okHandler()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: got %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated: got %d, want 200", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	svc, raw := newAuthFixture(t, []string{"public.watch.*"})

	tests := []struct {
		name   string
		scope  string
		header string
		want   int
	}{
		{"scope held", "public.watch.read", "Bearer " + raw, http.StatusOK},
		{"wildcard child", "public.watch.write", "Bearer " + raw, http.StatusOK},
		{"scope missing", "public.comments.read", "Bearer " + raw, http.StatusForbidden},
		{"admin scope not held", "admin.keys.write", "Bearer " + raw, http.StatusForbidden},
		{"no credential", "public.watch.read", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticate(svc)(RequirePermission(tt.scope, nil)(okHandler()))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequirePermissionSessionCallers(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)

	adminToken, _, _ := svc.IssueSession("admin-user", true, time.Hour)
	userToken, _, _ := svc.IssueSession("plain-user", false, time.Hour)

	tests := []struct {
		name  string
		token string
		scope string
		want  int
	}{
		{"admin session passes public scope", adminToken, "public.watch.read", http.StatusOK},
		{"admin session passes admin scope", adminToken, "admin.keys.write", http.StatusOK},
		{"user session passes public scope", userToken, "public.watch.read", http.StatusOK},
		{"user session fails admin scope", userToken, "admin.keys.write", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticate(svc)(RequirePermission(tt.scope, nil)(okHandler()))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	adminKeySvc, adminRaw := newAuthFixture(t, []string{"admin.*"})
	plainKeySvc, plainRaw := newAuthFixture(t, []string{"public.watch.read"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminRaw)
	Authenticate(adminKeySvc)(RequireAdmin(nil)(okHandler())).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin key: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+plainRaw)
	Authenticate(plainKeySvc)(RequireAdmin(nil)(okHandler())).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("plain key: got %d, want 403", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// ClassRateLimit
// ---------------------------------------------------------------------------

func newClassLimiter(max int) *ratelimit.Limiter {
	store := ratelimit.NewMemoryStore()
	return ratelimit.New(store, map[ratelimit.Class]ratelimit.ClassConfig{
		ratelimit.ClassAPI: {MaxRequests: max, Window: time.Minute},
	}, discard)
}

func TestClassRateLimitRejectsOverQuota(t *testing.T) {
	limiter := newClassLimiter(2)
	h := ClassRateLimit(limiter, ratelimit.ClassAPI, nil)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining header %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// A different IP is a different identity.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other IP: got %d, want 200", rec.Code)
	}
}

func TestClassRateLimitUsesPrincipalIdentity(t *testing.T) {
	limiter := newClassLimiter(1)
	h := ClassRateLimit(limiter, ratelimit.ClassAPI, nil)(okHandler())

	send := func(keyID, addr string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		ctx := context.WithValue(req.Context(), AuthPrincipalKey, &Principal{Type: "api_key", KeyID: keyID})
		h.ServeHTTP(rec, req.WithContext(ctx))
		return rec.Code
	}

	// Same key from different IPs shares one counter.
	if code := send("key-1", "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first: %d", code)
	}
	if code := send("key-1", "10.0.0.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("same key other IP: got %d, want 429", code)
	}
	// A different key is independent.
	if code := send("key-2", "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("other key: got %d, want 200", code)
	}
}

type brokenCounters struct{}

func (brokenCounters) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestClassRateLimitFailsOpen(t *testing.T) {
	limiter := ratelimit.New(brokenCounters{}, map[ratelimit.Class]ratelimit.ClassConfig{
		ratelimit.ClassAPI: {MaxRequests: 1, Window: time.Minute},
	}, discard)
	m := metrics.New()
	h := ClassRateLimit(limiter, ratelimit.ClassAPI, m)(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d rejected on store failure: %d", i, rec.Code)
		}
	}

	// The outage is not silent: every failed check is counted.
	if got := testutil.ToFloat64(m.RateLimitStoreErrors); got != 5 {
		t.Errorf("store error counter = %v, want 5", got)
	}
}

func TestAuthRejectionsFeedFailureCounter(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	m := metrics.New()

	h := Authenticate(svc)(RequireAuth(m)(okHandler()))
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if got := testutil.ToFloat64(m.AuthFailuresTotal); got != 3 {
		t.Errorf("after 401s: counter = %v, want 3", got)
	}

	// A 403 from an authenticated but under-privileged caller counts too.
	userToken, _, err := svc.IssueSession("plain-user", false, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	h = Authenticate(svc)(RequireAdmin(m)(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got := testutil.ToFloat64(m.AuthFailuresTotal); got != 4 {
		t.Errorf("after 403: counter = %v, want 4", got)
	}

	// A successful request leaves the counter alone.
	adminToken, _, err := svc.IssueSession("admin-user", true, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got := testutil.ToFloat64(m.AuthFailuresTotal); got != 4 {
		t.Errorf("after success: counter = %v, want 4", got)
	}
}

// ---------------------------------------------------------------------------
// RequestLog
// ---------------------------------------------------------------------------

// chanRecorder delivers persisted entries to the test goroutine.
type chanRecorder struct {
	entries chan *model.RequestLog
}

func (c *chanRecorder) InsertRequestLog(ctx context.Context, entry *model.RequestLog) error {
	c.entries <- entry
	return nil
}

func waitEntry(t *testing.T, c *chanRecorder) *model.RequestLog {
	t.Helper()
	select {
	case e := <-c.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("request log entry never persisted")
		return nil
	}
}

func TestRequestLogRecordsEntry(t *testing.T) {
	rec := &chanRecorder{entries: make(chan *model.RequestLog, 1)}
	h := RequestID(RequestLog(rec, metrics.New(), discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/watch?limit=5", nil)
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(w, req)

	entry := waitEntry(t, rec)
	if entry.Method != http.MethodGet || entry.Path != "/api/v1/watch" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Status != http.StatusTeapot {
		t.Errorf("status = %d, want 418", entry.Status)
	}
	if entry.RequestID == "" {
		t.Error("entry missing request id")
	}
	if entry.UserAgent != "test-agent" {
		t.Errorf("user agent %q", entry.UserAgent)
	}
	if entry.DurationMs < 0 {
		t.Errorf("negative duration %v", entry.DurationMs)
	}
}

func TestRequestLogDefaultsTo200(t *testing.T) {
	rec := &chanRecorder{entries: make(chan *model.RequestLog, 1)}
	h := RequestLog(rec, nil, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // implicit 200
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if entry := waitEntry(t, rec); entry.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", entry.Status)
	}
}

func TestRequestLogCapturesPrincipal(t *testing.T) {
	svc, raw := newAuthFixture(t, []string{"public.watch.read"})
	rec := &chanRecorder{entries: make(chan *model.RequestLog, 1)}

	// Authenticate runs inside RequestLog, as it does in the real router.
	h := RequestLog(rec, nil, discard)(Authenticate(svc)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry := waitEntry(t, rec)
	if entry.KeyID == nil || *entry.KeyID != "key-1" {
		t.Errorf("key attribution missing: %v", entry.KeyID)
	}
}

func TestRequestLogPanicRecordsAndRethrows(t *testing.T) {
	rec := &chanRecorder{entries: make(chan *model.RequestLog, 1)}
	h := RequestLog(rec, nil, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	var recovered interface{}
	func() {
		defer func() { recovered = recover() }()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	}()

	if recovered != "handler exploded" {
		t.Fatalf("panic not re-raised, recovered %v", recovered)
	}
	entry := waitEntry(t, rec)
	if entry.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", entry.Status)
	}
	if entry.Path != "/boom" {
		t.Errorf("path = %q", entry.Path)
	}
}

// slowRecorder blocks until released, proving the response path never waits
// on persistence.
type slowRecorder struct {
	release chan struct{}
	done    chan struct{}
}

func (s *slowRecorder) InsertRequestLog(ctx context.Context, entry *model.RequestLog) error {
	<-s.release
	close(s.done)
	return nil
}

func TestRequestLogDoesNotBlockResponse(t *testing.T) {
	rec := &slowRecorder{release: make(chan struct{}), done: make(chan struct{})}
	h := RequestLog(rec, nil, discard)(okHandler())

	start := time.Now()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("response blocked on recorder for %v", elapsed)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}

	close(rec.release)
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("persistence goroutine never ran")
	}
}
