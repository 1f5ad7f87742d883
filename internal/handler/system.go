package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/store"
)

// SystemHandler handles the administrative API: API keys, users, invites,
// and request logs.
type SystemHandler struct {
	store *store.Store
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(st *store.Store) *SystemHandler {
	return &SystemHandler{store: st}
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey mints a new API key. The raw key appears in this response
// only and is never retrievable again.
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "expires_in must be a positive duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	raw, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}

	key := &model.APIKey{
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Name:        req.Name,
		Permissions: req.Permissions,
		ExpiresAt:   expiresAt,
	}
	if req.UserID != "" {
		if _, err := h.store.GetUserByID(r.Context(), req.UserID); err != nil {
			writeError(w, http.StatusBadRequest, "user_id does not name an existing user")
			return
		}
		userID := req.UserID
		key.UserID = &userID
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create API key")
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateAPIKeyResponse{
		ID:          key.ID,
		Name:        key.Name,
		Key:         raw, // Only returned on creation
		KeyPrefix:   key.KeyPrefix,
		Permissions: key.Permissions,
		CreatedAt:   key.CreatedAt,
	})
}

// ListAPIKeys lists all API keys (without key material).
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list API keys")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// RevokeAPIKey permanently revokes an API key.
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keyId")
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to revoke API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FreezeAPIKey suspends or resumes an API key. Unlike revocation a freeze
// is reversible.
func (h *SystemHandler) FreezeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keyId")
	frozen := strings.HasSuffix(r.URL.Path, "/freeze")
	if err := h.store.SetAPIKeyFrozen(r.Context(), id, frozen); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update API key")
		return
	}
	key, err := h.store.GetAPIKey(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load API key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ListUsers lists all user accounts.
func (h *SystemHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: users,
		Meta:     &model.ResponseMeta{Count: len(users)},
	})
}

type setUserFlagRequest struct {
	Value bool `json:"value"`
}

// SetUserAdmin promotes or demotes a user.
func (h *SystemHandler) SetUserAdmin(w http.ResponseWriter, r *http.Request) {
	h.setUserFlag(w, r, h.store.SetUserAdmin)
}

// SetUserActive enables or disables a user account.
func (h *SystemHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	h.setUserFlag(w, r, h.store.SetUserActive)
}

func (h *SystemHandler) setUserFlag(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, id string, val bool) error) {
	id := chi.URLParam(r, "userId")
	var req setUserFlagRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := set(r.Context(), id, req.Value); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ---------------------------------------------------------------------------
// Invites
// ---------------------------------------------------------------------------

type createInviteRequest struct {
	ExpiresIn string `json:"expires_in,omitempty"`
}

// CreateInvite mints a single-use registration code.
func (h *SystemHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if r.ContentLength > 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "expires_in must be a positive duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	createdBy := ""
	if userID, ok := principalUserID(r); ok {
		createdBy = userID
	}

	inv := &model.Invite{
		Code:      uuid.NewString(),
		CreatedBy: createdBy,
		ExpiresAt: expiresAt,
	}
	if err := h.store.CreateInvite(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListInvites lists all invites.
func (h *SystemHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.store.ListInvites(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invites")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: invites,
		Meta:     &model.ResponseMeta{Count: len(invites)},
	})
}

// ---------------------------------------------------------------------------
// Request logs
// ---------------------------------------------------------------------------

// ListRequestLogs pages through the persisted request audit trail.
func (h *SystemHandler) ListRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	logs, err := h.store.ListRequestLogs(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list request logs")
		return
	}
	total, err := h.store.CountRequestLogs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count request logs")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: logs,
		Meta:     &model.ResponseMeta{Count: len(logs), Total: &total, Limit: limit, Offset: offset},
	})
}
