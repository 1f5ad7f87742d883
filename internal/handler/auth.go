package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/store"
)

// AuthHandler handles invite-based registration and password login.
type AuthHandler struct {
	store      *store.Store
	authSvc    *auth.Service
	sessionTTL time.Duration
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(st *store.Store, authSvc *auth.Service, sessionTTL time.Duration) *AuthHandler {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthHandler{store: st, authSvc: authSvc, sessionTTL: sessionTTL}
}

// Register redeems an invite code and creates a user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.store.GetInviteByCode(r.Context(), req.InviteCode)
	if err != nil {
		// Unknown and spent codes are reported identically.
		writeError(w, http.StatusForbidden, "invalid invite code")
		return
	}
	now := time.Now()
	if inv.UsedBy != nil || (inv.ExpiresAt != nil && !inv.ExpiresAt.After(now)) {
		writeError(w, http.StatusForbidden, "invalid invite code")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	user := &model.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusConflict, "email or username already in use")
		return
	}

	if err := h.store.ConsumeInvite(r.Context(), inv.ID, user.ID); err != nil {
		// Lost the race for the code; the account exists but stays
		// unusable until re-invited.
		_ = h.store.SetUserActive(r.Context(), user.ID, false)
		writeError(w, http.StatusForbidden, "invalid invite code")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and issues a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountDisabled) {
			writeError(w, http.StatusForbidden, "account disabled")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := h.authSvc.IssueSession(user.ID, user.IsAdmin, h.sessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	writeJSON(w, http.StatusOK, model.TokenResponse{
		Token:     token,
		ExpiresAt: expires,
		User:      user,
	})
}
