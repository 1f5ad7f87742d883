package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/server/middleware"
	"github.com/watchdeck/watchdeck/internal/store"
)

// WatchHandler handles watch-history endpoints.
type WatchHandler struct {
	store *store.Store
}

// NewWatchHandler creates a WatchHandler.
func NewWatchHandler(st *store.Store) *WatchHandler {
	return &WatchHandler{store: st}
}

// callerUserID resolves the acting user for domain endpoints. API keys not
// bound to a user have no watch history of their own.
func callerUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := principalUserID(r)
	if !ok {
		writeError(w, http.StatusForbidden, "this credential is not bound to a user account")
		return "", false
	}
	return userID, true
}

// principalUserID returns the acting user without writing a response,
// for endpoints where a user identity is optional.
func principalUserID(r *http.Request) (string, bool) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}

// List returns the caller's watch history.
func (h *WatchHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerUserID(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	entries, err := h.store.ListWatchEntries(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list watch history")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: entries,
		Meta:     &model.ResponseMeta{Count: len(entries), Limit: limit, Offset: offset},
	})
}

// Upsert records watch progress for the caller.
func (h *WatchHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerUserID(w, r)
	if !ok {
		return
	}

	var req model.UpsertWatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry := &model.WatchEntry{
		UserID:          userID,
		TitleID:         req.TitleID,
		MediaType:       req.MediaType,
		Season:          req.Season,
		Episode:         req.Episode,
		ProgressSeconds: req.ProgressSeconds,
		Finished:        req.Finished,
	}
	if err := h.store.UpsertWatchEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record progress")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Delete removes one of the caller's watch entries.
func (h *WatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerUserID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entryId")

	if err := h.store.DeleteWatchEntry(r.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "watch entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete watch entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
