package handler

import (
	"errors"
	"net/http"

	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/store"
)

// RatingHandler handles title ratings.
type RatingHandler struct {
	store *store.Store
}

// NewRatingHandler creates a RatingHandler.
func NewRatingHandler(st *store.Store) *RatingHandler {
	return &RatingHandler{store: st}
}

// Get returns the title's aggregate rating plus the caller's own score when
// one exists.
func (h *RatingHandler) Get(w http.ResponseWriter, r *http.Request) {
	titleID := r.URL.Query().Get("title_id")
	if titleID == "" {
		writeError(w, http.StatusBadRequest, "title_id is required")
		return
	}

	summary, err := h.store.GetRatingSummary(r.Context(), titleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get ratings")
		return
	}

	resp := map[string]interface{}{"summary": summary}
	if userID, ok := principalUserID(r); ok {
		own, err := h.store.GetRating(r.Context(), userID, titleID)
		if err == nil {
			resp["own"] = own
		} else if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to get ratings")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upsert records the caller's score for a title.
func (h *RatingHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerUserID(w, r)
	if !ok {
		return
	}

	var req model.UpsertRatingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rating := &model.Rating{
		UserID:  userID,
		TitleID: req.TitleID,
		Score:   req.Score,
	}
	if err := h.store.UpsertRating(r.Context(), rating); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save rating")
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
