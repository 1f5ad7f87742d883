package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/server/middleware"
	"github.com/watchdeck/watchdeck/internal/store"
)

// CommentHandler handles title comments.
type CommentHandler struct {
	store *store.Store
}

// NewCommentHandler creates a CommentHandler.
func NewCommentHandler(st *store.Store) *CommentHandler {
	return &CommentHandler{store: st}
}

// ListByTitle returns the comments for a title.
func (h *CommentHandler) ListByTitle(w http.ResponseWriter, r *http.Request) {
	titleID := r.URL.Query().Get("title_id")
	if titleID == "" {
		writeError(w, http.StatusBadRequest, "title_id is required")
		return
	}
	limit, offset := pageParams(r)

	comments, err := h.store.ListCommentsByTitle(r.Context(), titleID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: comments,
		Meta:     &model.ResponseMeta{Count: len(comments), Limit: limit, Offset: offset},
	})
}

// Create posts a comment as the caller.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerUserID(w, r)
	if !ok {
		return
	}

	var req model.CreateCommentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := &model.Comment{
		UserID:  userID,
		TitleID: req.TitleID,
		Body:    req.Body,
	}
	if err := h.store.CreateComment(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Delete removes a comment. Users may delete their own comments; moderators
// holding the admin comment scope may delete any.
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id := chi.URLParam(r, "commentId")

	c, err := h.store.GetComment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}

	isModerator := p.IsAdmin || auth.Authorized(p.Permissions, "admin.comments.write")
	if c.UserID != p.UserID && !isModerator {
		writeError(w, http.StatusForbidden, "cannot delete another user's comment")
		return
	}

	if err := h.store.DeleteComment(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
