package handler

import (
	"net/http"

	"remo-voting/internal/domain"
	"remo-voting/internal/middleware"
	"remo-voting/internal/service"
	"remo-voting/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type CommentHandler struct {
	comments *service.CommentService
	log      *logger.Logger
}

func NewCommentHandler(comments *service.CommentService, log *logger.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, log: log}
}

// List handles GET /api/v1/polls/{slug}/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.ListComments(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, comments)
}

// Add handles POST /api/v1/polls/{slug}/comments
func (h *CommentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req domain.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	comment, err := h.comments.AddComment(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "slug"), req.Comment)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}
