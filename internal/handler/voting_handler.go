package handler

import (
	"net/http"

	"remo-voting/internal/domain"
	"remo-voting/internal/middleware"
	"remo-voting/internal/service"
	apperrors "remo-voting/pkg/errors"
	"remo-voting/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type VotingHandler struct {
	votingService *service.VotingService
	resultsLive   bool
	log           *logger.Logger
}

func NewVotingHandler(votingService *service.VotingService, resultsLive bool, log *logger.Logger) *VotingHandler {
	return &VotingHandler{
		votingService: votingService,
		resultsLive:   resultsLive,
		log:           log,
	}
}

// SubmitVote handles POST /api/v1/polls/{slug}/vote
func (h *VotingHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req domain.VoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	resp, err := h.votingService.CastVote(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "slug"), &req)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// GetResults handles GET /api/v1/polls/{slug}/results. While RESULTS_LIVE
// is off, results of a poll that has not closed are refused.
func (h *VotingHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.votingService.GetResults(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if !h.resultsLive && !results.Closed {
		respondError(w, r, h.log, apperrors.NewAuthorizationError("Results are sealed until the poll closes"))
		return
	}

	maxAge := 10
	if results.Closed {
		maxAge = 300
	}
	respondCached(w, r, results, maxAge)
}

// GetMyStatus handles GET /api/v1/polls/{slug}/my-status
func (h *VotingHandler) GetMyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.votingService.Status(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, status)
}
