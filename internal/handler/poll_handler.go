package handler

import (
	"net/http"

	"remo-voting/internal/domain"
	"remo-voting/internal/middleware"
	"remo-voting/internal/service"
	"remo-voting/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// PollHandler serves poll listing, detail and the admin operations
type PollHandler struct {
	polls       *service.PollService
	voting      *service.VotingService
	resultsLive bool
	log         *logger.Logger
}

func NewPollHandler(polls *service.PollService, voting *service.VotingService, resultsLive bool, log *logger.Logger) *PollHandler {
	return &PollHandler{polls: polls, voting: voting, resultsLive: resultsLive, log: log}
}

// List handles GET /api/v1/polls
func (h *PollHandler) List(w http.ResponseWriter, r *http.Request) {
	listing, err := h.voting.ListPolls(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

// Create handles POST /api/v1/polls
func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	poll, err := h.polls.CreatePoll(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, poll)
}

// Get handles GET /api/v1/polls/{slug}. Counters stay hidden while results
// are sealed.
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	poll, err := h.voting.GetPoll(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if !h.resultsLive && !poll.IsClosed(h.voting.Now()) {
		poll = poll.WithoutCounts()
	}
	respondCached(w, r, poll, 10)
}

// Reschedule handles PUT /api/v1/polls/{slug}/schedule
func (h *PollHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req domain.RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	poll, err := h.polls.ReschedulePoll(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "slug"), &req)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, poll)
}

// Delete handles DELETE /api/v1/polls/{slug}
func (h *PollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.polls.DeletePoll(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "slug")); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
