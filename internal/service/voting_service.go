package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/metrics"
	"remo-voting/internal/repository"

	"go.uber.org/zap"
)

// Rejection reasons recorded on the rejection counter
const (
	reasonNotFound   = "not_found"
	reasonNotOpen    = "poll_not_open"
	reasonIneligible = "not_eligible"
	reasonDuplicate  = "duplicate_vote"
	reasonIncomplete = "incomplete_selection"
)

type VotingService struct {
	polls       repository.PollRepository
	votes       repository.VoteRepository
	directory   repository.Directory
	eligibility *EligibilityChecker
	scoring     ScoringPolicy
	cache       *CacheService
	metrics     *metrics.Metrics
	logger      *zap.Logger
	clock       Clock
	adminGroup  string
}

func NewVotingService(repos *repository.Repositories, scoring ScoringPolicy, cache *CacheService, m *metrics.Metrics, logger *zap.Logger, clock Clock, adminGroup string) *VotingService {
	if scoring == nil {
		scoring = BordaScoring{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &VotingService{
		polls:       repos.Polls,
		votes:       repos.Votes,
		directory:   repos.Directory,
		eligibility: NewEligibilityChecker(repos.Directory),
		scoring:     scoring,
		cache:       cache,
		metrics:     m,
		logger:      logger,
		clock:       clock,
		adminGroup:  adminGroup,
	}
}

// CastVote records one vote for userID in the poll named by slug. Every
// precondition is checked before anything is written; the vote row and all
// counter increments are then stored together or not at all.
func (s *VotingService) CastVote(ctx context.Context, userID int64, slug string, req *domain.VoteRequest) (*domain.VoteResponse, error) {
	started := time.Now()
	log := s.logger.With(zap.Int64("user_id", userID), zap.String("slug", slug))

	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, s.reject(log, reasonNotFound, err)
		}
		return nil, fmt.Errorf("failed to load poll: %w", err)
	}

	now := s.clock()
	if !poll.IsOpen(now) {
		return nil, s.reject(log, reasonNotOpen, domain.ErrPollNotOpen)
	}

	eligible, err := s.eligibility.CanVote(ctx, userID, poll, now)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, s.reject(log, reasonIneligible, domain.ErrNotEligible)
	}

	// Early exit only; the unique (user, poll) constraint is what actually
	// rejects a concurrent second vote.
	voted, err := s.votes.HasVoted(ctx, userID, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing vote: %w", err)
	}
	if voted {
		return nil, s.reject(log, reasonDuplicate, domain.ErrDuplicateVote)
	}

	ballot, err := BuildBallot(poll, req, s.scoring)
	if err != nil {
		reason := reasonIncomplete
		if errors.Is(err, domain.ErrNotFound) {
			reason = reasonNotFound
		}
		return nil, s.reject(log, reason, err)
	}

	vote := &domain.Vote{UserID: userID, PollID: poll.ID, DateVoted: now}
	if err := s.votes.CastVote(ctx, vote, ballot); err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) {
			return nil, s.reject(log, reasonDuplicate, err)
		}
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	if err := s.cache.InvalidatePoll(ctx, poll.Slug); err != nil {
		log.Warn("Failed to invalidate results cache", zap.Error(err))
	}
	s.metrics.VoteAccepted(time.Since(started))
	log.Info("Vote recorded", zap.Int64("poll_id", poll.ID), zap.Int64("vote_id", vote.ID))

	return &domain.VoteResponse{
		PollID:    poll.ID,
		Slug:      poll.Slug,
		DateVoted: vote.DateVoted,
		Message:   "Your vote has been recorded",
	}, nil
}

func (s *VotingService) reject(log *zap.Logger, reason string, err error) error {
	s.metrics.VoteRejected(reason)
	log.Debug("Vote rejected", zap.String("reason", reason), zap.Error(err))
	return err
}

// BuildBallot checks a selection against the poll and converts it to
// counter increments. Ids that do not belong to the poll are NotFound; a
// missing section, an unranked nominee, a rank outside [1, nominees] or a
// radio section without an answer are IncompleteSelection.
func BuildBallot(poll *domain.Poll, req *domain.VoteRequest, scoring ScoringPolicy) (domain.Ballot, error) {
	ballot := domain.Ballot{RangePoints: make(map[int64]int)}
	if req == nil {
		return ballot, domain.ErrIncompleteSelection
	}

	rangeIDs := make(map[int64]bool, len(poll.RangePolls))
	for _, rp := range poll.RangePolls {
		rangeIDs[rp.ID] = true
	}
	for id := range req.Range {
		if !rangeIDs[id] {
			return ballot, fmt.Errorf("range poll %d: %w", id, domain.ErrNotFound)
		}
	}
	radioIDs := make(map[int64]bool, len(poll.RadioPolls))
	for _, rp := range poll.RadioPolls {
		radioIDs[rp.ID] = true
	}
	for id := range req.Radio {
		if !radioIDs[id] {
			return ballot, fmt.Errorf("radio poll %d: %w", id, domain.ErrNotFound)
		}
	}

	for _, rp := range poll.RangePolls {
		ranks, ok := req.Range[rp.ID]
		if !ok {
			return ballot, fmt.Errorf("range poll %q has no ranking: %w", rp.Name, domain.ErrIncompleteSelection)
		}
		nominees := len(rp.Choices)
		known := make(map[int64]bool, nominees)
		for _, c := range rp.Choices {
			known[c.ID] = true
		}
		for choiceID := range ranks {
			if !known[choiceID] {
				return ballot, fmt.Errorf("range poll %q choice %d: %w", rp.Name, choiceID, domain.ErrNotFound)
			}
		}
		for _, c := range rp.Choices {
			rank, ok := ranks[c.ID]
			if !ok {
				return ballot, fmt.Errorf("range poll %q: nominee %d is unranked: %w", rp.Name, c.NomineeID, domain.ErrIncompleteSelection)
			}
			if rank < 1 || rank > nominees {
				return ballot, fmt.Errorf("range poll %q: rank %d out of range: %w", rp.Name, rank, domain.ErrIncompleteSelection)
			}
			if pts := scoring.Points(rank, nominees); pts > 0 {
				ballot.RangePoints[c.ID] = pts
			}
		}
	}

	for _, rp := range poll.RadioPolls {
		choiceID, ok := req.Radio[rp.ID]
		if !ok {
			return ballot, fmt.Errorf("radio poll %q has no answer: %w", rp.Question, domain.ErrIncompleteSelection)
		}
		found := false
		for _, a := range rp.Answers {
			if a.ID == choiceID {
				found = true
				break
			}
		}
		if !found {
			return ballot, fmt.Errorf("radio poll %q answer %d: %w", rp.Question, choiceID, domain.ErrNotFound)
		}
		ballot.RadioChoice = append(ballot.RadioChoice, choiceID)
	}

	return ballot, nil
}

// GetResults returns the ordered tally. It never writes.
func (s *VotingService) GetResults(ctx context.Context, slug string) (*domain.PollResults, error) {
	now := s.clock()
	return s.cache.GetResultsWithCache(ctx, slug, now, func(ctx context.Context) (*domain.PollResults, error) {
		poll, err := s.polls.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		total, err := s.votes.CountVotes(ctx, poll.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count votes: %w", err)
		}
		return Tally(poll, total, poll.IsClosed(now)), nil
	})
}

// GetPoll returns the poll with its sections
func (s *VotingService) GetPoll(ctx context.Context, slug string) (*domain.Poll, error) {
	return s.cache.GetPollWithCache(ctx, slug, func(ctx context.Context) (*domain.Poll, error) {
		return s.polls.GetBySlug(ctx, slug)
	})
}

// HasVoted reports whether the user already voted in the poll
func (s *VotingService) HasVoted(ctx context.Context, userID int64, slug string) (bool, error) {
	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return false, err
	}
	return s.votes.HasVoted(ctx, userID, poll.ID)
}

// Status summarises whether the user can vote right now
func (s *VotingService) Status(ctx context.Context, userID int64, slug string) (*domain.VoteStatus, error) {
	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	eligible, err := s.eligibility.CanVote(ctx, userID, poll, now)
	if err != nil {
		return nil, err
	}
	voted, err := s.votes.HasVoted(ctx, userID, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return &domain.VoteStatus{
		Slug:     poll.Slug,
		Open:     poll.IsOpen(now),
		Eligible: eligible,
		HasVoted: voted,
	}, nil
}

// ListPolls groups the polls visible to the user into current, upcoming
// and past. Members see their groups' polls; admins see every poll.
func (s *VotingService) ListPolls(ctx context.Context, userID int64) (*domain.PollListing, error) {
	now := s.clock()
	polls, err := s.polls.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}

	admin, err := isAdmin(ctx, s.directory, s.adminGroup, userID, now)
	if err != nil {
		return nil, err
	}
	groups := make(map[int64]bool)
	if !admin {
		ids, err := s.directory.ActiveGroupIDs(ctx, userID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
		for _, id := range ids {
			groups[id] = true
		}
	}
	voted, err := s.votes.VotedPollIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}

	listing := &domain.PollListing{
		Current:  []domain.PollSummary{},
		Upcoming: []domain.PollSummary{},
		Past:     []domain.PollSummary{},
	}
	for _, p := range polls {
		if !admin && !groups[p.ValidGroupID] {
			continue
		}
		sum := domain.PollSummary{
			ID:           p.ID,
			Name:         p.Name,
			Slug:         p.Slug,
			Start:        p.Start,
			End:          p.End,
			ValidGroupID: p.ValidGroupID,
			UserHasVoted: voted[p.ID],
		}
		switch {
		case p.IsFuture(now):
			listing.Upcoming = append(listing.Upcoming, sum)
		case p.IsOpen(now):
			listing.Current = append(listing.Current, sum)
		default:
			listing.Past = append(listing.Past, sum)
		}
	}
	return listing, nil
}

// Now returns the service clock's current time
func (s *VotingService) Now() time.Time {
	return s.clock()
}
