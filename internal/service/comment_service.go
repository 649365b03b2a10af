package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"remo-voting/internal/domain"
	"remo-voting/internal/repository"

	"go.uber.org/zap"
)

const maxCommentLength = 5000

type CommentService struct {
	polls       repository.PollRepository
	comments    repository.CommentRepository
	eligibility *EligibilityChecker
	logger      *zap.Logger
	clock       Clock
}

func NewCommentService(repos *repository.Repositories, logger *zap.Logger, clock Clock) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &CommentService{
		polls:       repos.Polls,
		comments:    repos.Comments,
		eligibility: NewEligibilityChecker(repos.Directory),
		logger:      logger,
		clock:       clock,
	}
}

// AddComment posts a comment. Only voters of the poll's group may comment,
// and only when the poll allows it.
func (s *CommentService) AddComment(ctx context.Context, userID int64, slug, text string) (*domain.PollComment, error) {
	if userID <= 0 {
		return nil, domain.ErrUnauthenticated
	}
	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !poll.CommentsAllowed {
		return nil, domain.ErrCommentsDisabled
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment is empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return nil, fmt.Errorf("%w: comment exceeds %d characters", domain.ErrInvalidInput, maxCommentLength)
	}

	now := s.clock()
	ok, err := s.eligibility.CanVote(ctx, userID, poll, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotEligible
	}

	comment := &domain.PollComment{
		PollID:    poll.ID,
		UserID:    userID,
		Comment:   text,
		CreatedOn: now,
	}
	if err := s.comments.Add(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	s.logger.Info("Comment added", zap.Int64("poll_id", poll.ID), zap.Int64("comment_id", comment.ID), zap.Int64("user_id", userID))
	return comment, nil
}

// ListComments returns the poll's comments oldest first
func (s *CommentService) ListComments(ctx context.Context, slug string) ([]domain.PollComment, error) {
	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPoll(ctx, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}
