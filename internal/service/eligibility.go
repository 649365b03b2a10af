package service

import (
	"context"
	"fmt"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/repository"
)

// EligibilityChecker decides who may vote in a poll. Answers are never
// cached because memberships change while a poll is open.
type EligibilityChecker struct {
	directory repository.Directory
}

func NewEligibilityChecker(directory repository.Directory) *EligibilityChecker {
	return &EligibilityChecker{directory: directory}
}

// CanVote permits active members of the poll's group at time at.
// Anonymous callers are denied without an error.
func (e *EligibilityChecker) CanVote(ctx context.Context, userID int64, poll *domain.Poll, at time.Time) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	ok, err := e.directory.IsActiveMember(ctx, userID, poll.ValidGroupID, at)
	if err != nil {
		return false, fmt.Errorf("eligibility lookup: %w", err)
	}
	return ok, nil
}

// Voters lists everyone eligible for the poll at time at
func (e *EligibilityChecker) Voters(ctx context.Context, poll *domain.Poll, at time.Time) ([]domain.User, error) {
	users, err := e.directory.ListMembers(ctx, poll.ValidGroupID, at)
	if err != nil {
		return nil, fmt.Errorf("list voters: %w", err)
	}
	return users, nil
}
