package domain

import "errors"

// Expected voting outcomes. Callers match with errors.Is.
var (
	ErrPollNotOpen         = errors.New("poll is not open")
	ErrNotEligible         = errors.New("user is not eligible to vote in this poll")
	ErrDuplicateVote       = errors.New("user has already voted in this poll")
	ErrIncompleteSelection = errors.New("selection does not cover every section")
	ErrNotFound            = errors.New("not found")

	ErrCommentsDisabled = errors.New("comments are disabled for this poll")
	ErrInvalidPoll      = errors.New("invalid poll")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPollStarted      = errors.New("poll has already started")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("authentication required")
)
