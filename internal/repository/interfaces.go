package repository

import (
	"context"
	"errors"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/pkg/database"
)

// ErrSlugTaken is returned by PollRepository.Create when the slug is in use.
var ErrSlugTaken = errors.New("poll slug already taken")

// PollRepository defines storage for polls and their sections
type PollRepository interface {
	// Create stores the poll with its sections and choices, assigning ids.
	// Choice counters are always stored as zero.
	Create(ctx context.Context, poll *domain.Poll) error

	// GetBySlug loads a poll with sections, choices and nominees
	GetBySlug(ctx context.Context, slug string) (*domain.Poll, error)

	// GetByID loads a poll with sections, choices and nominees
	GetByID(ctx context.Context, id int64) (*domain.Poll, error)

	// List returns every poll without sections, ordered by start
	List(ctx context.Context) ([]domain.Poll, error)

	// ListEndingBetween returns polls without sections whose end falls in [from, to)
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Poll, error)

	// UpdateSchedule moves the poll window
	UpdateSchedule(ctx context.Context, id int64, start, end time.Time, extended bool) error

	// SetJobHandles stores the opaque scheduler handles
	SetJobHandles(ctx context.Context, id int64, startJob, endJob *string) error

	// RecordNotification sets last_notification to at if it still equals prev
	// and reports whether the update won. clearStart/clearEnd drop the
	// matching job handle in the same write.
	RecordNotification(ctx context.Context, id int64, prev *time.Time, at time.Time, clearStart, clearEnd bool) (bool, error)

	// Delete removes the poll and everything it owns
	Delete(ctx context.Context, id int64) error
}

// VoteRepository defines storage for votes and the counters they drive
type VoteRepository interface {
	// CastVote inserts the vote row and applies every counter increment in
	// one transaction. A second vote for the same (user, poll) fails with
	// domain.ErrDuplicateVote and changes nothing.
	CastVote(ctx context.Context, vote *domain.Vote, ballot domain.Ballot) error

	// HasVoted reports whether a vote row exists
	HasVoted(ctx context.Context, userID, pollID int64) (bool, error)

	// VotedPollIDs returns the polls the user has voted in
	VotedPollIDs(ctx context.Context, userID int64) (map[int64]bool, error)

	// VoterIDs returns the users who voted in a poll
	VoterIDs(ctx context.Context, pollID int64) (map[int64]bool, error)

	// CountVotes returns the number of vote rows for a poll
	CountVotes(ctx context.Context, pollID int64) (int, error)
}

// CommentRepository defines storage for poll comments
type CommentRepository interface {
	Add(ctx context.Context, comment *domain.PollComment) error
	ListByPoll(ctx context.Context, pollID int64) ([]domain.PollComment, error)
}

// Directory is the identity and group membership lookup
type Directory interface {
	// IsActiveMember reports whether the user belongs to the group at time at
	IsActiveMember(ctx context.Context, userID, groupID int64, at time.Time) (bool, error)

	// ListMembers returns users who are active members of the group at time at
	ListMembers(ctx context.Context, groupID int64, at time.Time) ([]domain.User, error)

	// ActiveGroupIDs returns the groups the user belongs to at time at
	ActiveGroupIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error)

	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error)
	GroupByName(ctx context.Context, name string) (*domain.Group, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Polls     PollRepository
	Votes     VoteRepository
	Comments  CommentRepository
	Directory Directory
}

var (
	_ PollRepository    = (*PostgresPollRepository)(nil)
	_ VoteRepository    = (*PostgresVoteRepository)(nil)
	_ CommentRepository = (*PostgresCommentRepository)(nil)
	_ Directory         = (*PostgresDirectory)(nil)
)

// NewPostgresRepositories wires every repository onto one pool
func NewPostgresRepositories(db *database.PostgresDB) *Repositories {
	return &Repositories{
		Polls:     NewPollRepository(db),
		Votes:     NewVoteRepository(db),
		Comments:  NewCommentRepository(db),
		Directory: NewDirectory(db),
	}
}
