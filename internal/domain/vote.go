package domain

import (
	"time"
)

// Vote records that a user took part in a poll. It carries no choices;
// those only exist as counter increments.
type Vote struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	PollID    int64     `json:"poll_id"`
	DateVoted time.Time `json:"date_voted"`
}

// VoteRequest is the selection payload for a whole poll.
//
// Range maps range poll id to choice id to rank (1 is best). Radio maps
// radio poll id to the chosen answer id.
type VoteRequest struct {
	Range map[int64]map[int64]int `json:"range"`
	Radio map[int64]int64         `json:"radio"`
}

// Ballot is a validated selection expressed as counter increments.
type Ballot struct {
	RangePoints map[int64]int // range choice id -> points
	RadioChoice []int64       // radio choice ids, one per section
}

// VoteResponse is returned after a vote has been recorded.
type VoteResponse struct {
	PollID    int64     `json:"poll_id"`
	Slug      string    `json:"slug"`
	DateVoted time.Time `json:"date_voted"`
	Message   string    `json:"message"`
}

// VoteStatus tells a user whether they can still vote.
type VoteStatus struct {
	Slug     string `json:"slug"`
	Open     bool   `json:"open"`
	Eligible bool   `json:"eligible"`
	HasVoted bool   `json:"has_voted"`
}

// PollComment is a discussion entry on a poll.
type PollComment struct {
	ID        int64     `json:"id"`
	PollID    int64     `json:"poll_id"`
	UserID    int64     `json:"user_id"`
	Author    *User     `json:"author,omitempty"`
	Comment   string    `json:"comment"`
	CreatedOn time.Time `json:"created_on"`
}

// CommentRequest is the body of a new comment.
type CommentRequest struct {
	Comment string `json:"comment" validate:"required,max=5000"`
}

// PollResults is the ordered tally of every section in a poll.
type PollResults struct {
	PollID     int64       `json:"poll_id"`
	Slug       string      `json:"slug"`
	Name       string      `json:"name"`
	Closed     bool        `json:"closed"`
	Ends       time.Time   `json:"ends"`
	TotalVotes int         `json:"total_votes"`
	RangePolls []RangePoll `json:"range_polls"`
	RadioPolls []RadioPoll `json:"radio_polls"`
}
