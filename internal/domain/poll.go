package domain

import (
	"time"
)

// Poll is a time-boxed voting event restricted to members of one group.
// It is open for voting on the half-open interval [Start, End).
type Poll struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Description      string     `json:"description"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	ValidGroupID     int64      `json:"valid_group_id"`
	CreatedBy        int64      `json:"created_by,omitempty"`
	CommentsAllowed  bool       `json:"comments_allowed"`
	AutomatedPoll    bool       `json:"automated_poll"`
	Extended         bool       `json:"is_extended"`
	BugID            *int64     `json:"bug_id,omitempty"`
	TaskStartID      *string    `json:"-"`
	TaskEndID        *string    `json:"-"`
	LastNotification *time.Time `json:"last_notification,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`

	RangePolls []RangePoll `json:"range_polls"`
	RadioPolls []RadioPoll `json:"radio_polls"`
}

// IsOpen reports whether votes may be cast at now.
func (p *Poll) IsOpen(now time.Time) bool {
	return !now.Before(p.Start) && now.Before(p.End)
}

// IsFuture reports whether the poll has not opened yet.
func (p *Poll) IsFuture(now time.Time) bool {
	return now.Before(p.Start)
}

// IsClosed reports whether the poll has ended.
func (p *Poll) IsClosed(now time.Time) bool {
	return !now.Before(p.End)
}

// NotifiedSince reports whether a participant notification was recorded at
// or after t.
func (p *Poll) NotifiedSince(t time.Time) bool {
	return p.LastNotification != nil && !p.LastNotification.Before(t)
}

// WithoutCounts returns a copy of the poll with every counter zeroed, for
// showing the ballot while results are sealed.
func (p *Poll) WithoutCounts() *Poll {
	out := *p
	out.RangePolls = make([]RangePoll, len(p.RangePolls))
	for i, rp := range p.RangePolls {
		rp.Choices = append([]RangePollChoice(nil), rp.Choices...)
		for j := range rp.Choices {
			rp.Choices[j].Votes = 0
		}
		out.RangePolls[i] = rp
	}
	out.RadioPolls = make([]RadioPoll, len(p.RadioPolls))
	for i, rp := range p.RadioPolls {
		rp.Answers = append([]RadioPollChoice(nil), rp.Answers...)
		for j := range rp.Answers {
			rp.Answers[j].Votes = 0
		}
		out.RadioPolls[i] = rp
	}
	return &out
}

// RangePoll is a section where voters rank nominees.
type RangePoll struct {
	ID      int64             `json:"id"`
	PollID  int64             `json:"poll_id"`
	Name    string            `json:"name"`
	Choices []RangePollChoice `json:"choices"`
}

// RangePollChoice holds the running score of one nominee.
type RangePollChoice struct {
	ID          int64 `json:"id"`
	RangePollID int64 `json:"range_poll_id"`
	NomineeID   int64 `json:"nominee_id"`
	Nominee     User  `json:"nominee"`
	Votes       int   `json:"votes"`
}

// RadioPoll is a section where voters pick exactly one answer.
type RadioPoll struct {
	ID       int64             `json:"id"`
	PollID   int64             `json:"poll_id"`
	Question string            `json:"question"`
	Answers  []RadioPollChoice `json:"answers"`
}

// RadioPollChoice holds the running count of one answer.
type RadioPollChoice struct {
	ID          int64  `json:"id"`
	RadioPollID int64  `json:"radio_poll_id"`
	Answer      string `json:"answer"`
	Votes       int    `json:"votes"`
}

// PollWindow is one of the lists shown on the poll index.
type PollWindow string

const (
	WindowCurrent  PollWindow = "current"
	WindowUpcoming PollWindow = "upcoming"
	WindowPast     PollWindow = "past"
)

// PollSummary is a poll as listed on the index page.
type PollSummary struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ValidGroupID int64     `json:"valid_group_id"`
	UserHasVoted bool      `json:"user_has_voted"`
}

// PollListing groups polls by where they sit relative to now.
type PollListing struct {
	Current  []PollSummary `json:"current"`
	Upcoming []PollSummary `json:"upcoming"`
	Past     []PollSummary `json:"past"`
}

// CreatePollRequest is what an organizer submits to create a poll.
type CreatePollRequest struct {
	Name            string                   `json:"name" validate:"required,min=3,max=300"`
	Description     string                   `json:"description" validate:"required"`
	Start           time.Time                `json:"start" validate:"required"`
	End             time.Time                `json:"end" validate:"required,gtfield=Start"`
	ValidGroupID    int64                    `json:"valid_group_id" validate:"required,gt=0"`
	CommentsAllowed bool                     `json:"comments_allowed"`
	AutomatedPoll   bool                     `json:"automated_poll"`
	BugID           *int64                   `json:"bug_id,omitempty"`
	RangePolls      []CreateRangePollRequest `json:"range_polls" validate:"dive"`
	RadioPolls      []CreateRadioPollRequest `json:"radio_polls" validate:"dive"`
}

// CreateRangePollRequest describes one range section.
type CreateRangePollRequest struct {
	Name       string  `json:"name" validate:"required,max=500"`
	NomineeIDs []int64 `json:"nominee_ids" validate:"required,min=1,unique,dive,gt=0"`
}

// CreateRadioPollRequest describes one radio section.
type CreateRadioPollRequest struct {
	Question string   `json:"question" validate:"required,max=500"`
	Answers  []string `json:"answers" validate:"required,min=2,dive,required,max=500"`
}

// RescheduleRequest moves a poll that has not opened yet.
type RescheduleRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}
