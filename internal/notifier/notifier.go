// Package notifier delivers poll participant notifications.
package notifier

import (
	"context"
	"time"

	"remo-voting/internal/domain"
)

// Event types published to the notification topic
const (
	EventPollOpened   = "poll.opened"
	EventPollReminder = "poll.reminder"
	EventPollClosed   = "poll.closed"
)

// Notifier fans a lifecycle event out to recipients. Implementations must
// either deliver the whole event or return an error.
type Notifier interface {
	PollOpened(ctx context.Context, poll *domain.Poll, recipients []domain.User) error
	PollReminder(ctx context.Context, poll *domain.Poll, recipients []domain.User) error
	PollClosed(ctx context.Context, poll *domain.Poll, results *domain.PollResults, recipients []domain.User) error
}

// Recipient is the addressable part of a user
type Recipient struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Event is the JSON document written for each notification
type Event struct {
	Type       string              `json:"type"`
	PollID     int64               `json:"poll_id"`
	Slug       string              `json:"slug"`
	Name       string              `json:"name"`
	Start      time.Time           `json:"start"`
	End        time.Time           `json:"end"`
	Recipients []Recipient         `json:"recipients"`
	Results    *domain.PollResults `json:"results,omitempty"`
	SentAt     time.Time           `json:"sent_at"`
}

// NewEvent builds an event for poll addressed to users
func NewEvent(kind string, poll *domain.Poll, users []domain.User, results *domain.PollResults, at time.Time) Event {
	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, Recipient{UserID: u.ID, Name: u.FullName(), Email: u.Email})
	}
	return Event{
		Type:       kind,
		PollID:     poll.ID,
		Slug:       poll.Slug,
		Name:       poll.Name,
		Start:      poll.Start,
		End:        poll.End,
		Recipients: recipients,
		Results:    results,
		SentAt:     at,
	}
}
