package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/repository"
	"remo-voting/internal/scheduler"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fixture is a populated in-memory store with a movable clock
type fixture struct {
	store *repository.MemoryStore
	repos *repository.Repositories
	now   time.Time

	voters   domain.Group
	admins   domain.Group
	admin    domain.User
	alice    domain.User
	bob      domain.User
	outsider domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := repository.NewMemoryStore()
	f := &fixture{store: s, repos: s.Repositories(), now: t0.Add(-24 * time.Hour)}

	f.voters = s.AddGroup("Rep")
	f.admins = s.AddGroup("Admin")
	f.admin = s.AddUser("Ada", "Admin", "admin@example.org")
	f.alice = s.AddUser("Alice", "Zed", "alice@example.org")
	f.bob = s.AddUser("Bob", "Young", "bob@example.org")
	f.outsider = s.AddUser("Oscar", "Outside", "oscar@example.org")

	joined := t0.Add(-365 * 24 * time.Hour)
	s.AddMembership(f.admin.ID, f.admins.ID, joined, nil)
	s.AddMembership(f.alice.ID, f.voters.ID, joined, nil)
	s.AddMembership(f.bob.ID, f.voters.ID, joined, nil)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) at(t time.Time) { f.now = t }

// radioPoll stores a one-week poll from t0 with a single Yes/No question
func (f *fixture) radioPoll(t *testing.T, mutate ...func(*domain.Poll)) *domain.Poll {
	t.Helper()
	p := &domain.Poll{
		Name:         "Should we meet monthly",
		Slug:         "should-we-meet-monthly",
		Start:        t0,
		End:          t0.Add(7 * 24 * time.Hour),
		ValidGroupID: f.voters.ID,
		RadioPolls: []domain.RadioPoll{{
			Question: "Meet monthly?",
			Answers:  []domain.RadioPollChoice{{Answer: "Yes"}, {Answer: "No"}},
		}},
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, f.store.Create(context.Background(), p))
	return p
}

// rangePoll stores a poll ranking Alice Zed and Bob Young
func (f *fixture) rangePoll(t *testing.T, mutate ...func(*domain.Poll)) *domain.Poll {
	t.Helper()
	p := &domain.Poll{
		Name:         "Mentor election",
		Slug:         "mentor-election",
		Start:        t0,
		End:          t0.Add(7 * 24 * time.Hour),
		ValidGroupID: f.voters.ID,
		RangePolls: []domain.RangePoll{{
			Name:    "Mentors",
			Choices: []domain.RangePollChoice{{NomineeID: f.alice.ID}, {NomineeID: f.bob.ID}},
		}},
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, f.store.Create(context.Background(), p))
	return p
}

func (f *fixture) reload(t *testing.T, id int64) *domain.Poll {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func radioVote(p *domain.Poll, answer int) *domain.VoteRequest {
	rp := p.RadioPolls[0]
	return &domain.VoteRequest{Radio: map[int64]int64{rp.ID: rp.Answers[answer].ID}}
}

// fakeScheduler records registered jobs in memory
type fakeScheduler struct {
	mu        sync.Mutex
	jobs      map[string]scheduler.Job
	cancelled []string
	err       error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]scheduler.Job)}
}

func (s *fakeScheduler) Register(_ context.Context, job scheduler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeScheduler) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *fakeScheduler) byKind(kind string) []scheduler.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduler.Job
	for _, j := range s.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

// fakeNotifier counts deliveries per event and can be made to fail
type fakeNotifier struct {
	mu         sync.Mutex
	opened     int
	reminders  [][]domain.User
	closed     []*domain.PollResults
	recipients []domain.User
	err        error
	openErr    error
}

func (n *fakeNotifier) PollOpened(_ context.Context, _ *domain.Poll, recipients []domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.openErr != nil {
		return n.openErr
	}
	n.opened++
	n.recipients = recipients
	return nil
}

func (n *fakeNotifier) PollReminder(_ context.Context, _ *domain.Poll, recipients []domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reminders = append(n.reminders, recipients)
	return nil
}

func (n *fakeNotifier) PollClosed(_ context.Context, _ *domain.Poll, results *domain.PollResults, recipients []domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.closed = append(n.closed, results)
	n.recipients = recipients
	return nil
}
