package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"remo-voting/internal/domain"
)

var (
	_ PollRepository    = (*MemoryStore)(nil)
	_ VoteRepository    = (*MemoryStore)(nil)
	_ CommentRepository = (*MemoryStore)(nil)
	_ Directory         = (*MemoryStore)(nil)
)

type voteKey struct {
	userID, pollID int64
}

// MemoryStore keeps every table in process memory behind one mutex. It
// enforces the same constraints as the SQL schema and is used by tests and
// by local runs without DATABASE_URL.
type MemoryStore struct {
	mu sync.RWMutex

	nextID int64

	polls       map[int64]*domain.Poll
	slugs       map[string]int64
	votes       map[voteKey]domain.Vote
	comments    map[int64][]domain.PollComment
	users       map[int64]domain.User
	groups      map[int64]domain.Group
	memberships []domain.Membership
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:    make(map[int64]*domain.Poll),
		slugs:    make(map[string]int64),
		votes:    make(map[voteKey]domain.Vote),
		comments: make(map[int64][]domain.PollComment),
		users:    make(map[int64]domain.User),
		groups:   make(map[int64]domain.Group),
	}
}

// Repositories exposes the store through every repository interface
func (s *MemoryStore) Repositories() *Repositories {
	return &Repositories{Polls: s, Votes: s, Comments: s, Directory: s}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser stores a user and returns it with its id set
func (s *MemoryStore) AddUser(first, last, email string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.id(), FirstName: first, LastName: last, Email: email}
	s.users[u.ID] = u
	return u
}

// AddGroup stores a group
func (s *MemoryStore) AddGroup(name string) domain.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := domain.Group{ID: s.id(), Name: name}
	s.groups[g.ID] = g
	return g
}

// AddMembership records a membership window; leftAt may be nil
func (s *MemoryStore) AddMembership(userID, groupID int64, joinedAt time.Time, leftAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, domain.Membership{UserID: userID, GroupID: groupID, JoinedAt: joinedAt, LeftAt: leftAt})
}

// EndMembership closes every open membership of the user in the group at t
func (s *MemoryStore) EndMembership(userID, groupID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.memberships {
		m := &s.memberships[i]
		if m.UserID == userID && m.GroupID == groupID && m.LeftAt == nil {
			left := at
			m.LeftAt = &left
		}
	}
}

func clonePoll(p *domain.Poll) *domain.Poll {
	c := *p
	c.RangePolls = make([]domain.RangePoll, len(p.RangePolls))
	for i, rp := range p.RangePolls {
		rp.Choices = append([]domain.RangePollChoice{}, rp.Choices...)
		c.RangePolls[i] = rp
	}
	c.RadioPolls = make([]domain.RadioPoll, len(p.RadioPolls))
	for i, rp := range p.RadioPolls {
		rp.Answers = append([]domain.RadioPollChoice{}, rp.Answers...)
		c.RadioPolls[i] = rp
	}
	return &c
}

func summary(p *domain.Poll) domain.Poll {
	c := *p
	c.RangePolls = nil
	c.RadioPolls = nil
	return c
}

// Create stores a poll and assigns ids to it and its sections
func (s *MemoryStore) Create(_ context.Context, poll *domain.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.slugs[poll.Slug]; taken {
		return ErrSlugTaken
	}
	if !poll.End.After(poll.Start) {
		return fmt.Errorf("poll window: %w", domain.ErrInvalidPoll)
	}

	poll.ID = s.id()
	poll.CreatedAt = time.Now().UTC()
	for i := range poll.RangePolls {
		rp := &poll.RangePolls[i]
		rp.ID, rp.PollID = s.id(), poll.ID
		seen := make(map[int64]bool)
		for j := range rp.Choices {
			c := &rp.Choices[j]
			if seen[c.NomineeID] {
				return fmt.Errorf("nominee %d listed twice: %w", c.NomineeID, domain.ErrInvalidPoll)
			}
			seen[c.NomineeID] = true
			c.ID, c.RangePollID, c.Votes = s.id(), rp.ID, 0
			if u, ok := s.users[c.NomineeID]; ok {
				c.Nominee = u
			}
		}
	}
	for i := range poll.RadioPolls {
		rp := &poll.RadioPolls[i]
		rp.ID, rp.PollID = s.id(), poll.ID
		for j := range rp.Answers {
			a := &rp.Answers[j]
			a.ID, a.RadioPollID, a.Votes = s.id(), rp.ID, 0
		}
	}

	s.polls[poll.ID] = clonePoll(poll)
	s.slugs[poll.Slug] = poll.ID
	return nil
}

func (s *MemoryStore) GetBySlug(_ context.Context, slug string) (*domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("poll %q: %w", slug, domain.ErrNotFound)
	}
	return clonePoll(s.polls[id]), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	return clonePoll(p), nil
}

func (s *MemoryStore) sortedPolls(keep func(*domain.Poll) bool) []domain.Poll {
	var out []domain.Poll
	for _, p := range s.polls {
		if keep(p) {
			out = append(out, summary(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPolls(func(*domain.Poll) bool { return true }), nil
}

func (s *MemoryStore) ListEndingBetween(_ context.Context, from, to time.Time) ([]domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPolls(func(p *domain.Poll) bool {
		return !p.End.Before(from) && p.End.Before(to)
	}), nil
}

func (s *MemoryStore) UpdateSchedule(_ context.Context, id int64, start, end time.Time, extended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	if !end.After(start) {
		return fmt.Errorf("poll window: %w", domain.ErrInvalidPoll)
	}
	p.Start, p.End, p.Extended = start, end, extended
	return nil
}

func (s *MemoryStore) SetJobHandles(_ context.Context, id int64, startJob, endJob *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	p.TaskStartID, p.TaskEndID = startJob, endJob
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *MemoryStore) RecordNotification(_ context.Context, id int64, prev *time.Time, at time.Time, clearStart, clearEnd bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return false, fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	if !sameInstant(p.LastNotification, prev) {
		return false, nil
	}
	stamp := at
	p.LastNotification = &stamp
	if clearStart {
		p.TaskStartID = nil
	}
	if clearEnd {
		p.TaskEndID = nil
	}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	delete(s.slugs, p.Slug)
	delete(s.polls, id)
	delete(s.comments, id)
	for k := range s.votes {
		if k.pollID == id {
			delete(s.votes, k)
		}
	}
	return nil
}

// CastVote checks every referenced choice before touching anything so a
// failure leaves the store unchanged.
func (s *MemoryStore) CastVote(_ context.Context, vote *domain.Vote, ballot domain.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[vote.PollID]
	if !ok {
		return fmt.Errorf("poll %d: %w", vote.PollID, domain.ErrNotFound)
	}
	key := voteKey{vote.UserID, vote.PollID}
	if _, dup := s.votes[key]; dup {
		return domain.ErrDuplicateVote
	}

	rangeIdx := make(map[int64][2]int)
	for i, rp := range p.RangePolls {
		for j, c := range rp.Choices {
			rangeIdx[c.ID] = [2]int{i, j}
		}
	}
	radioIdx := make(map[int64][2]int)
	for i, rp := range p.RadioPolls {
		for j, a := range rp.Answers {
			radioIdx[a.ID] = [2]int{i, j}
		}
	}
	for choiceID := range ballot.RangePoints {
		if _, ok := rangeIdx[choiceID]; !ok {
			return fmt.Errorf("choice outside poll %d: %w", vote.PollID, domain.ErrNotFound)
		}
	}
	for _, choiceID := range ballot.RadioChoice {
		if _, ok := radioIdx[choiceID]; !ok {
			return fmt.Errorf("choice outside poll %d: %w", vote.PollID, domain.ErrNotFound)
		}
	}

	for choiceID, points := range ballot.RangePoints {
		at := rangeIdx[choiceID]
		p.RangePolls[at[0]].Choices[at[1]].Votes += points
	}
	for _, choiceID := range ballot.RadioChoice {
		at := radioIdx[choiceID]
		p.RadioPolls[at[0]].Answers[at[1]].Votes++
	}

	vote.ID = s.id()
	s.votes[key] = *vote
	return nil
}

func (s *MemoryStore) HasVoted(_ context.Context, userID, pollID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.votes[voteKey{userID, pollID}]
	return ok, nil
}

func (s *MemoryStore) VotedPollIDs(_ context.Context, userID int64) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[int64]bool)
	for k := range s.votes {
		if k.userID == userID {
			ids[k.pollID] = true
		}
	}
	return ids, nil
}

func (s *MemoryStore) VoterIDs(_ context.Context, pollID int64) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[int64]bool)
	for k := range s.votes {
		if k.pollID == pollID {
			ids[k.userID] = true
		}
	}
	return ids, nil
}

func (s *MemoryStore) CountVotes(ctx context.Context, pollID int64) (int, error) {
	ids, err := s.VoterIDs(ctx, pollID)
	return len(ids), err
}

func (s *MemoryStore) Add(_ context.Context, c *domain.PollComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[c.PollID]; !ok {
		return fmt.Errorf("poll %d: %w", c.PollID, domain.ErrNotFound)
	}
	c.ID = s.id()
	if u, ok := s.users[c.UserID]; ok {
		author := u
		c.Author = &author
	}
	s.comments[c.PollID] = append(s.comments[c.PollID], *c)
	return nil
}

func (s *MemoryStore) ListByPoll(_ context.Context, pollID int64) ([]domain.PollComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.PollComment{}, s.comments[pollID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out, nil
}

func (s *MemoryStore) IsActiveMember(_ context.Context, userID, groupID int64, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.UserID == userID && m.GroupID == groupID && m.ActiveAt(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListMembers(_ context.Context, groupID int64, at time.Time) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var users []domain.User
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.ActiveAt(at) && !seen[m.UserID] {
			seen[m.UserID] = true
			users = append(users, s.users[m.UserID])
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) ActiveGroupIDs(_ context.Context, userID int64, at time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range s.memberships {
		if m.UserID == userID && m.ActiveAt(at) && !seen[m.GroupID] {
			seen[m.GroupID] = true
			ids = append(ids, m.GroupID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) GetUsers(_ context.Context, ids []int64) (map[int64]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *MemoryStore) GroupByName(_ context.Context, name string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, fmt.Errorf("group %q: %w", name, domain.ErrNotFound)
}
