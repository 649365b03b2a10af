package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVotingService(f *fixture, m *metrics.Metrics) *VotingService {
	return NewVotingService(f.repos, BordaScoring{}, NewCacheService(nil, nil), m, nil, f.clock, "Admin")
}

func radioCounts(t *testing.T, f *fixture, id int64) map[string]int {
	t.Helper()
	p := f.reload(t, id)
	out := map[string]int{}
	for _, a := range p.RadioPolls[0].Answers {
		out[a.Answer] = a.Votes
	}
	return out
}

func TestCastVote_RadioScenario(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	ctx := context.Background()
	p := f.radioPoll(t)

	f.at(t0.Add(time.Hour))
	resp, err := svc.CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 0))
	require.NoError(t, err)
	assert.Equal(t, p.ID, resp.PollID)
	assert.Equal(t, map[string]int{"Yes": 1, "No": 0}, radioCounts(t, f, p.ID))

	f.at(t0.Add(2 * time.Hour))
	_, err = svc.CastVote(ctx, f.bob.ID, p.Slug, radioVote(p, 1))
	require.NoError(t, err)

	res, err := svc.GetResults(ctx, p.Slug)
	require.NoError(t, err)
	answers := res.RadioPolls[0].Answers
	assert.Equal(t, "Yes", answers[0].Answer)
	assert.Equal(t, "No", answers[1].Answer)
	assert.Equal(t, 2, res.TotalVotes)

	f.at(t0.Add(3 * time.Hour))
	_, err = svc.CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 1))
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)
	assert.Equal(t, map[string]int{"Yes": 1, "No": 1}, radioCounts(t, f, p.ID))
}

func TestCastVote_RangeScenarioTieByLastName(t *testing.T) {
	f := newFixture(t)
	// every rank earns the same points so both nominees tie
	flat, err := NewTableScoring([]int{3, 3})
	require.NoError(t, err)
	svc := NewVotingService(f.repos, flat, nil, nil, nil, f.clock, "Admin")
	p := f.rangePoll(t)
	f.at(t0.Add(time.Hour))

	rp := p.RangePolls[0]
	req := &domain.VoteRequest{Range: map[int64]map[int64]int{
		rp.ID: {rp.Choices[0].ID: 1, rp.Choices[1].ID: 2},
	}}
	_, err = svc.CastVote(context.Background(), f.alice.ID, p.Slug, req)
	require.NoError(t, err)

	res, err := svc.GetResults(context.Background(), p.Slug)
	require.NoError(t, err)
	choices := res.RangePolls[0].Choices
	assert.Equal(t, 3, choices[0].Votes)
	assert.Equal(t, 3, choices[1].Votes)
	assert.Equal(t, "Young", choices[0].Nominee.LastName)
	assert.Equal(t, "Zed", choices[1].Nominee.LastName)
}

func TestCastVote_BordaPoints(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.rangePoll(t)
	f.at(t0)

	rp := p.RangePolls[0]
	alice, bob := rp.Choices[0].ID, rp.Choices[1].ID
	_, err := svc.CastVote(context.Background(), f.alice.ID, p.Slug, &domain.VoteRequest{
		Range: map[int64]map[int64]int{rp.ID: {alice: 2, bob: 1}},
	})
	require.NoError(t, err)

	got := f.reload(t, p.ID).RangePolls[0].Choices
	assert.Equal(t, 1, got[0].Votes)
	assert.Equal(t, 2, got[1].Votes)
}

func TestCastVote_OutsideWindow(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
	}{
		{"before start", t0.Add(-time.Second)},
		{"exactly at end", t0.Add(7 * 24 * time.Hour)},
		{"after end", t0.Add(8 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m := metrics.New()
			svc := newVotingService(f, m)
			p := f.radioPoll(t)
			f.at(tt.at)

			_, err := svc.CastVote(context.Background(), f.alice.ID, p.Slug, radioVote(p, 0))
			assert.ErrorIs(t, err, domain.ErrPollNotOpen)
			assert.Equal(t, map[string]int{"Yes": 0, "No": 0}, radioCounts(t, f, p.ID))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.VoteRejections.WithLabelValues("poll_not_open")))

			voted, err := svc.HasVoted(context.Background(), f.alice.ID, p.Slug)
			require.NoError(t, err)
			assert.False(t, voted)
		})
	}
}

func TestCastVote_NotEligible(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.radioPoll(t)
	f.at(t0.Add(time.Hour))

	_, err := svc.CastVote(context.Background(), f.outsider.ID, p.Slug, radioVote(p, 0))
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	_, err = svc.CastVote(context.Background(), 0, p.Slug, radioVote(p, 0))
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	assert.Equal(t, map[string]int{"Yes": 0, "No": 0}, radioCounts(t, f, p.ID))
}

func TestCastVote_MembershipCheckedAtCastTime(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.radioPoll(t)

	f.store.EndMembership(f.bob.ID, f.voters.ID, t0.Add(time.Hour))
	f.at(t0.Add(2 * time.Hour))

	_, err := svc.CastVote(context.Background(), f.bob.ID, p.Slug, radioVote(p, 0))
	assert.ErrorIs(t, err, domain.ErrNotEligible)
}

func TestCastVote_IncompleteOrUnknownSelection(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.rangePoll(t, func(p *domain.Poll) {
		p.RadioPolls = []domain.RadioPoll{{
			Question: "Keep it?",
			Answers:  []domain.RadioPollChoice{{Answer: "Yes"}, {Answer: "No"}},
		}}
	})
	f.at(t0.Add(time.Hour))

	rp, radio := p.RangePolls[0], p.RadioPolls[0]
	alice, bob := rp.Choices[0].ID, rp.Choices[1].ID
	yes := radio.Answers[0].ID

	tests := []struct {
		name string
		req  *domain.VoteRequest
		want error
	}{
		{"nil", nil, domain.ErrIncompleteSelection},
		{"missing radio", &domain.VoteRequest{Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 2}}}, domain.ErrIncompleteSelection},
		{"missing range", &domain.VoteRequest{Radio: map[int64]int64{radio.ID: yes}}, domain.ErrIncompleteSelection},
		{"unranked nominee", &domain.VoteRequest{
			Range: map[int64]map[int64]int{rp.ID: {alice: 1}},
			Radio: map[int64]int64{radio.ID: yes},
		}, domain.ErrIncompleteSelection},
		{"rank out of range", &domain.VoteRequest{
			Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 3}},
			Radio: map[int64]int64{radio.ID: yes},
		}, domain.ErrIncompleteSelection},
		{"unknown section", &domain.VoteRequest{
			Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 2}, 9999: {}},
			Radio: map[int64]int64{radio.ID: yes},
		}, domain.ErrNotFound},
		{"unknown nominee choice", &domain.VoteRequest{
			Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 2, 9999: 1}},
			Radio: map[int64]int64{radio.ID: yes},
		}, domain.ErrNotFound},
		{"answer from another section", &domain.VoteRequest{
			Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 2}},
			Radio: map[int64]int64{radio.ID: alice},
		}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CastVote(context.Background(), f.alice.ID, p.Slug, tt.req)
			assert.ErrorIs(t, err, tt.want)

			after := f.reload(t, p.ID)
			for _, c := range after.RangePolls[0].Choices {
				assert.Zero(t, c.Votes)
			}
			for _, a := range after.RadioPolls[0].Answers {
				assert.Zero(t, a.Votes)
			}
		})
	}

	// equal ranks are a valid tie
	_, err := svc.CastVote(context.Background(), f.alice.ID, p.Slug, &domain.VoteRequest{
		Range: map[int64]map[int64]int{rp.ID: {alice: 1, bob: 1}},
		Radio: map[int64]int64{radio.ID: yes},
	})
	require.NoError(t, err)
	after := f.reload(t, p.ID).RangePolls[0].Choices
	assert.Equal(t, after[0].Votes, after[1].Votes)
}

func TestCastVote_UnknownPoll(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	_, err := svc.CastVote(context.Background(), f.alice.ID, "nope", &domain.VoteRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCastVote_ConcurrentSameUserAcceptedOnce(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	svc := newVotingService(f, m)
	p := f.radioPoll(t)
	f.at(t0.Add(time.Hour))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CastVote(context.Background(), f.alice.ID, p.Slug, radioVote(p, 0))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateVote)
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, map[string]int{"Yes": 1, "No": 0}, radioCounts(t, f, p.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesCast))
}

func TestCastVote_ConcurrentUsersNoLostUpdates(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.radioPoll(t)
	f.at(t0.Add(time.Hour))

	const voters = 40
	ids := make([]int64, voters)
	for i := range ids {
		u := f.store.AddUser("Voter", "N", "")
		f.store.AddMembership(u.ID, f.voters.ID, t0.Add(-time.Hour), nil)
		ids[i] = u.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.CastVote(context.Background(), id, p.Slug, radioVote(p, 0))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, voters, radioCounts(t, f, p.ID)["Yes"])
}

func TestGetResults_UsesCacheAndInvalidatesOnVote(t *testing.T) {
	client, _ := setupTestRedis(t)
	f := newFixture(t)
	svc := NewVotingService(f.repos, nil, NewCacheService(client, nil), nil, nil, f.clock, "Admin")
	p := f.radioPoll(t)
	f.at(t0.Add(time.Hour))

	res, err := svc.GetResults(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.Zero(t, res.TotalVotes)
	assert.False(t, res.Closed)

	_, err = svc.CastVote(context.Background(), f.alice.ID, p.Slug, radioVote(p, 1))
	require.NoError(t, err)

	res, err = svc.GetResults(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalVotes)
	assert.Equal(t, "No", res.RadioPolls[0].Answers[0].Answer)
}

func TestGetResults_CachedEntryEndsWithPoll(t *testing.T) {
	client, mr := setupTestRedis(t)
	f := newFixture(t)
	svc := NewVotingService(f.repos, nil, NewCacheService(client, nil), nil, nil, f.clock, "Admin")
	p := f.radioPoll(t)
	key := client.KeyBuilder.KeyPollResults(p.Slug)

	f.at(p.End.Add(-10 * time.Second))
	res, err := svc.GetResults(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.True(t, res.Ends.Equal(p.End))
	require.True(t, mr.Exists(key))
	assert.LessOrEqual(t, mr.TTL(key), 10*time.Second)

	mr.FastForward(11 * time.Second)
	f.at(p.End.Add(time.Second))
	res, err = svc.GetResults(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Greater(t, mr.TTL(key), 10*time.Second)
}

func TestGetResults_IsPureRead(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.radioPoll(t)

	for _, at := range []time.Time{t0.Add(-time.Hour), t0.Add(time.Hour), t0.Add(30 * 24 * time.Hour)} {
		f.at(at)
		before := f.reload(t, p.ID)
		res, err := svc.GetResults(context.Background(), p.Slug)
		require.NoError(t, err)
		assert.Equal(t, p.IsClosed(at), res.Closed)
		assert.Equal(t, before, f.reload(t, p.ID))
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.radioPoll(t)
	f.at(t0.Add(time.Hour))

	st, err := svc.Status(context.Background(), f.alice.ID, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteStatus{Slug: p.Slug, Open: true, Eligible: true, HasVoted: false}, *st)

	_, err = svc.CastVote(context.Background(), f.alice.ID, p.Slug, radioVote(p, 0))
	require.NoError(t, err)
	st, err = svc.Status(context.Background(), f.alice.ID, p.Slug)
	require.NoError(t, err)
	assert.True(t, st.HasVoted)

	st, err = svc.Status(context.Background(), f.outsider.ID, p.Slug)
	require.NoError(t, err)
	assert.False(t, st.Eligible)
}

func TestListPolls(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	ctx := context.Background()

	current := f.radioPoll(t)
	upcoming := f.radioPoll(t, func(p *domain.Poll) {
		p.Slug = "upcoming"
		p.Start, p.End = t0.Add(30*24*time.Hour), t0.Add(31*24*time.Hour)
	})
	past := f.radioPoll(t, func(p *domain.Poll) {
		p.Slug = "past"
		p.Start, p.End = t0.Add(-10*24*time.Hour), t0.Add(-9*24*time.Hour)
	})
	other := f.store.AddGroup("Council")
	hidden := f.radioPoll(t, func(p *domain.Poll) {
		p.Slug = "council-only"
		p.ValidGroupID = other.ID
	})

	f.at(t0.Add(time.Hour))
	_, err := svc.CastVote(ctx, f.alice.ID, current.Slug, radioVote(current, 0))
	require.NoError(t, err)

	listing, err := svc.ListPolls(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, listing.Current, 1)
	assert.Equal(t, current.ID, listing.Current[0].ID)
	assert.True(t, listing.Current[0].UserHasVoted)
	require.Len(t, listing.Upcoming, 1)
	assert.Equal(t, upcoming.ID, listing.Upcoming[0].ID)
	require.Len(t, listing.Past, 1)
	assert.Equal(t, past.ID, listing.Past[0].ID)

	adminListing, err := svc.ListPolls(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, adminListing.Current, 2)
	slugs := []string{adminListing.Current[0].Slug, adminListing.Current[1].Slug}
	assert.Contains(t, slugs, hidden.Slug)

	outsider, err := svc.ListPolls(ctx, f.outsider.ID)
	require.NoError(t, err)
	assert.Empty(t, outsider.Current)
	assert.Empty(t, outsider.Upcoming)
	assert.Empty(t, outsider.Past)
}

func TestGetPoll(t *testing.T) {
	f := newFixture(t)
	svc := newVotingService(f, nil)
	p := f.rangePoll(t)

	got, err := svc.GetPoll(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Zed", got.RangePolls[0].Choices[0].Nominee.LastName)

	_, err = svc.GetPoll(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
