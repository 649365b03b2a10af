package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/metrics"
	"remo-voting/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLifecycleOptions = LifecycleOptions{
	ReminderWindow:  24 * time.Hour,
	ExtensionPeriod: 48 * time.Hour,
	ExtensionQuorum: 0.5,
}

func newLifecycle(f *fixture, n *fakeNotifier, sched scheduler.Scheduler, m *metrics.Metrics) *LifecycleService {
	return NewLifecycleService(f.repos, n, sched, NewLocalLocker(), nil, nil, testLifecycleOptions, m, nil, f.clock)
}

func withHandles(p *domain.Poll) {
	open, closing := "job-open", "job-close"
	p.TaskStartID, p.TaskEndID = &open, &closing
}

func TestOnOpen_Idempotent(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	m := metrics.New()
	svc := newLifecycle(f, n, newFakeScheduler(), m)
	ctx := context.Background()
	p := f.radioPoll(t, withHandles)

	f.at(t0.Add(-time.Minute))
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	assert.Zero(t, n.opened)

	f.at(t0.Add(time.Second))
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	f.at(t0.Add(time.Hour))
	require.NoError(t, svc.OnOpen(ctx, p.ID))

	assert.Equal(t, 1, n.opened)
	assert.ElementsMatch(t, []int64{f.alice.ID, f.bob.ID}, []int64{n.recipients[0].ID, n.recipients[1].ID})

	after := f.reload(t, p.ID)
	require.NotNil(t, after.LastNotification)
	assert.True(t, after.LastNotification.Equal(t0.Add(time.Second)))
	assert.Nil(t, after.TaskStartID)
	assert.NotNil(t, after.TaskEndID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleHooks.WithLabelValues(HookOpen, "sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LifecycleHooks.WithLabelValues(HookOpen, "skipped")))
}

func TestOnOpen_AfterEndIsNoop(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	p := f.radioPoll(t)

	f.at(p.End)
	require.NoError(t, svc.OnOpen(context.Background(), p.ID))
	assert.Zero(t, n.opened)
	assert.Nil(t, f.reload(t, p.ID).LastNotification)
}

func TestOnOpen_DispatchFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{err: errors.New("broker unavailable")}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	p := f.radioPoll(t)

	f.at(t0.Add(time.Second))
	_, err := NewVotingService(f.repos, nil, nil, nil, nil, f.clock, "").CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 0))
	require.NoError(t, err)

	require.Error(t, svc.OnOpen(ctx, p.ID))
	after := f.reload(t, p.ID)
	assert.Nil(t, after.LastNotification)
	assert.Equal(t, 1, after.RadioPolls[0].Answers[0].Votes, "counters untouched by a failed hook")

	n.err = nil
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	assert.Equal(t, 1, n.opened)
}

func TestOnOpen_LockedElsewhere(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	p := f.radioPoll(t)
	f.at(t0)

	release, err := svc.locker.TryLock(ctx, svc.keys.KeyHookLock(p.ID, HookOpen), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	require.NoError(t, svc.OnOpen(ctx, p.ID))
	assert.Zero(t, n.opened)

	release()
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	assert.Equal(t, 1, n.opened)
}

func TestOnOpen_DeletedPoll(t *testing.T) {
	f := newFixture(t)
	svc := newLifecycle(f, &fakeNotifier{}, newFakeScheduler(), nil)
	assert.NoError(t, svc.OnOpen(context.Background(), 12345))
	assert.NoError(t, svc.OnClose(context.Background(), 12345))
}

func TestOnClose(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	voting := NewVotingService(f.repos, nil, nil, nil, nil, f.clock, "")
	ctx := context.Background()
	p := f.radioPoll(t, withHandles)

	f.at(t0)
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	_, err := voting.CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 1))
	require.NoError(t, err)

	f.at(p.End.Add(-time.Nanosecond))
	require.NoError(t, svc.OnClose(ctx, p.ID))
	assert.Empty(t, n.closed)

	f.at(p.End)
	require.NoError(t, svc.OnClose(ctx, p.ID))
	f.at(p.End.Add(time.Minute))
	require.NoError(t, svc.OnClose(ctx, p.ID))

	require.Len(t, n.closed, 1)
	res := n.closed[0]
	assert.True(t, res.Closed)
	assert.Equal(t, 1, res.TotalVotes)
	assert.Equal(t, "No", res.RadioPolls[0].Answers[0].Answer)

	after := f.reload(t, p.ID)
	assert.True(t, after.LastNotification.Equal(p.End))
	assert.Nil(t, after.TaskEndID)
}

func TestSweep_RemindsOnlyNonVoters(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	voting := NewVotingService(f.repos, nil, nil, nil, nil, f.clock, "")
	ctx := context.Background()
	p := f.radioPoll(t)

	f.at(t0)
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	_, err := voting.CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 0))
	require.NoError(t, err)

	// outside the reminder window nothing happens
	f.at(p.End.Add(-48 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	assert.Empty(t, n.reminders)

	f.at(p.End.Add(-12 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	require.Len(t, n.reminders, 1)
	require.Len(t, n.reminders[0], 1)
	assert.Equal(t, f.bob.ID, n.reminders[0][0].ID)

	f.at(p.End.Add(-6 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	assert.Len(t, n.reminders, 1)
}

func TestSweep_ExtendsAutomatedPollBelowQuorum(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	sched := newFakeScheduler()
	svc := newLifecycle(f, n, sched, nil)
	ctx := context.Background()
	p := f.radioPoll(t, withHandles, func(p *domain.Poll) { p.AutomatedPoll = true })

	f.at(t0)
	require.NoError(t, svc.OnOpen(ctx, p.ID))

	f.at(p.End.Add(-12 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))

	after := f.reload(t, p.ID)
	assert.True(t, after.Extended)
	assert.True(t, after.End.Equal(p.End.Add(48*time.Hour)))
	assert.Empty(t, n.reminders)
	assert.Contains(t, sched.cancelled, "job-close")

	closes := sched.byKind(scheduler.KindClose)
	require.Len(t, closes, 1)
	assert.True(t, closes[0].RunAt.Equal(after.End))
	assert.Equal(t, closes[0].ID, *after.TaskEndID)

	// only once: inside the new window a reminder goes out instead
	f.at(after.End.Add(-12 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	again := f.reload(t, p.ID)
	assert.True(t, again.End.Equal(after.End))
	assert.Len(t, n.reminders, 1)
}

func TestSweep_ExtendsShortAutomatedPollAfterOpenNotification(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	p := f.radioPoll(t, func(p *domain.Poll) {
		p.AutomatedPoll = true
		p.End = t0.Add(24 * time.Hour)
	})

	f.at(t0)
	require.NoError(t, svc.OnOpen(ctx, p.ID))

	// the open stamp already sits inside the reminder window
	f.at(p.End.Add(-12 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))

	after := f.reload(t, p.ID)
	assert.True(t, after.Extended)
	assert.True(t, after.End.Equal(p.End.Add(48*time.Hour)))
	assert.Empty(t, n.reminders)
}

func TestSweep_ExtendsAutomatedPollOpenedLate(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	p := f.radioPoll(t, func(p *domain.Poll) {
		p.AutomatedPoll = true
		p.End = t0.Add(72 * time.Hour)
	})

	// the open job was lost; the sweep sends it inside the window
	f.at(p.End.Add(-20 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, 1, n.opened)

	after := f.reload(t, p.ID)
	require.True(t, after.Extended)
	assert.True(t, after.End.Equal(p.End.Add(48*time.Hour)))

	f.at(after.End.Add(-10 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))
	assert.True(t, f.reload(t, p.ID).End.Equal(after.End))
	assert.Len(t, n.reminders, 1)
}

func TestSweep_NoReminderWhileOpenNotificationPending(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{openErr: errors.New("broker unavailable")}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	p := f.radioPoll(t)

	f.at(p.End.Add(-12 * time.Hour))
	require.Error(t, svc.Sweep(ctx))
	assert.Empty(t, n.reminders)
	assert.Nil(t, f.reload(t, p.ID).LastNotification)

	n.openErr = nil
	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, 1, n.opened)
	assert.Empty(t, n.reminders)
	assert.NotNil(t, f.reload(t, p.ID).LastNotification)
}

func TestSweep_AutomatedPollAtQuorumNotExtended(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	voting := NewVotingService(f.repos, nil, nil, nil, nil, f.clock, "")
	ctx := context.Background()
	p := f.radioPoll(t, func(p *domain.Poll) { p.AutomatedPoll = true })

	f.at(t0)
	require.NoError(t, svc.OnOpen(ctx, p.ID))
	_, err := voting.CastVote(ctx, f.alice.ID, p.Slug, radioVote(p, 0))
	require.NoError(t, err)

	f.at(p.End.Add(-12 * time.Hour))
	require.NoError(t, svc.Sweep(ctx))

	after := f.reload(t, p.ID)
	assert.False(t, after.Extended)
	assert.True(t, after.End.Equal(p.End))
	assert.Len(t, n.reminders, 1)
}

func TestSweep_ReplaysMissedHooks(t *testing.T) {
	f := newFixture(t)
	n := &fakeNotifier{}
	svc := newLifecycle(f, n, newFakeScheduler(), nil)
	ctx := context.Background()
	open := f.radioPoll(t)
	ended := f.radioPoll(t, func(p *domain.Poll) {
		p.Slug = "ended"
		p.Start, p.End = t0.Add(-48*time.Hour), t0.Add(-time.Hour)
	})
	stale := f.radioPoll(t, func(p *domain.Poll) {
		p.Slug = "long-gone"
		p.Start, p.End = t0.Add(-90*24*time.Hour), t0.Add(-60*24*time.Hour)
	})

	f.at(t0.Add(time.Minute))
	require.NoError(t, svc.Sweep(ctx))

	assert.Equal(t, 1, n.opened)
	assert.Len(t, n.closed, 1)
	assert.NotNil(t, f.reload(t, open.ID).LastNotification)
	assert.NotNil(t, f.reload(t, ended.ID).LastNotification)
	assert.Nil(t, f.reload(t, stale.ID).LastNotification)

	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, 1, n.opened)
	assert.Len(t, n.closed, 1)
}
