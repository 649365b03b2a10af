package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/metrics"
	"remo-voting/internal/notifier"
	"remo-voting/internal/repository"
	"remo-voting/internal/scheduler"
	"remo-voting/pkg/redis"

	"go.uber.org/zap"
)

// Hook names used for locks and metrics
const (
	HookOpen     = "open"
	HookClose    = "close"
	HookReminder = "reminder"
)

// Hook outcomes
const (
	outcomeSent    = "sent"
	outcomeSkipped = "skipped"
	outcomeLocked  = "locked"
	outcomeFailed  = "failed"
	outcomeLost    = "lost_race"
)

// LifecycleOptions tunes reminders and automatic extension
type LifecycleOptions struct {
	ReminderWindow  time.Duration
	ExtensionPeriod time.Duration
	ExtensionQuorum float64
}

// LifecycleService implements the scheduled open and close hooks and the
// periodic sweep. Every entry point is safe to run more than once: the
// poll's last_notification stamp decides whether a notification is due and
// a per-hook lock keeps concurrent runs from sending twice. None of these
// paths touch vote counters.
type LifecycleService struct {
	polls       repository.PollRepository
	votes       repository.VoteRepository
	eligibility *EligibilityChecker
	notifier    notifier.Notifier
	scheduler   scheduler.Scheduler
	locker      Locker
	keys        *redis.KeyBuilder
	cache       *CacheService
	opts        LifecycleOptions
	metrics     *metrics.Metrics
	logger      *zap.Logger
	clock       Clock
}

func NewLifecycleService(
	repos *repository.Repositories,
	n notifier.Notifier,
	sched scheduler.Scheduler,
	locker Locker,
	keys *redis.KeyBuilder,
	cache *CacheService,
	opts LifecycleOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
	clock Clock,
) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock
	}
	if keys == nil {
		keys = redis.NewKeyBuilder("")
	}
	return &LifecycleService{
		polls:       repos.Polls,
		votes:       repos.Votes,
		eligibility: NewEligibilityChecker(repos.Directory),
		notifier:    n,
		scheduler:   sched,
		locker:      locker,
		keys:        keys,
		cache:       cache,
		opts:        opts,
		metrics:     m,
		logger:      logger,
		clock:       clock,
	}
}

var _ scheduler.Handler = (*LifecycleService)(nil)
var _ scheduler.Sweeper = (*LifecycleService)(nil)

// OnOpen notifies eligible voters that the poll opened. It does nothing
// before start, after end, or when a notification was already recorded
// at or after start.
func (s *LifecycleService) OnOpen(ctx context.Context, pollID int64) error {
	due := func(p *domain.Poll, now time.Time) bool {
		return p.IsOpen(now) && !p.NotifiedSince(p.Start)
	}
	return s.fire(ctx, pollID, HookOpen, due, func(ctx context.Context, p *domain.Poll, now time.Time) error {
		voters, err := s.eligibility.Voters(ctx, p, now)
		if err != nil {
			return err
		}
		return s.notifier.PollOpened(ctx, p, voters)
	})
}

// OnClose announces the final results. It does nothing before end or when
// a notification was already recorded at or after end.
func (s *LifecycleService) OnClose(ctx context.Context, pollID int64) error {
	due := func(p *domain.Poll, now time.Time) bool {
		return p.IsClosed(now) && !p.NotifiedSince(p.End)
	}
	return s.fire(ctx, pollID, HookClose, due, func(ctx context.Context, p *domain.Poll, now time.Time) error {
		// results cached while the poll was open still say closed=false
		if err := s.cache.InvalidatePoll(ctx, p.Slug); err != nil {
			s.logger.Warn("Failed to invalidate results cache", zap.String("slug", p.Slug), zap.Error(err))
		}
		total, err := s.votes.CountVotes(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("count votes: %w", err)
		}
		results := Tally(p, total, true)
		voters, err := s.eligibility.Voters(ctx, p, p.End)
		if err != nil {
			return err
		}
		return s.notifier.PollClosed(ctx, p, results, voters)
	})
}

type hookCheck func(p *domain.Poll, now time.Time) bool
type hookSend func(ctx context.Context, p *domain.Poll, now time.Time) error

func (s *LifecycleService) fire(ctx context.Context, pollID int64, hook string, due hookCheck, send hookSend) error {
	log := s.logger.With(zap.Int64("poll_id", pollID), zap.String("hook", hook))

	poll, err := s.polls.GetByID(ctx, pollID)
	if errors.Is(err, domain.ErrNotFound) {
		// deleted after the job was registered
		log.Info("Poll gone, hook skipped")
		s.metrics.Hook(hook, outcomeSkipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load poll %d: %w", pollID, err)
	}
	if !due(poll, s.clock()) {
		log.Debug("Hook not due, skipped")
		s.metrics.Hook(hook, outcomeSkipped)
		return nil
	}

	release, err := s.locker.TryLock(ctx, s.keys.KeyHookLock(pollID, hook), redis.TTLHookLock)
	if err != nil {
		return fmt.Errorf("lock %s hook: %w", hook, err)
	}
	if release == nil {
		log.Info("Hook already running elsewhere")
		s.metrics.Hook(hook, outcomeLocked)
		return nil
	}
	defer release()

	// The holder before us may have finished between the first read and the lock.
	poll, err = s.polls.GetByID(ctx, pollID)
	if err != nil {
		return fmt.Errorf("reload poll %d: %w", pollID, err)
	}
	now := s.clock()
	if !due(poll, now) {
		s.metrics.Hook(hook, outcomeSkipped)
		return nil
	}

	if err := send(ctx, poll, now); err != nil {
		s.metrics.Hook(hook, outcomeFailed)
		log.Warn("Hook dispatch failed", zap.Error(err))
		return fmt.Errorf("%s hook for poll %d: %w", hook, pollID, err)
	}

	won, err := s.polls.RecordNotification(ctx, pollID, poll.LastNotification, now, hook == HookOpen, hook == HookClose)
	if err != nil {
		// Sent but not recorded; a retry may resend.
		return fmt.Errorf("record notification: %w", err)
	}
	if !won {
		s.metrics.Hook(hook, outcomeLost)
		log.Warn("Notification stamp changed during dispatch")
		return nil
	}
	s.metrics.Hook(hook, outcomeSent)
	log.Info("Hook completed", zap.Time("notified_at", now))
	return nil
}

// Sweep replays hooks whose job was lost, sends reminders for polls
// ending soon, and extends automated polls that are short of quorum.
// Extension does not wait on the reminder stamp; a poll whose open
// notification is still owed gets neither until it is sent.
// It keeps going past per-poll failures and returns them joined.
func (s *LifecycleService) Sweep(ctx context.Context) error {
	now := s.clock()
	var errs []error

	polls, err := s.polls.List(ctx)
	if err != nil {
		return fmt.Errorf("list polls: %w", err)
	}
	for _, p := range polls {
		switch {
		case p.IsOpen(now) && !p.NotifiedSince(p.Start):
			errs = append(errs, s.OnOpen(ctx, p.ID))
		case p.IsClosed(now) && now.Sub(p.End) < s.opts.ReminderWindow && !p.NotifiedSince(p.End):
			errs = append(errs, s.OnClose(ctx, p.ID))
		}
	}

	ending, err := s.polls.ListEndingBetween(ctx, now, now.Add(s.opts.ReminderWindow))
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("list ending polls: %w", err))...)
	}
	for i := range ending {
		p := &ending[i]
		// A reminder stamp would satisfy the open check, so the open
		// notification has to land first.
		if !p.IsOpen(now) || !p.NotifiedSince(p.Start) {
			continue
		}
		if s.reminded(p) && !extendable(p) {
			continue
		}
		errs = append(errs, s.remindOrExtend(ctx, p, now))
	}
	return errors.Join(errs...)
}

// reminded reports whether a notification already went out in the window
// before end. The open notification counts.
func (s *LifecycleService) reminded(p *domain.Poll) bool {
	return p.NotifiedSince(p.End.Add(-s.opts.ReminderWindow))
}

func extendable(p *domain.Poll) bool {
	return p.AutomatedPoll && !p.Extended
}

func (s *LifecycleService) remindOrExtend(ctx context.Context, p *domain.Poll, now time.Time) error {
	release, err := s.locker.TryLock(ctx, s.keys.KeyHookLock(p.ID, HookReminder), redis.TTLHookLock)
	if err != nil || release == nil {
		return err
	}
	defer release()

	// The holder before us may have reminded or extended already.
	fresh, err := s.polls.GetByID(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("reload poll %d: %w", p.ID, err)
	}
	p = fresh

	voters, err := s.eligibility.Voters(ctx, p, now)
	if err != nil {
		return err
	}
	voted, err := s.votes.VoterIDs(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load voters: %w", err)
	}

	if extendable(p) && float64(len(voted)) < s.opts.ExtensionQuorum*float64(len(voters)) {
		return s.extend(ctx, p)
	}
	if s.reminded(p) {
		return nil
	}

	var pending []domain.User
	for _, u := range voters {
		if !voted[u.ID] {
			pending = append(pending, u)
		}
	}
	if len(pending) > 0 {
		if err := s.notifier.PollReminder(ctx, p, pending); err != nil {
			s.metrics.Hook(HookReminder, outcomeFailed)
			return fmt.Errorf("reminder for poll %d: %w", p.ID, err)
		}
	}
	if _, err := s.polls.RecordNotification(ctx, p.ID, p.LastNotification, now, false, false); err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	s.metrics.Hook(HookReminder, outcomeSent)
	s.logger.Info("Reminder sent", zap.Int64("poll_id", p.ID), zap.Int("recipients", len(pending)))
	return nil
}

// extend pushes the end of an automated poll out once and moves its close job
func (s *LifecycleService) extend(ctx context.Context, p *domain.Poll) error {
	newEnd := p.End.Add(s.opts.ExtensionPeriod)
	if err := s.polls.UpdateSchedule(ctx, p.ID, p.Start, newEnd, true); err != nil {
		return fmt.Errorf("extend poll %d: %w", p.ID, err)
	}
	if p.TaskEndID != nil {
		if err := s.scheduler.Cancel(ctx, *p.TaskEndID); err != nil {
			s.logger.Warn("Failed to cancel close job", zap.Int64("poll_id", p.ID), zap.Error(err))
		}
	}
	job := scheduler.NewJob(scheduler.KindClose, p.ID, newEnd)
	if err := s.scheduler.Register(ctx, job); err != nil {
		return fmt.Errorf("reschedule close for poll %d: %w", p.ID, err)
	}
	if err := s.polls.SetJobHandles(ctx, p.ID, p.TaskStartID, &job.ID); err != nil {
		return fmt.Errorf("store close job for poll %d: %w", p.ID, err)
	}
	if err := s.cache.InvalidatePoll(ctx, p.Slug); err != nil {
		s.logger.Warn("Failed to invalidate poll cache", zap.String("slug", p.Slug), zap.Error(err))
	}
	s.logger.Info("Poll extended for quorum",
		zap.Int64("poll_id", p.ID),
		zap.Time("old_end", p.End),
		zap.Time("new_end", newEnd),
	)
	return nil
}
