package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"remo-voting/internal/domain"
	"remo-voting/internal/repository"
	"remo-voting/internal/scheduler"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxSlugAttempts = 50

// PollService handles organizer operations. It never writes vote counters.
type PollService struct {
	polls                repository.PollRepository
	directory            repository.Directory
	scheduler            scheduler.Scheduler
	cache                *CacheService
	validate             *validator.Validate
	adminGroup           string
	descriptionMinLength int
	logger               *zap.Logger
	clock                Clock
}

func NewPollService(repos *repository.Repositories, sched scheduler.Scheduler, cache *CacheService, adminGroup string, descriptionMinLength int, logger *zap.Logger, clock Clock) *PollService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &PollService{
		polls:                repos.Polls,
		directory:            repos.Directory,
		scheduler:            sched,
		cache:                cache,
		validate:             validator.New(),
		adminGroup:           adminGroup,
		descriptionMinLength: descriptionMinLength,
		logger:               logger,
		clock:                clock,
	}
}

func isAdmin(ctx context.Context, directory repository.Directory, adminGroup string, userID int64, at time.Time) (bool, error) {
	if userID <= 0 || adminGroup == "" {
		return false, nil
	}
	group, err := directory.GroupByName(ctx, adminGroup)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load admin group: %w", err)
	}
	ok, err := directory.IsActiveMember(ctx, userID, group.ID, at)
	if err != nil {
		return false, fmt.Errorf("failed to check admin membership: %w", err)
	}
	return ok, nil
}

func (s *PollService) requireAdmin(ctx context.Context, actorID int64) error {
	if actorID <= 0 {
		return domain.ErrUnauthenticated
	}
	ok, err := isAdmin(ctx, s.directory, s.adminGroup, actorID, s.clock())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: only %s members may manage polls", domain.ErrForbidden, s.adminGroup)
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidPoll, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidPoll, err)
}

// CreatePoll validates the request, stores the poll with zeroed counters
// and schedules its open and close hooks.
func (s *PollService) CreatePoll(ctx context.Context, actorID int64, req *domain.CreatePollRequest) (*domain.Poll, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if err := s.validatePoll(ctx, req); err != nil {
		return nil, err
	}

	poll := &domain.Poll{
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		Start:           req.Start.UTC(),
		End:             req.End.UTC(),
		ValidGroupID:    req.ValidGroupID,
		CreatedBy:       actorID,
		CommentsAllowed: req.CommentsAllowed,
		AutomatedPoll:   req.AutomatedPoll,
		BugID:           req.BugID,
	}
	for _, r := range req.RangePolls {
		rp := domain.RangePoll{Name: strings.TrimSpace(r.Name)}
		for _, nomineeID := range r.NomineeIDs {
			rp.Choices = append(rp.Choices, domain.RangePollChoice{NomineeID: nomineeID})
		}
		poll.RangePolls = append(poll.RangePolls, rp)
	}
	for _, r := range req.RadioPolls {
		rp := domain.RadioPoll{Question: strings.TrimSpace(r.Question)}
		for _, answer := range r.Answers {
			rp.Answers = append(rp.Answers, domain.RadioPollChoice{Answer: strings.TrimSpace(answer)})
		}
		poll.RadioPolls = append(poll.RadioPolls, rp)
	}

	base := domain.Slugify(poll.Name)
	var err error
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		poll.Slug = domain.SlugCandidate(base, attempt)
		err = s.polls.Create(ctx, poll)
		if !errors.Is(err, repository.ErrSlugTaken) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create poll: %w", err)
	}

	log := s.logger.With(zap.Int64("poll_id", poll.ID), zap.String("slug", poll.Slug))
	// A failure here leaves the poll without jobs; the lifecycle sweep
	// fires missed hooks, so the poll is still returned.
	if err := s.scheduleHooks(ctx, poll); err != nil {
		log.Error("Failed to schedule poll hooks", zap.Error(err))
	}
	log.Info("Poll created", zap.Int64("created_by", actorID))

	return s.polls.GetByID(ctx, poll.ID)
}

func (s *PollService) validatePoll(ctx context.Context, req *domain.CreatePollRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", domain.ErrInvalidPoll)
	}
	if err := s.validate.Struct(req); err != nil {
		return invalid(err)
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Description)) < s.descriptionMinLength {
		return fmt.Errorf("%w: description must be at least %d characters", domain.ErrInvalidPoll, s.descriptionMinLength)
	}
	if req.Start.Before(s.clock()) {
		return fmt.Errorf("%w: start must not be in the past", domain.ErrInvalidPoll)
	}
	if len(req.RangePolls)+len(req.RadioPolls) == 0 {
		return fmt.Errorf("%w: at least one range or radio poll is required", domain.ErrInvalidPoll)
	}

	var nominees []int64
	for _, r := range req.RangePolls {
		nominees = append(nominees, r.NomineeIDs...)
	}
	if len(nominees) > 0 {
		found, err := s.directory.GetUsers(ctx, nominees)
		if err != nil {
			return fmt.Errorf("failed to load nominees: %w", err)
		}
		for _, id := range nominees {
			if _, ok := found[id]; !ok {
				return fmt.Errorf("%w: nominee %d does not exist", domain.ErrInvalidPoll, id)
			}
		}
	}
	return nil
}

func (s *PollService) scheduleHooks(ctx context.Context, poll *domain.Poll) error {
	openJob := scheduler.NewJob(scheduler.KindOpen, poll.ID, poll.Start)
	closeJob := scheduler.NewJob(scheduler.KindClose, poll.ID, poll.End)
	if err := s.scheduler.Register(ctx, openJob); err != nil {
		return err
	}
	if err := s.scheduler.Register(ctx, closeJob); err != nil {
		_ = s.scheduler.Cancel(ctx, openJob.ID)
		return err
	}
	if err := s.polls.SetJobHandles(ctx, poll.ID, &openJob.ID, &closeJob.ID); err != nil {
		_ = s.scheduler.Cancel(ctx, openJob.ID)
		_ = s.scheduler.Cancel(ctx, closeJob.ID)
		return err
	}
	poll.TaskStartID, poll.TaskEndID = &openJob.ID, &closeJob.ID
	return nil
}

func (s *PollService) cancelHooks(ctx context.Context, poll *domain.Poll) {
	for _, handle := range []*string{poll.TaskStartID, poll.TaskEndID} {
		if handle == nil {
			continue
		}
		if err := s.scheduler.Cancel(ctx, *handle); err != nil {
			s.logger.Warn("Failed to cancel job", zap.String("job_id", *handle), zap.Int64("poll_id", poll.ID), zap.Error(err))
		}
	}
}

// ReschedulePoll moves a poll that has not opened yet and replaces its jobs
func (s *PollService) ReschedulePoll(ctx context.Context, actorID int64, slug string, req *domain.RescheduleRequest) (*domain.Poll, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", domain.ErrInvalidPoll)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(err)
	}

	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if !poll.IsFuture(now) {
		return nil, domain.ErrPollStarted
	}
	if req.Start.Before(now) {
		return nil, fmt.Errorf("%w: start must not be in the past", domain.ErrInvalidPoll)
	}

	s.cancelHooks(ctx, poll)
	if err := s.polls.UpdateSchedule(ctx, poll.ID, req.Start.UTC(), req.End.UTC(), poll.Extended); err != nil {
		return nil, fmt.Errorf("failed to reschedule poll: %w", err)
	}
	poll.Start, poll.End = req.Start.UTC(), req.End.UTC()
	if err := s.scheduleHooks(ctx, poll); err != nil {
		s.logger.Error("Failed to schedule poll hooks", zap.Int64("poll_id", poll.ID), zap.Error(err))
	}
	if err := s.cache.InvalidatePoll(ctx, poll.Slug); err != nil {
		s.logger.Warn("Failed to invalidate poll cache", zap.String("slug", poll.Slug), zap.Error(err))
	}

	s.logger.Info("Poll rescheduled",
		zap.Int64("poll_id", poll.ID),
		zap.Time("start", poll.Start),
		zap.Time("end", poll.End),
	)
	return s.polls.GetByID(ctx, poll.ID)
}

// DeletePoll cancels the poll's jobs and removes it with everything it owns
func (s *PollService) DeletePoll(ctx context.Context, actorID int64, slug string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	poll, err := s.polls.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	s.cancelHooks(ctx, poll)
	if err := s.polls.Delete(ctx, poll.ID); err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if err := s.cache.InvalidatePoll(ctx, poll.Slug); err != nil {
		s.logger.Warn("Failed to invalidate poll cache", zap.String("slug", poll.Slug), zap.Error(err))
	}
	s.logger.Info("Poll deleted", zap.Int64("poll_id", poll.ID), zap.String("slug", poll.Slug), zap.Int64("deleted_by", actorID))
	return nil
}
