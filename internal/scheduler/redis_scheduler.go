package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"remo-voting/internal/metrics"
	"remo-voting/pkg/redis"

	"go.uber.org/zap"
)

// Options tunes the polling loops
type Options struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	BatchSize     int64
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 10 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	return o
}

// RedisScheduler keeps due times in a sorted set and payloads in a hash.
// Any number of instances may poll the same keys: ZREM decides which one
// claims a job.
type RedisScheduler struct {
	redis   *redis.Client
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	handler Handler
	sweeper Sweeper

	mu        sync.Mutex
	isRunning bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

func NewRedisScheduler(client *redis.Client, opts Options, logger *zap.Logger, m *metrics.Metrics) *RedisScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisScheduler{
		redis:   client,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Register stores the payload before the due entry so a claimed id always
// has a payload to load.
func (s *RedisScheduler) Register(ctx context.Context, job Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	kb := s.redis.KeyBuilder
	if err := s.redis.HSet(ctx, kb.KeySchedulerJobs(), job.ID, raw); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	if err := s.redis.ZAdd(ctx, kb.KeySchedulerDue(), score(job.RunAt), job.ID); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	s.logger.Debug("Job registered",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int64("poll_id", job.PollID),
		zap.Time("run_at", job.RunAt),
	)
	return nil
}

// Cancel removes a job. Unknown ids are ignored.
func (s *RedisScheduler) Cancel(ctx context.Context, jobID string) error {
	kb := s.redis.KeyBuilder
	if _, err := s.redis.ZRem(ctx, kb.KeySchedulerDue(), jobID); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if err := s.redis.HDel(ctx, kb.KeySchedulerJobs(), jobID); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// Bind sets the receivers of due jobs and sweeps. It must be called before Start.
func (s *RedisScheduler) Bind(handler Handler, sweeper Sweeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.sweeper = sweeper
}

// RunDue claims and dispatches every job due at now and returns how many
// this instance claimed.
func (s *RedisScheduler) RunDue(ctx context.Context) (int, error) {
	kb := s.redis.KeyBuilder
	now := s.now()
	ids, err := s.redis.ZRangeByScore(ctx, kb.KeySchedulerDue(), "-inf", strconv.FormatInt(now.UnixMilli(), 10), s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	claimed := 0
	for _, id := range ids {
		n, err := s.redis.ZRem(ctx, kb.KeySchedulerDue(), id)
		if err != nil {
			return claimed, fmt.Errorf("claim job: %w", err)
		}
		if n == 0 {
			continue // another instance got it
		}
		claimed++

		raw, err := s.redis.HGet(ctx, kb.KeySchedulerJobs(), id)
		if errors.Is(err, redis.Nil) {
			s.metrics.Job("unknown", "stale")
			continue
		}
		if err != nil {
			return claimed, fmt.Errorf("load job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.logger.Warn("Invalid job payload, dropping", zap.String("job_id", id), zap.Error(err))
			_ = s.redis.HDel(ctx, kb.KeySchedulerJobs(), id)
			s.metrics.Job("unknown", "invalid")
			continue
		}
		s.execute(ctx, &job)
	}
	return claimed, nil
}

func (s *RedisScheduler) execute(ctx context.Context, job *Job) {
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int64("poll_id", job.PollID))

	err := s.dispatch(ctx, job)
	if err == nil {
		if delErr := s.redis.HDel(ctx, s.redis.KeyBuilder.KeySchedulerJobs(), job.ID); delErr != nil {
			log.Warn("Failed to drop finished job payload", zap.Error(delErr))
		}
		s.metrics.Job(job.Kind, "done")
		log.Info("Job completed")
		return
	}

	log.Warn("Job failed", zap.Int("attempt", job.Attempt+1), zap.Error(err))
	if retryErr := s.retry(ctx, job, err); retryErr != nil {
		log.Error("Failed to reschedule job", zap.Error(retryErr))
	}
}

func (s *RedisScheduler) dispatch(ctx context.Context, job *Job) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no handler bound")
	}
	switch job.Kind {
	case KindOpen:
		return h.OnOpen(ctx, job.PollID)
	case KindClose:
		return h.OnClose(ctx, job.PollID)
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}

// retry puts the job back with a linear backoff, or moves it to the DLQ
// once MaxAttempts is reached.
func (s *RedisScheduler) retry(ctx context.Context, job *Job, cause error) error {
	kb := s.redis.KeyBuilder
	job.Attempt++
	job.LastError = cause.Error()
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if job.Attempt >= MaxAttempts {
		if err := s.redis.RPush(ctx, kb.KeySchedulerDLQ(), raw); err != nil {
			return fmt.Errorf("dlq push: %w", err)
		}
		s.metrics.Job(job.Kind, "dead")
		s.logger.Warn("Job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return s.redis.HDel(ctx, kb.KeySchedulerJobs(), job.ID)
	}

	job.RunAt = s.now().Add(RetryBackoff * time.Duration(job.Attempt))
	s.metrics.Job(job.Kind, "retry")
	return s.Register(ctx, *job)
}

// Start begins the job and sweep loops
func (s *RedisScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.handler == nil {
		return fmt.Errorf("scheduler started without a handler")
	}

	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx, s.stop)

	s.isRunning = true
	s.logger.Info("Scheduler started",
		zap.Duration("poll_interval", s.opts.PollInterval),
		zap.Duration("sweep_interval", s.opts.SweepInterval),
	)
	return nil
}

// Stop ends the loops and waits for an in-flight batch to finish
func (s *RedisScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *RedisScheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	jobs := time.NewTicker(s.opts.PollInterval)
	defer jobs.Stop()
	sweeps := time.NewTicker(s.opts.SweepInterval)
	defer sweeps.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-jobs.C:
			if _, err := s.RunDue(ctx); err != nil {
				s.logger.Error("Scheduler tick failed", zap.Error(err))
			}
		case <-sweeps.C:
			s.mu.Lock()
			sw := s.sweeper
			s.mu.Unlock()
			if sw == nil {
				continue
			}
			if err := sw.Sweep(ctx); err != nil {
				s.logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}
