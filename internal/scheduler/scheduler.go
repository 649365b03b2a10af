// Package scheduler runs one-shot poll lifecycle jobs at their due time.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// KindOpen fires the open hook at poll start.
	KindOpen = "open"
	// KindClose fires the close hook at poll end.
	KindClose = "close"
	// MaxAttempts is the number of failed runs before a job goes to the DLQ.
	MaxAttempts = 3
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff = 10 * time.Second
)

// Job is a scheduled hook invocation. ID is the opaque handle stored on the poll.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	PollID    int64     `json:"poll_id"`
	RunAt     time.Time `json:"run_at"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJob builds a job with a fresh handle
func NewJob(kind string, pollID int64, runAt time.Time) Job {
	return Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		PollID:    pollID,
		RunAt:     runAt,
		CreatedAt: time.Now().UTC(),
	}
}

// Scheduler registers and cancels one-shot jobs
type Scheduler interface {
	Register(ctx context.Context, job Job) error
	Cancel(ctx context.Context, jobID string) error
}

// Handler receives due jobs. An error makes the job retry.
type Handler interface {
	OnOpen(ctx context.Context, pollID int64) error
	OnClose(ctx context.Context, pollID int64) error
}

// Sweeper runs periodic maintenance next to the job loop
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// NoopScheduler accepts jobs and drops them. Used when Redis is not configured.
type NoopScheduler struct {
	logger *zap.Logger
}

func NewNoopScheduler(logger *zap.Logger) *NoopScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopScheduler{logger: logger}
}

func (n *NoopScheduler) Register(_ context.Context, job Job) error {
	n.logger.Info("Scheduler disabled, job not registered",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int64("poll_id", job.PollID),
		zap.Time("run_at", job.RunAt),
	)
	return nil
}

func (n *NoopScheduler) Cancel(_ context.Context, jobID string) error {
	n.logger.Debug("Scheduler disabled, nothing to cancel", zap.String("job_id", jobID))
	return nil
}
