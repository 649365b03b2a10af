package notifier

import (
	"context"

	"remo-voting/internal/domain"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used when no brokers are configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) PollOpened(_ context.Context, poll *domain.Poll, recipients []domain.User) error {
	l.log(EventPollOpened, poll, len(recipients))
	return nil
}

func (l *LogNotifier) PollReminder(_ context.Context, poll *domain.Poll, recipients []domain.User) error {
	l.log(EventPollReminder, poll, len(recipients))
	return nil
}

func (l *LogNotifier) PollClosed(_ context.Context, poll *domain.Poll, results *domain.PollResults, recipients []domain.User) error {
	fields := []zap.Field{
		zap.String("type", EventPollClosed),
		zap.String("slug", poll.Slug),
		zap.Int("recipients", len(recipients)),
	}
	if results != nil {
		fields = append(fields, zap.Int("total_votes", results.TotalVotes))
	}
	l.logger.Info("Notification (log only)", fields...)
	return nil
}

func (l *LogNotifier) log(kind string, poll *domain.Poll, recipients int) {
	l.logger.Info("Notification (log only)",
		zap.String("type", kind),
		zap.String("slug", poll.Slug),
		zap.Int("recipients", recipients),
	)
}
