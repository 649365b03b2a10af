package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remo-voting/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafka.Writer the notifier needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notification events to a topic. Messages are
// keyed by poll slug so every event of a poll lands on one partition and
// downstream mailers see them in order.
type KafkaNotifier struct {
	writer messageWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewKafkaNotifier waits for all in-sync replicas so a leader failover
// right after the write cannot lose a notification.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
	}
	return newKafkaNotifier(w, logger)
}

func newKafkaNotifier(w messageWriter, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{writer: w, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (k *KafkaNotifier) PollOpened(ctx context.Context, poll *domain.Poll, recipients []domain.User) error {
	return k.publish(ctx, NewEvent(EventPollOpened, poll, recipients, nil, k.now()))
}

func (k *KafkaNotifier) PollReminder(ctx context.Context, poll *domain.Poll, recipients []domain.User) error {
	return k.publish(ctx, NewEvent(EventPollReminder, poll, recipients, nil, k.now()))
}

func (k *KafkaNotifier) PollClosed(ctx context.Context, poll *domain.Poll, results *domain.PollResults, recipients []domain.User) error {
	return k.publish(ctx, NewEvent(EventPollClosed, poll, recipients, results, k.now()))
}

func (k *KafkaNotifier) publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Slug),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s event to kafka: %w", ev.Type, err)
	}

	k.logger.Info("Notification published",
		zap.String("type", ev.Type),
		zap.String("slug", ev.Slug),
		zap.Int("recipients", len(ev.Recipients)),
	)
	return nil
}

func (k *KafkaNotifier) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
