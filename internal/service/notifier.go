package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/kafka"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/retry"
	"go.uber.org/zap"
)

// NotificationDispatcher delivers claim notifications to promoted diners.
// Delivery is fire-and-forget relative to the slot state machine: a failed
// dispatch never undoes the hold.
type NotificationDispatcher interface {
	Notify(ctx context.Context, n *domain.ClaimNotification) error
}

// MessageProducer is the subset of kafka.Producer the service depends on
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

var _ MessageProducer = (*kafka.Producer)(nil)

// KafkaNotifier hands claim notifications to the mailer via a Kafka topic
type KafkaNotifier struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// NewKafkaNotifier creates a notifier writing to topic
func NewKafkaNotifier(producer MessageProducer, topic, serviceName string) *KafkaNotifier {
	if topic == "" {
		topic = "slot-claim-notifications"
	}
	if serviceName == "" {
		serviceName = "reservation-service"
	}
	return &KafkaNotifier{producer: producer, topic: topic, serviceName: serviceName}
}

// Topic returns the notification topic
func (n *KafkaNotifier) Topic() string {
	return n.topic
}

// Notify produces one notification keyed by slot
func (n *KafkaNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	headers := map[string]string{
		"event_type":   "slot.claim_offered",
		"event_id":     note.NotificationID,
		"source":       n.serviceName,
		"content_type": "application/json",
	}
	if err := n.producer.ProduceJSON(ctx, n.topic, note.SlotID, note, headers); err != nil {
		return fmt.Errorf("failed to dispatch claim notification for slot %s: %w", note.SlotID, err)
	}
	return nil
}

// RetryingNotifier retries a dispatcher with backoff and parks notifications
// that never go through on the dead letter topic
type RetryingNotifier struct {
	next    NotificationDispatcher
	handler *retry.DLQHandler
	topic   string
}

// NewRetryingNotifier wraps next. topic names the original topic used to
// derive the DLQ topic.
func NewRetryingNotifier(next NotificationDispatcher, handler *retry.DLQHandler, topic string) *RetryingNotifier {
	return &RetryingNotifier{next: next, handler: handler, topic: topic}
}

// Notify dispatches with retries
func (n *RetryingNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal claim notification: %w", err)
	}

	msgCtx := &retry.MessageContext{
		ID:      note.NotificationID,
		Topic:   n.topic,
		Key:     note.SlotID,
		Payload: payload,
		Headers: map[string]string{"diner_id": note.DinerID, "alert_id": note.AlertID},
	}

	return n.handler.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		return n.next.Notify(ctx, note)
	})
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification
func (LogNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	logger.Get().InfoContext(ctx, "claim notification",
		zap.String("diner_id", note.DinerID),
		zap.String("slot_id", note.SlotID),
		zap.String("venue", note.VenueName),
		zap.Time("slot_start", note.SlotStart),
		zap.Int("party_min", note.PartyMin),
		zap.Int("party_max", note.PartyMax),
		zap.Time("hold_deadline", note.HoldDeadline),
		zap.Duration("hold_remaining", time.Until(note.HoldDeadline)),
	)
	return nil
}

// NoOpNotifier drops notifications
type NoOpNotifier struct{}

// Notify is a no-op
func (NoOpNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	return nil
}
