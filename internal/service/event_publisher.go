package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/kafka"
)

// EventPublisher defines the interface for publishing reservation events
type EventPublisher interface {
	// PublishBookingEvent publishes booking.created or booking.cancelled
	PublishBookingEvent(ctx context.Context, eventType domain.ReservationEventType, booking *domain.Booking) error

	// PublishAlertEvent publishes alert.registered, alert.withdrawn,
	// alert.expired or alert.claimed
	PublishAlertEvent(ctx context.Context, eventType domain.ReservationEventType, alert *domain.Alert) error

	// PublishPromotion publishes alert.promoted
	PublishPromotion(ctx context.Context, p *domain.Promotion) error

	// Close closes the event publisher
	Close() error
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Topic       string
	ServiceName string
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// NewKafkaEventPublisher creates a new Kafka event publisher on a shared producer
func NewKafkaEventPublisher(producer MessageProducer, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if cfg == nil {
		cfg = &EventPublisherConfig{}
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "reservation-events"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "reservation-service"
	}

	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// PublishBookingEvent publishes a booking event
func (p *KafkaEventPublisher) PublishBookingEvent(ctx context.Context, eventType domain.ReservationEventType, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.NewBookingEvent(eventType, booking, uuid.New().String()))
}

// PublishAlertEvent publishes an alert event
func (p *KafkaEventPublisher) PublishAlertEvent(ctx context.Context, eventType domain.ReservationEventType, alert *domain.Alert) error {
	return p.publishEvent(ctx, domain.NewAlertEvent(eventType, alert, uuid.New().String()))
}

// PublishPromotion publishes a promotion event
func (p *KafkaEventPublisher) PublishPromotion(ctx context.Context, promotion *domain.Promotion) error {
	return p.publishEvent(ctx, domain.NewPromotionEvent(promotion, uuid.New().String()))
}

// Close is a no-op; the shared producer is closed by its owner
func (p *KafkaEventPublisher) Close() error {
	return nil
}

// publishEvent publishes a reservation event to Kafka
func (p *KafkaEventPublisher) publishEvent(ctx context.Context, event *domain.ReservationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(event.EventType),
		"event_id":     event.EventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}

	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// PublishBookingEvent is a no-op
func (p *NoOpEventPublisher) PublishBookingEvent(ctx context.Context, eventType domain.ReservationEventType, booking *domain.Booking) error {
	return nil
}

// PublishAlertEvent is a no-op
func (p *NoOpEventPublisher) PublishAlertEvent(ctx context.Context, eventType domain.ReservationEventType, alert *domain.Alert) error {
	return nil
}

// PublishPromotion is a no-op
func (p *NoOpEventPublisher) PublishPromotion(ctx context.Context, promotion *domain.Promotion) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
