package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaEventPublisher(t *testing.T) {
	_, err := NewKafkaEventPublisher(nil, nil)
	assert.Error(t, err)

	p, err := NewKafkaEventPublisher(&fakeProducer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "reservation-events", p.topic)
	assert.Equal(t, "reservation-service", p.serviceName)
}

func TestKafkaEventPublisher_PublishBookingEvent(t *testing.T) {
	producer := &fakeProducer{}
	p, err := NewKafkaEventPublisher(producer, &EventPublisherConfig{Topic: "events", ServiceName: "api"})
	require.NoError(t, err)

	booking := &domain.Booking{ID: "b-1", SlotID: "slot-1", DinerID: "diner-a", PartySize: 2}
	require.NoError(t, p.PublishBookingEvent(context.Background(), domain.EventBookingCreated, booking))

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, "events", msg.Topic)
	assert.Equal(t, "slot-1", string(msg.Key))
	assert.Equal(t, "booking.created", msg.Headers["event_type"])
	assert.Equal(t, "api", msg.Headers["source"])

	var event domain.ReservationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "b-1", event.BookingID)
	assert.Equal(t, msg.Headers["event_id"], event.EventID)
}

func TestKafkaEventPublisher_PublishPromotion(t *testing.T) {
	producer := &fakeProducer{}
	p, err := NewKafkaEventPublisher(producer, nil)
	require.NoError(t, err)

	until := time.Date(2026, 3, 10, 18, 15, 0, 0, time.UTC)
	require.NoError(t, p.PublishPromotion(context.Background(), &domain.Promotion{
		SlotID: "slot-1", AlertID: "alert-1", DinerID: "diner-b", ReservedUntil: until,
	}))

	var event domain.ReservationEvent
	require.NoError(t, json.Unmarshal(producer.messages[0].Value, &event))
	assert.Equal(t, domain.EventAlertPromoted, event.EventType)
	require.NotNil(t, event.HoldUntil)
	assert.True(t, until.Equal(*event.HoldUntil))
}

func TestKafkaEventPublisher_ProduceFailure(t *testing.T) {
	p, err := NewKafkaEventPublisher(&fakeProducer{failures: 1}, nil)
	require.NoError(t, err)

	err = p.PublishAlertEvent(context.Background(), domain.EventAlertExpired, &domain.Alert{ID: "a-1", SlotID: "slot-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert.expired")
}
