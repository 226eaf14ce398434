package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/kafka"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type producedJSON struct {
	topic   string
	key     string
	value   interface{}
	headers map[string]string
}

// fakeProducer records produced messages and can fail the first N sends
type fakeProducer struct {
	messages []*kafka.Message
	jsons    []producedJSON
	failures int
}

func (p *fakeProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker not available")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker not available")
	}
	p.jsons = append(p.jsons, producedJSON{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func testNotification() *domain.ClaimNotification {
	start := time.Date(2026, 3, 13, 19, 30, 0, 0, time.UTC)
	return &domain.ClaimNotification{
		NotificationID: "n-1",
		AlertID:        "alert-1",
		DinerID:        "diner-b",
		SlotID:         "slot-1",
		VenueName:      "Harbour House",
		SlotStart:      start,
		PartyMin:       2,
		PartyMax:       4,
		HoldDeadline:   start.Add(-48 * time.Hour),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	producer := &fakeProducer{}
	n := NewKafkaNotifier(producer, "", "")

	require.NoError(t, n.Notify(context.Background(), testNotification()))

	require.Len(t, producer.jsons, 1)
	msg := producer.jsons[0]
	assert.Equal(t, "slot-claim-notifications", msg.topic)
	assert.Equal(t, "slot-1", msg.key)
	assert.Equal(t, "slot.claim_offered", msg.headers["event_type"])
	assert.Equal(t, "reservation-service", msg.headers["source"])
}

func TestKafkaNotifier_Failure(t *testing.T) {
	producer := &fakeProducer{failures: 1}
	n := NewKafkaNotifier(producer, "claims", "test")

	err := n.Notify(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot-1")
}

func TestRetryingNotifier_RecoversFromTransientFailure(t *testing.T) {
	producer := &fakeProducer{failures: 2}
	dlq := &fakeProducer{}
	handler := retry.NewDLQHandler(retry.NewKafkaDLQPublisher(dlq, "test"), &retry.Config{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, "test", nil)
	n := NewRetryingNotifier(NewKafkaNotifier(producer, "claims", "test"), handler, "claims")

	require.NoError(t, n.Notify(context.Background(), testNotification()))
	assert.Len(t, producer.jsons, 1)
	assert.Empty(t, dlq.jsons)
}

func TestRetryingNotifier_ParksOnDLQ(t *testing.T) {
	producer := &fakeProducer{failures: 10}
	dlq := &fakeProducer{}
	handler := retry.NewDLQHandler(retry.NewKafkaDLQPublisher(dlq, "test"), &retry.Config{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, "test", nil)
	n := NewRetryingNotifier(NewKafkaNotifier(producer, "claims", "test"), handler, "claims")

	err := n.Notify(context.Background(), testNotification())
	require.Error(t, err)

	require.Len(t, dlq.jsons, 1)
	parked := dlq.jsons[0]
	assert.Equal(t, "claims.dlq", parked.topic)
	assert.Equal(t, "slot-1", parked.key)

	msg, ok := parked.value.(*retry.DLQMessage)
	require.True(t, ok)
	assert.Equal(t, 2, msg.Attempts)
	assert.Equal(t, "diner-b", msg.Headers["diner_id"])

	var note domain.ClaimNotification
	require.NoError(t, json.Unmarshal(msg.Payload, &note))
	assert.Equal(t, "alert-1", note.AlertID)
}

func TestLogAndNoOpNotifiers(t *testing.T) {
	assert.NoError(t, NewLogNotifier().Notify(context.Background(), testNotification()))
	assert.NoError(t, NoOpNotifier{}.Notify(context.Background(), testNotification()))
}
