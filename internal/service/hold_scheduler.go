package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeHoldExpire is the asynq task type fired at a hold deadline
const TypeHoldExpire = "hold:expire"

// HoldExpirePayload identifies the hold a task was scheduled for
type HoldExpirePayload struct {
	SlotID        string    `json:"slot_id"`
	ReservedUntil time.Time `json:"reserved_until"`
}

// HoldScheduler arranges for ExpireHold to run at a hold deadline. The expiry
// sweeper remains the authority; a scheduled task only shortens the gap.
type HoldScheduler interface {
	ScheduleExpiry(ctx context.Context, slotID string, until time.Time) error
}

// NewHoldExpireTask builds the delayed task for one hold
func NewHoldExpireTask(slotID string, until time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(HoldExpirePayload{SlotID: slotID, ReservedUntil: until})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeHoldExpire, b)
	opts := []asynq.Option{
		asynq.ProcessAt(until),
		asynq.TaskID(holdTaskID(slotID, until)),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
	}
	return task, opts, nil
}

func holdTaskID(slotID string, until time.Time) string {
	return fmt.Sprintf("hold:%s:%d", slotID, until.UnixMilli())
}

// AsynqHoldScheduler enqueues hold expiry tasks on Redis via asynq
type AsynqHoldScheduler struct {
	client *asynq.Client
	queue  string
}

// NewAsynqHoldScheduler creates a scheduler on the given asynq client
func NewAsynqHoldScheduler(client *asynq.Client, queue string) *AsynqHoldScheduler {
	if queue == "" {
		queue = "default"
	}
	return &AsynqHoldScheduler{client: client, queue: queue}
}

// ScheduleExpiry enqueues the task. Scheduling the same hold twice is a no-op.
func (s *AsynqHoldScheduler) ScheduleExpiry(ctx context.Context, slotID string, until time.Time) error {
	task, opts, err := NewHoldExpireTask(slotID, until)
	if err != nil {
		return fmt.Errorf("failed to build hold expiry task: %w", err)
	}
	opts = append(opts, asynq.Queue(s.queue))

	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue hold expiry for slot %s: %w", slotID, err)
	}
	return nil
}

// Close closes the asynq client
func (s *AsynqHoldScheduler) Close() error {
	return s.client.Close()
}

// NoOpHoldScheduler leaves expiry entirely to the sweeper
type NoOpHoldScheduler struct{}

// ScheduleExpiry is a no-op
func (NoOpHoldScheduler) ScheduleExpiry(ctx context.Context, slotID string, until time.Time) error {
	return nil
}
