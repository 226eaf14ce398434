package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/metrics"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"go.uber.org/zap"
)

// TypeClaimNotify is the asynq task type that delivers a claim notification
const TypeClaimNotify = "claim:notify"

var (
	// ErrClaimQueueFull is returned when the in-process dispatch buffer is full
	ErrClaimQueueFull = errors.New("claim notification queue is full")

	// ErrClaimQueueClosed is returned after the dispatcher was closed
	ErrClaimQueueClosed = errors.New("claim notification queue is closed")
)

// ClaimQueue accepts claim notifications for delivery after the promotion
// committed. Enqueue must return quickly; delivery happens elsewhere.
type ClaimQueue interface {
	Enqueue(ctx context.Context, note *domain.ClaimNotification) error
}

// AsyncDispatcherConfig contains configuration for the in-process dispatcher
type AsyncDispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single delivery, retries included
	Timeout time.Duration
}

// AsyncDispatcher delivers claim notifications on a fixed pool of goroutines
// fed by a bounded buffer. Notifications still buffered at process exit are
// lost; the asynq queue is the durable option.
type AsyncDispatcher struct {
	notifier NotificationDispatcher
	timeout  time.Duration
	notes    chan *domain.ClaimNotification

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher starts the worker pool
func NewAsyncDispatcher(notifier NotificationDispatcher, cfg *AsyncDispatcherConfig) *AsyncDispatcher {
	workers, size, timeout := 4, 256, 10*time.Second
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.QueueSize > 0 {
			size = cfg.QueueSize
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
	}
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	d := &AsyncDispatcher{
		notifier: notifier,
		timeout:  timeout,
		notes:    make(chan *domain.ClaimNotification, size),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// Enqueue buffers the notification without blocking
func (d *AsyncDispatcher) Enqueue(ctx context.Context, note *domain.ClaimNotification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClaimQueueClosed
	}
	select {
	case d.notes <- note:
		return nil
	default:
		return ErrClaimQueueFull
	}
}

// Close stops accepting notifications and waits for the buffer to drain
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.notes)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for note := range d.notes {
		d.deliver(note)
	}
}

func (d *AsyncDispatcher) deliver(note *domain.ClaimNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, note); err != nil {
		metrics.RecordNotificationFailure(ctx)
		logger.Get().Error("failed to dispatch claim notification",
			zap.String("slot_id", note.SlotID),
			zap.String("diner_id", note.DinerID),
			zap.String("alert_id", note.AlertID),
			zap.Error(err),
		)
	}
}

// NewClaimNotifyTask builds the delivery task for one notification. The task
// id is the alert id, so an alert is offered at most once.
func NewClaimNotifyTask(note *domain.ClaimNotification) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(note)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeClaimNotify, b)
	opts := []asynq.Option{
		asynq.TaskID("claim:" + note.AlertID),
		asynq.MaxRetry(5),
		asynq.Deadline(note.HoldDeadline),
		asynq.Retention(time.Hour),
	}
	return task, opts, nil
}

// AsynqClaimQueue enqueues claim notifications as asynq tasks
type AsynqClaimQueue struct {
	client *asynq.Client
	queue  string
}

// NewAsynqClaimQueue creates a queue on the given asynq client
func NewAsynqClaimQueue(client *asynq.Client, queue string) *AsynqClaimQueue {
	if queue == "" {
		queue = "default"
	}
	return &AsynqClaimQueue{client: client, queue: queue}
}

// Enqueue stores the delivery task in Redis. A duplicate alert is a no-op.
func (q *AsynqClaimQueue) Enqueue(ctx context.Context, note *domain.ClaimNotification) error {
	task, opts, err := NewClaimNotifyTask(note)
	if err != nil {
		return fmt.Errorf("failed to build claim notification task: %w", err)
	}
	opts = append(opts, asynq.Queue(q.queue))

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue claim notification for slot %s: %w", note.SlotID, err)
	}
	return nil
}

// NoOpClaimQueue drops claim notifications
type NoOpClaimQueue struct{}

// Enqueue is a no-op
func (NoOpClaimQueue) Enqueue(ctx context.Context, note *domain.ClaimNotification) error {
	return nil
}
