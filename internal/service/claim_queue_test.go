package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hangingNotifier blocks every delivery until its context ends
type hangingNotifier struct {
	mu      sync.Mutex
	started int
}

func (n *hangingNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	n.mu.Lock()
	n.started++
	n.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// channelNotifier hands every delivery to a channel
type channelNotifier struct {
	delivered chan *domain.ClaimNotification
}

func (n *channelNotifier) Notify(ctx context.Context, note *domain.ClaimNotification) error {
	n.delivered <- note
	return nil
}

func testNote(alertID string) *domain.ClaimNotification {
	return &domain.ClaimNotification{
		SlotID:       "slot-1",
		DinerID:      "diner-" + alertID,
		AlertID:      alertID,
		VenueName:    "Harbour House",
		HoldDeadline: time.Now().Add(15 * time.Minute),
	}
}

func TestAsyncDispatcher_Delivers(t *testing.T) {
	notifier := &channelNotifier{delivered: make(chan *domain.ClaimNotification, 4)}
	d := NewAsyncDispatcher(notifier, &AsyncDispatcherConfig{Workers: 2, QueueSize: 4, Timeout: time.Second})
	defer d.Close()

	require.NoError(t, d.Enqueue(context.Background(), testNote("a1")))

	select {
	case note := <-notifier.delivered:
		assert.Equal(t, "a1", note.AlertID)
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestAsyncDispatcher_FullBufferDoesNotBlock(t *testing.T) {
	notifier := &hangingNotifier{}
	d := NewAsyncDispatcher(notifier, &AsyncDispatcherConfig{Workers: 1, QueueSize: 1, Timeout: 200 * time.Millisecond})
	defer d.Close()

	// One note occupies the worker, one fills the buffer, the rest bounce
	var full int
	start := time.Now()
	for i := 0; i < 10; i++ {
		err := d.Enqueue(context.Background(), testNote("a"))
		if err != nil {
			assert.ErrorIs(t, err, ErrClaimQueueFull)
			full++
		}
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.GreaterOrEqual(t, full, 8)
}

func TestAsyncDispatcher_CloseDrainsBuffer(t *testing.T) {
	notifier := &channelNotifier{delivered: make(chan *domain.ClaimNotification, 8)}
	d := NewAsyncDispatcher(notifier, &AsyncDispatcherConfig{Workers: 1, QueueSize: 8, Timeout: time.Second})

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, d.Enqueue(context.Background(), testNote(id)))
	}
	d.Close()
	assert.Len(t, notifier.delivered, 3)

	err := d.Enqueue(context.Background(), testNote("a4"))
	assert.ErrorIs(t, err, ErrClaimQueueClosed)

	// Closing twice is harmless
	d.Close()
}

func TestAsyncDispatcher_TimeoutBoundsDelivery(t *testing.T) {
	notifier := &hangingNotifier{}
	d := NewAsyncDispatcher(notifier, &AsyncDispatcherConfig{Workers: 1, QueueSize: 2, Timeout: 50 * time.Millisecond})

	require.NoError(t, d.Enqueue(context.Background(), testNote("a1")))
	require.NoError(t, d.Enqueue(context.Background(), testNote("a2")))

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close waited on a hanging delivery past its timeout")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, 2, notifier.started)
}

func TestNewClaimNotifyTask(t *testing.T) {
	note := testNote("alert-7")

	task, opts, err := NewClaimNotifyTask(note)
	require.NoError(t, err)
	assert.Equal(t, TypeClaimNotify, task.Type())
	assert.Contains(t, string(task.Payload()), `"alert-7"`)
	assert.Len(t, opts, 4)
}
