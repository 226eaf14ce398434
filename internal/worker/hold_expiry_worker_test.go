package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHoldExpirer is a mock implementation of HoldExpirer
type MockHoldExpirer struct {
	mock.Mock
}

func (m *MockHoldExpirer) ExpireHold(ctx context.Context, slotID string) (bool, error) {
	args := m.Called(ctx, slotID)
	return args.Bool(0), args.Error(1)
}

// MockClaimNotifier is a mock implementation of ClaimNotifier
type MockClaimNotifier struct {
	mock.Mock
}

func (m *MockClaimNotifier) Notify(ctx context.Context, n *domain.ClaimNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func newTestHoldWorker(expirer HoldExpirer) *HoldExpiryWorker {
	return NewHoldExpiryWorker(asynq.RedisClientOpt{Addr: "localhost:6379"}, expirer, nil, nil)
}

func TestHoldExpiryWorker_HandleHoldExpire(t *testing.T) {
	expirer := new(MockHoldExpirer)
	expirer.On("ExpireHold", mock.Anything, "slot-1").Return(true, nil).Once()
	w := newTestHoldWorker(expirer)

	task, _, err := service.NewHoldExpireTask("slot-1", time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	require.NoError(t, w.HandleHoldExpire(context.Background(), task))
	expirer.AssertExpectations(t)
}

func TestHoldExpiryWorker_StoreFailureIsRetried(t *testing.T) {
	expirer := new(MockHoldExpirer)
	expirer.On("ExpireHold", mock.Anything, "slot-1").Return(false, errors.New("timeout")).Once()
	w := newTestHoldWorker(expirer)

	task, _, err := service.NewHoldExpireTask("slot-1", time.Now())
	require.NoError(t, err)

	err = w.HandleHoldExpire(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHoldExpiryWorker_BadPayloadSkipsRetry(t *testing.T) {
	expirer := new(MockHoldExpirer)
	w := newTestHoldWorker(expirer)

	err := w.HandleHoldExpire(context.Background(), asynq.NewTask(service.TypeHoldExpire, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.HandleHoldExpire(context.Background(), asynq.NewTask(service.TypeHoldExpire, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	expirer.AssertNotCalled(t, "ExpireHold", mock.Anything, mock.Anything)
}

func TestHoldExpiryWorker_HandleClaimNotify(t *testing.T) {
	note := &domain.ClaimNotification{
		NotificationID: "n-1",
		AlertID:        "alert-1",
		DinerID:        "diner-b",
		SlotID:         "slot-1",
		VenueName:      "Harbour House",
		HoldDeadline:   time.Now().Add(15 * time.Minute).UTC(),
	}
	task, opts, err := service.NewClaimNotifyTask(note)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	t.Run("delivers", func(t *testing.T) {
		notifier := new(MockClaimNotifier)
		notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n *domain.ClaimNotification) bool {
			return n.AlertID == "alert-1" && n.DinerID == "diner-b" && n.SlotID == "slot-1"
		})).Return(nil).Once()
		w := NewHoldExpiryWorker(asynq.RedisClientOpt{Addr: "localhost:6379"}, new(MockHoldExpirer), notifier, nil)

		require.NoError(t, w.HandleClaimNotify(context.Background(), task))
		notifier.AssertExpectations(t)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		notifier := new(MockClaimNotifier)
		notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
		w := NewHoldExpiryWorker(asynq.RedisClientOpt{Addr: "localhost:6379"}, new(MockHoldExpirer), notifier, nil)

		err := w.HandleClaimNotify(context.Background(), task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		notifier := new(MockClaimNotifier)
		w := NewHoldExpiryWorker(asynq.RedisClientOpt{Addr: "localhost:6379"}, new(MockHoldExpirer), notifier, nil)

		err := w.HandleClaimNotify(context.Background(), asynq.NewTask(service.TypeClaimNotify, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})
}
