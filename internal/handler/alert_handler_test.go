package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertHandler_RegisterAlert(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	t.Run("queued", func(t *testing.T) {
		svc := &MockReservationService{
			RegisterAlertFunc: func(ctx context.Context, slotID, dinerID string) (*domain.Alert, error) {
				return &domain.Alert{ID: "alert-1", SlotID: slotID, DinerID: dinerID, Status: domain.AlertStatusActive, Sequence: 4, CreatedAt: now}, nil
			},
		}
		router := setupTestRouter(svc, "diner-b")

		w := doRequest(router, http.MethodPost, "/slots/slot-1/alerts", nil)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp dto.AlertResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alert-1", resp.ID)
		assert.Equal(t, "active", resp.Status)
		assert.Equal(t, int64(4), resp.Sequence)
		assert.Nil(t, resp.NotifiedAt)
	})

	t.Run("already queued", func(t *testing.T) {
		svc := &MockReservationService{
			RegisterAlertFunc: func(ctx context.Context, slotID, dinerID string) (*domain.Alert, error) {
				return nil, domain.ErrAlreadyQueued
			},
		}
		router := setupTestRouter(svc, "diner-b")

		w := doRequest(router, http.MethodPost, "/slots/slot-1/alerts", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "ALREADY_QUEUED", decodeError(t, w).Code)
	})

	t.Run("unauthorized", func(t *testing.T) {
		router := setupTestRouter(&MockReservationService{}, "")

		w := doRequest(router, http.MethodPost, "/slots/slot-1/alerts", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAlertHandler_WithdrawAlert(t *testing.T) {
	t.Run("withdrawn", func(t *testing.T) {
		var gotSlot, gotDiner string
		svc := &MockReservationService{
			WithdrawAlertFunc: func(ctx context.Context, slotID, dinerID string) error {
				gotSlot, gotDiner = slotID, dinerID
				return nil
			},
		}
		router := setupTestRouter(svc, "diner-b")

		w := doRequest(router, http.MethodDelete, "/slots/slot-1/alerts", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "slot-1", gotSlot)
		assert.Equal(t, "diner-b", gotDiner)
	})

	t.Run("not queued", func(t *testing.T) {
		svc := &MockReservationService{
			WithdrawAlertFunc: func(ctx context.Context, slotID, dinerID string) error {
				return domain.ErrNotQueued
			},
		}
		router := setupTestRouter(svc, "diner-b")

		w := doRequest(router, http.MethodDelete, "/slots/slot-1/alerts", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "NOT_QUEUED", decodeError(t, w).Code)
	})
}

func TestAlertHandler_GetPosition(t *testing.T) {
	t.Run("waiting", func(t *testing.T) {
		svc := &MockReservationService{
			GetQueuePositionFunc: func(ctx context.Context, slotID, dinerID string) (*domain.QueuePosition, error) {
				return &domain.QueuePosition{SlotID: slotID, DinerID: dinerID, Status: domain.AlertStatusActive, Position: 2}, nil
			},
		}
		router := setupTestRouter(svc, "diner-c")

		w := doRequest(router, http.MethodGet, "/slots/slot-1/alerts/position", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.QueuePositionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Queued)
		assert.Equal(t, 2, resp.Position)
		assert.Equal(t, "active", resp.Status)
	})

	t.Run("not queued", func(t *testing.T) {
		router := setupTestRouter(&MockReservationService{}, "diner-c")

		w := doRequest(router, http.MethodGet, "/slots/slot-1/alerts/position", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.QueuePositionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Queued)
		assert.Equal(t, "slot-1", resp.SlotID)
	})
}

func TestAlertHandler_GetQueue(t *testing.T) {
	svc := &MockReservationService{
		GetQueueFunc: func(ctx context.Context, slotID string) ([]*domain.QueueEntry, error) {
			return []*domain.QueueEntry{
				{AlertID: "a1", DinerID: "diner-b", Status: domain.AlertStatusNotified, Sequence: 1, HoldRemaining: 90 * time.Second},
				{AlertID: "a2", DinerID: "diner-c", Status: domain.AlertStatusActive, Sequence: 2, Position: 1},
			}, nil
		},
	}
	router := setupTestRouter(svc, "")

	w := doRequest(router, http.MethodGet, "/slots/slot-1/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.QueueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Length)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, int64(90), resp.Entries[0].HoldRemainingSeconds)
	assert.Equal(t, 0, resp.Entries[0].Position)
	assert.Equal(t, 1, resp.Entries[1].Position)
}

func TestAlertHandler_GetQueue_UnknownSlot(t *testing.T) {
	svc := &MockReservationService{
		GetQueueFunc: func(ctx context.Context, slotID string) ([]*domain.QueueEntry, error) {
			return nil, domain.ErrSlotNotFound
		},
	}
	router := setupTestRouter(svc, "")

	w := doRequest(router, http.MethodGet, "/slots/missing/queue", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
