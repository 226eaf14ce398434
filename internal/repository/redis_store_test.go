package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	pkgredis "github.com/johnnyhall81/clientdining-v1-sub000/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func setupRedisStore(t *testing.T) (*RedisStore, *RedisDinerRepository) {
	t.Helper()
	skipIfNoIntegration(t)

	cfg := pkgredis.DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}

	client, err := pkgredis.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client)
	require.NoError(t, store.LoadScripts(context.Background()))
	return store, NewRedisDinerRepository(client)
}

func TestScriptsCarryPromotionHelper(t *testing.T) {
	for name, script := range map[string]string{
		scriptCancelBooking: cancelBookingScript,
		scriptExpireHold:    expireHoldScript,
		scriptRegisterAlert: registerAlertScript,
		scriptWithdrawAlert: withdrawAlertScript,
	} {
		assert.True(t, strings.HasPrefix(script, promoteLib), name)
		assert.Contains(t, script, "promote_next(", name)
	}
	assert.NotContains(t, bookSlotScript, "promote_next")
}

func TestSlotKeysShareHashTag(t *testing.T) {
	assert.Equal(t, "slot:{s1}", slotKey("s1"))
	assert.Equal(t, "slot:{s1}:queue", queueKey("s1"))
	assert.Equal(t, "slot:{s1}:alerts", alertIndexKey("s1"))
	assert.Equal(t, "slot:{s1}:alert:a1", alertPrefix("s1")+"a1")
}

func TestParsePromotion(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	values := []interface{}{
		"alert-1", "diner-b", "3",
		"1773165600000", "1773166500000",
	}

	p := parsePromotion("slot-1", values)
	require.NotNil(t, p)
	assert.Equal(t, "alert-1", p.AlertID)
	assert.Equal(t, "diner-b", p.DinerID)
	assert.Equal(t, int64(3), p.Sequence)
	assert.Equal(t, now, p.NotifiedAt)
	assert.Equal(t, now.Add(15*time.Minute), p.ReservedUntil)

	assert.Nil(t, parsePromotion("slot-1", values[:2]))
}

func TestSlotFromHash(t *testing.T) {
	slot := slotFromHash(map[string]string{
		"id":             "slot-1",
		"venue_id":       "venue-1",
		"starts_at":      "1773165600000",
		"party_min":      "2",
		"party_max":      "4",
		"tier":           "elevated",
		"status":         "reserved",
		"reserved_for":   "diner-b",
		"reserved_until": "1773166500000",
	})

	assert.Equal(t, domain.TierElevated, slot.Tier)
	assert.True(t, slot.IsHeldBy("diner-b"))
	assert.True(t, slot.HoldConsistent())
	assert.Equal(t, 4, slot.PartyMax)

	available := slotFromHash(map[string]string{"id": "slot-2", "status": "available", "reserved_for": "", "reserved_until": ""})
	assert.Nil(t, available.ReservedForDinerID)
	assert.Nil(t, available.ReservedUntil)
}

func TestRedisStore_ReservationLifecycle_Integration(t *testing.T) {
	store, diners := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	slot := newTestSlot("it-" + uuid.New().String())
	slot.StartsAt = now.Add(72 * time.Hour)
	require.NoError(t, store.CreateSlot(ctx, slot))
	assert.ErrorIs(t, store.CreateSlot(ctx, slot), domain.ErrSlotAlreadyExists)

	dinerA := "diner-" + uuid.New().String()
	dinerB := "diner-" + uuid.New().String()
	dinerC := "diner-" + uuid.New().String()
	require.NoError(t, diners.SetTier(ctx, dinerA, domain.TierStandard))

	booked, err := store.BookSlot(ctx, BookSlotParams{BookingID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerA, PartySize: 2, Now: now})
	require.NoError(t, err)
	require.True(t, booked.Success)

	count, err := diners.GetActiveFutureBookingCount(ctx, dinerA, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	again, err := store.BookSlot(ctx, BookSlotParams{BookingID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerB, PartySize: 2, Now: now})
	require.NoError(t, err)
	assert.Equal(t, CodeSlotUnavailable, again.ErrorCode)

	first, err := store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerB, Now: now})
	require.NoError(t, err)
	require.True(t, first.Success)
	second, err := store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerC, Now: now})
	require.NoError(t, err)
	assert.Greater(t, second.Alert.Sequence, first.Alert.Sequence)

	dup, err := store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerB, Now: now})
	require.NoError(t, err)
	assert.Equal(t, CodeAlreadyQueued, dup.ErrorCode)

	own, err := store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerA, Now: now})
	require.NoError(t, err)
	require.True(t, own.Success)

	cancelled, err := store.CancelBooking(ctx, CancelBookingParams{BookingID: booked.Booking.ID, Now: now, HoldDuration: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, cancelled.DroppedAlert)
	assert.Equal(t, own.Alert.ID, cancelled.DroppedAlert.ID)
	assert.Equal(t, domain.AlertStatusCancelled, cancelled.DroppedAlert.Status)
	require.NotNil(t, cancelled.Promotion)
	assert.Equal(t, dinerB, cancelled.Promotion.DinerID)

	refused, err := store.BookSlot(ctx, BookSlotParams{BookingID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerC, PartySize: 2, Now: now})
	require.NoError(t, err)
	assert.Equal(t, CodeReservedForAnother, refused.ErrorCode)

	expireAt := now.Add(2 * time.Minute)
	ids, err := store.ListExpiredHolds(ctx, expireAt, 1000)
	require.NoError(t, err)
	assert.Contains(t, ids, slot.ID)

	expired, err := store.ExpireHold(ctx, ExpireHoldParams{SlotID: slot.ID, Now: expireAt, HoldDuration: time.Minute})
	require.NoError(t, err)
	require.True(t, expired.Expired)
	require.NotNil(t, expired.ExpiredAlert)
	assert.Equal(t, domain.AlertStatusExpired, expired.ExpiredAlert.Status)
	require.NotNil(t, expired.Promotion)
	assert.Equal(t, dinerC, expired.Promotion.DinerID)

	noop, err := store.ExpireHold(ctx, ExpireHoldParams{SlotID: slot.ID, Now: expireAt})
	require.NoError(t, err)
	assert.False(t, noop.Expired)

	claimed, err := store.BookSlot(ctx, BookSlotParams{BookingID: uuid.New().String(), SlotID: slot.ID, DinerID: dinerC, PartySize: 2, Now: expireAt.Add(30 * time.Second)})
	require.NoError(t, err)
	require.True(t, claimed.Success)
	assert.Equal(t, expired.Promotion.AlertID, claimed.ClaimedAlertID)

	open, err := store.ListOpenAlerts(ctx, slot.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRedisStore_WithdrawNotifiedAlert_Integration(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	slot := newTestSlot("it-" + uuid.New().String())
	require.NoError(t, store.CreateSlot(ctx, slot))

	registered, err := store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: "diner-b", Now: now})
	require.NoError(t, err)
	require.NotNil(t, registered.Promotion)

	_, err = store.RegisterAlert(ctx, RegisterAlertParams{AlertID: uuid.New().String(), SlotID: slot.ID, DinerID: "diner-c", Now: now})
	require.NoError(t, err)

	withdrawn, err := store.WithdrawAlert(ctx, WithdrawAlertParams{SlotID: slot.ID, DinerID: "diner-b", Now: now})
	require.NoError(t, err)
	assert.True(t, withdrawn.ReleasedHold)
	require.NotNil(t, withdrawn.Promotion)
	assert.Equal(t, "diner-c", withdrawn.Promotion.DinerID)

	notQueued, err := store.WithdrawAlert(ctx, WithdrawAlertParams{SlotID: slot.ID, DinerID: "diner-b", Now: now})
	require.NoError(t, err)
	assert.Equal(t, CodeNotQueued, notQueued.ErrorCode)

	removed, err := store.DeleteSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, CodeSlotNotRemovable, removed.ErrorCode)
}
