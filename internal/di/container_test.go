package di

import (
	"context"
	"testing"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/repository"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:   config.AppConfig{Name: "reservation-service", Environment: "development"},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Reservation: config.ReservationConfig{
			HoldDuration:               15 * time.Minute,
			OverrideWindow:             24 * time.Hour,
			LimitAppliesWithinOverride: true,
			StandardLimit:              3,
			ElevatedLimit:              10,
			NotifyTimeout:              time.Second,
		},
		Sweeper: config.SweeperConfig{Schedule: "@every 1m", BatchSize: 50, Timeout: 10 * time.Second},
	}
}

func TestNewContainer_Defaults(t *testing.T) {
	store := repository.NewMemoryStore()
	c := NewContainer(&ContainerConfig{Store: store, Profiles: store})

	assert.NotNil(t, c.ReservationService)
	assert.NotNil(t, c.ExpirySweeper)
	assert.Nil(t, c.HoldExpiryWorker)
	assert.IsType(t, &service.LogNotifier{}, c.Notifier)
	assert.IsType(t, &service.NoOpEventPublisher{}, c.EventPublisher)
	assert.IsType(t, service.NoOpHoldScheduler{}, c.HoldScheduler)
	require.NotNil(t, c.Dispatcher)
	assert.Same(t, c.Dispatcher, c.ClaimQueue)
	assert.NotNil(t, c.HealthHandler)
	assert.NotNil(t, c.ReservationHandler)
	assert.NotNil(t, c.AlertHandler)
	assert.NotNil(t, c.AdminHandler)

	c.Close()
}

func TestBuild_MemoryStore(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, memoryConfig())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Kafka)
	assert.Nil(t, c.AsynqClient)

	_, err = c.ReservationService.PublishSlot(ctx, &domain.Slot{
		ID:        "slot-1",
		VenueID:   "venue-1",
		VenueName: "Test Venue",
		StartsAt:  time.Now().Add(72 * time.Hour),
		PartyMin:  2,
		PartyMax:  4,
		Tier:      domain.TierStandard,
	})
	require.NoError(t, err)

	booking, err := c.ReservationService.Book(ctx, &service.BookRequest{SlotID: "slot-1", DinerID: "diner-1", PartySize: 2})
	require.NoError(t, err)
	assert.Equal(t, "slot-1", booking.SlotID)

	result, err := c.ExpirySweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "mongo"

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestServiceConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Reservation.LimitAppliesWithinOverride = false
	cfg.Reservation.OverrideWindow = 6 * time.Hour

	sc := ServiceConfig(cfg)
	require.NotNil(t, sc.Policy)
	assert.Equal(t, 6*time.Hour, sc.Policy.OverrideWindow)
	assert.False(t, sc.Policy.LimitAppliesWithinOverride)
	assert.Equal(t, 3, sc.Policy.StandardLimit)
	assert.Equal(t, 10, sc.Policy.ElevatedLimit)
	assert.Equal(t, 15*time.Minute, sc.HoldDuration)
	assert.Equal(t, 50, sc.SweepBatchSize)

	cfg.Notification.Workers = 2
	cfg.Notification.QueueSize = 32
	dc := DispatcherConfig(cfg)
	assert.Equal(t, 2, dc.Workers)
	assert.Equal(t, 32, dc.QueueSize)
	assert.Equal(t, time.Second, dc.Timeout)

	sw := SweeperConfig(cfg)
	assert.Equal(t, "@every 1m", sw.Schedule)
	assert.Equal(t, 10*time.Second, sw.Timeout)
}
