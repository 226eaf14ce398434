package handler

import (
	"context"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/worker"
)

// MockReservationService is a mock implementation of ReservationService for testing
type MockReservationService struct {
	CheckEligibilityFunc func(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error)
	BookFunc             func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error)
	CancelBookingFunc    func(ctx context.Context, bookingID, dinerID string) error
	GetBookingFunc       func(ctx context.Context, bookingID, dinerID string) (*domain.Booking, error)
	RegisterAlertFunc    func(ctx context.Context, slotID, dinerID string) (*domain.Alert, error)
	WithdrawAlertFunc    func(ctx context.Context, slotID, dinerID string) error
	GetQueuePositionFunc func(ctx context.Context, slotID, dinerID string) (*domain.QueuePosition, error)
	GetQueueFunc         func(ctx context.Context, slotID string) ([]*domain.QueueEntry, error)
	PublishSlotFunc      func(ctx context.Context, slot *domain.Slot) (*domain.Slot, error)
	RemoveSlotFunc       func(ctx context.Context, slotID string) error
	ExpireHoldFunc       func(ctx context.Context, slotID string) (bool, error)
	SweepFunc            func(ctx context.Context) (*service.SweepResult, error)
}

var _ service.ReservationService = (*MockReservationService)(nil)

func (m *MockReservationService) CheckEligibility(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error) {
	if m.CheckEligibilityFunc != nil {
		return m.CheckEligibilityFunc(ctx, slotID, dinerID)
	}
	return &domain.Verdict{Eligible: true}, nil
}

func (m *MockReservationService) Book(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
	if m.BookFunc != nil {
		return m.BookFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockReservationService) CancelBooking(ctx context.Context, bookingID, dinerID string) error {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, dinerID)
	}
	return nil
}

func (m *MockReservationService) GetBooking(ctx context.Context, bookingID, dinerID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, dinerID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockReservationService) RegisterAlert(ctx context.Context, slotID, dinerID string) (*domain.Alert, error) {
	if m.RegisterAlertFunc != nil {
		return m.RegisterAlertFunc(ctx, slotID, dinerID)
	}
	return nil, nil
}

func (m *MockReservationService) WithdrawAlert(ctx context.Context, slotID, dinerID string) error {
	if m.WithdrawAlertFunc != nil {
		return m.WithdrawAlertFunc(ctx, slotID, dinerID)
	}
	return nil
}

func (m *MockReservationService) GetQueuePosition(ctx context.Context, slotID, dinerID string) (*domain.QueuePosition, error) {
	if m.GetQueuePositionFunc != nil {
		return m.GetQueuePositionFunc(ctx, slotID, dinerID)
	}
	return nil, nil
}

func (m *MockReservationService) GetQueue(ctx context.Context, slotID string) ([]*domain.QueueEntry, error) {
	if m.GetQueueFunc != nil {
		return m.GetQueueFunc(ctx, slotID)
	}
	return nil, nil
}

func (m *MockReservationService) PublishSlot(ctx context.Context, slot *domain.Slot) (*domain.Slot, error) {
	if m.PublishSlotFunc != nil {
		return m.PublishSlotFunc(ctx, slot)
	}
	return slot, nil
}

func (m *MockReservationService) RemoveSlot(ctx context.Context, slotID string) error {
	if m.RemoveSlotFunc != nil {
		return m.RemoveSlotFunc(ctx, slotID)
	}
	return nil
}

func (m *MockReservationService) ExpireHold(ctx context.Context, slotID string) (bool, error) {
	if m.ExpireHoldFunc != nil {
		return m.ExpireHoldFunc(ctx, slotID)
	}
	return false, nil
}

func (m *MockReservationService) SweepExpiredReservations(ctx context.Context) (*service.SweepResult, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return &service.SweepResult{}, nil
}

// MockSweepRunner is a mock implementation of SweepRunner for testing
type MockSweepRunner struct {
	RunOnceFunc func(ctx context.Context) (*service.SweepResult, error)
	Stats       *worker.ExpirySweeperStats
}

func (m *MockSweepRunner) RunOnce(ctx context.Context) (*service.SweepResult, error) {
	if m.RunOnceFunc != nil {
		return m.RunOnceFunc(ctx)
	}
	return &service.SweepResult{}, nil
}

func (m *MockSweepRunner) GetStats() *worker.ExpirySweeperStats {
	if m.Stats != nil {
		return m.Stats
	}
	return &worker.ExpirySweeperStats{}
}
