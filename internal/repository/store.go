package repository

import (
	"context"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
)

// Result codes returned by atomic store operations. A failed precondition is
// a result, not an error; errors are reserved for the store itself failing.
const (
	CodeSlotNotFound       = "SLOT_NOT_FOUND"
	CodeSlotUnavailable    = "SLOT_UNAVAILABLE"
	CodeReservedForAnother = "RESERVED_FOR_ANOTHER_USER"
	CodeHoldExpired        = "HOLD_EXPIRED"
	CodeBookingNotFound    = "BOOKING_NOT_FOUND"
	CodeBookingNotActive   = "BOOKING_NOT_ACTIVE"
	CodeAlreadyQueued      = "ALREADY_QUEUED"
	CodeNotQueued          = "NOT_QUEUED"
	CodeSlotNotRemovable   = "SLOT_NOT_REMOVABLE"
	CodeInvalidPartySize   = "INVALID_PARTY_SIZE"
	CodeSlotAlreadyExists  = "SLOT_ALREADY_EXISTS"
)

// DefaultHoldDuration is how long a promoted diner has to claim a slot
const DefaultHoldDuration = 15 * time.Minute

// BookSlotParams contains parameters for the booked transition
type BookSlotParams struct {
	BookingID string
	SlotID    string
	DinerID   string
	PartySize int
	Note      *string
	Now       time.Time
}

// BookSlotResult is the outcome of BookSlot
type BookSlotResult struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
	Booking      *domain.Booking
	// ClaimedAlertID is set when the booking consumed the diner's hold
	ClaimedAlertID string
}

// CancelBookingParams contains parameters for cancelling a booking
type CancelBookingParams struct {
	BookingID    string
	Now          time.Time
	HoldDuration time.Duration
}

// CancelBookingResult is the outcome of CancelBooking
type CancelBookingResult struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
	Booking      *domain.Booking
	// DroppedAlert is the canceller's own open alert on the slot, cancelled
	// before the queue head is promoted
	DroppedAlert *domain.Alert
	Promotion    *domain.Promotion
}

// ExpireHoldParams contains parameters for the hold expiry transition
type ExpireHoldParams struct {
	SlotID       string
	Now          time.Time
	HoldDuration time.Duration
}

// ExpireHoldResult is the outcome of ExpireHold. Expired is false when the
// slot was no longer holding an expired reservation.
type ExpireHoldResult struct {
	Expired      bool
	ExpiredAlert *domain.Alert
	Promotion    *domain.Promotion
}

// RegisterAlertParams contains parameters for joining a slot's queue
type RegisterAlertParams struct {
	AlertID      string
	SlotID       string
	DinerID      string
	Now          time.Time
	HoldDuration time.Duration
}

// RegisterAlertResult is the outcome of RegisterAlert
type RegisterAlertResult struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
	Alert        *domain.Alert
	// Promotion is set when the slot was available and the new alert was
	// promoted straight away
	Promotion *domain.Promotion
}

// WithdrawAlertParams contains parameters for leaving a slot's queue
type WithdrawAlertParams struct {
	SlotID       string
	DinerID      string
	Now          time.Time
	HoldDuration time.Duration
}

// WithdrawAlertResult is the outcome of WithdrawAlert
type WithdrawAlertResult struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
	Alert        *domain.Alert
	// ReleasedHold is true when a notified alert gave up its hold
	ReleasedHold bool
	Promotion    *domain.Promotion
}

// DeleteSlotResult is the outcome of DeleteSlot
type DeleteSlotResult struct {
	Success   bool
	ErrorCode string
}

// SlotStore owns slot and booking state. Every mutating method is a single
// atomic unit keyed by slot id.
type SlotStore interface {
	CreateSlot(ctx context.Context, slot *domain.Slot) error
	GetSlot(ctx context.Context, slotID string) (*domain.Slot, error)
	DeleteSlot(ctx context.Context, slotID string) (*DeleteSlotResult, error)
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// BookSlot performs available → booked, or reserved → booked for the
	// holder inside the hold window
	BookSlot(ctx context.Context, params BookSlotParams) (*BookSlotResult, error)

	// CancelBooking performs booked → available and promotes the queue head
	CancelBooking(ctx context.Context, params CancelBookingParams) (*CancelBookingResult, error)

	// ExpireHold performs reserved → available when the hold has lapsed and
	// promotes the queue head. It is a no-op otherwise.
	ExpireHold(ctx context.Context, params ExpireHoldParams) (*ExpireHoldResult, error)

	// ListExpiredHolds returns ids of reserved slots with reservedUntil < before
	ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// AlertStore owns the per-slot waiting lists
type AlertStore interface {
	RegisterAlert(ctx context.Context, params RegisterAlertParams) (*RegisterAlertResult, error)
	WithdrawAlert(ctx context.Context, params WithdrawAlertParams) (*WithdrawAlertResult, error)

	// ListOpenAlerts returns active and notified alerts ordered by sequence
	ListOpenAlerts(ctx context.Context, slotID string) ([]*domain.Alert, error)
}

// ReservationStore is the full data store contract of the reservation core
type ReservationStore interface {
	SlotStore
	AlertStore
	Ping(ctx context.Context) error
}

// DinerProfileRepository is the read-only view of the profile subsystem
type DinerProfileRepository interface {
	GetTier(ctx context.Context, dinerID string) (domain.Tier, error)
	GetActiveFutureBookingCount(ctx context.Context, dinerID string, now time.Time) (int, error)
}

func holdDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultHoldDuration
	}
	return d
}
