package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Slot errors
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotAlreadyExists = errors.New("slot already exists")
	ErrSlotNotRemovable  = errors.New("slot can only be removed while available")

	// Booking errors
	ErrBookingNotFound  = errors.New("booking not found")
	ErrBookingNotActive = errors.New("booking is not active")

	// Alert errors
	ErrAlertNotFound = errors.New("alert not found")

	// Validation errors
	ErrInvalidSlotID     = errors.New("invalid slot id")
	ErrInvalidDinerID    = errors.New("invalid diner id")
	ErrInvalidBookingID  = errors.New("invalid booking id")
	ErrInvalidVenueID    = errors.New("invalid venue id")
	ErrInvalidPartySize  = errors.New("party size is outside the slot's range")
	ErrInvalidPartyRange = errors.New("party min must be at least 1 and not exceed party max")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidStartTime  = errors.New("slot start time is required")

	// Profile errors
	ErrDinerNotFound = errors.New("diner not found")
)

// Sentinel refusals. Compare with errors.Is; codes are stable and safe to
// show to callers.
var (
	ErrSlotUnavailable        = NewRefusal(RefusalSlotUnavailable, "slot is not available")
	ErrTierRequired           = NewRefusal(RefusalTierRequired, "an elevated membership is required to book this slot")
	ErrBookingLimitReached    = NewRefusal(RefusalBookingLimitReached, "active booking limit reached for membership tier")
	ErrReservedForAnotherUser = NewRefusal(RefusalReservedForAnotherUser, "slot is held for another diner")
	ErrAlreadyQueued          = NewRefusal(RefusalAlreadyQueued, "diner already has an alert on this slot")
	ErrNotQueued              = NewRefusal(RefusalNotQueued, "diner has no alert on this slot")
	ErrHoldExpired            = NewRefusal(RefusalSlotUnavailable, "reservation hold has expired")
)

// RefusalCode identifies a user-facing refusal
type RefusalCode string

const (
	RefusalSlotUnavailable        RefusalCode = "SLOT_UNAVAILABLE"
	RefusalTierRequired           RefusalCode = "TIER_REQUIRED"
	RefusalBookingLimitReached    RefusalCode = "BOOKING_LIMIT_REACHED"
	RefusalReservedForAnotherUser RefusalCode = "RESERVED_FOR_ANOTHER_USER"
	RefusalAlreadyQueued          RefusalCode = "ALREADY_QUEUED"
	RefusalNotQueued              RefusalCode = "NOT_QUEUED"
)

// Refusal is an expected outcome of an operation the caller is not allowed
// to perform right now. It is not a fault.
type Refusal struct {
	Code    RefusalCode
	Message string
}

// NewRefusal creates a refusal
func NewRefusal(code RefusalCode, message string) *Refusal {
	return &Refusal{Code: code, Message: message}
}

func (r *Refusal) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Is matches any refusal carrying the same code
func (r *Refusal) Is(target error) bool {
	t, ok := target.(*Refusal)
	if !ok {
		return false
	}
	return r.Code == t.Code
}

// TierBased reports whether the refusal should drive a membership upsell
func (r *Refusal) TierBased() bool {
	return r.Code == RefusalTierRequired
}

// RefusalFor returns the sentinel refusal for a code
func RefusalFor(code RefusalCode) *Refusal {
	switch code {
	case RefusalSlotUnavailable:
		return ErrSlotUnavailable
	case RefusalTierRequired:
		return ErrTierRequired
	case RefusalBookingLimitReached:
		return ErrBookingLimitReached
	case RefusalReservedForAnotherUser:
		return ErrReservedForAnotherUser
	case RefusalAlreadyQueued:
		return ErrAlreadyQueued
	case RefusalNotQueued:
		return ErrNotQueued
	default:
		return nil
	}
}

// AsRefusal extracts a refusal from an error chain
func AsRefusal(err error) (*Refusal, bool) {
	var r *Refusal
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// InfrastructureError wraps a collaborator failure (store unreachable,
// broker down). Callers may retry.
type InfrastructureError struct {
	Op  string
	Err error
}

// NewInfrastructureError wraps err; returns nil for a nil err
func NewInfrastructureError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Op: op, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// IsRefusal checks if the error is a user-facing refusal
func IsRefusal(err error) bool {
	_, ok := AsRefusal(err)
	return ok
}

// IsInfrastructureError checks if the error is a retryable collaborator failure
func IsInfrastructureError(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAlertNotFound) ||
		errors.Is(err, ErrDinerNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSlotID) ||
		errors.Is(err, ErrInvalidDinerID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidVenueID) ||
		errors.Is(err, ErrInvalidPartySize) ||
		errors.Is(err, ErrInvalidPartyRange) ||
		errors.Is(err, ErrInvalidTier) ||
		errors.Is(err, ErrInvalidStartTime)
}

// IsConflictError checks if the error is a state conflict that is not a refusal
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlotAlreadyExists) ||
		errors.Is(err, ErrSlotNotRemovable) ||
		errors.Is(err, ErrBookingNotActive)
}
