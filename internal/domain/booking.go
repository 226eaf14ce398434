package domain

import "time"

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking binds one diner to one slot
type Booking struct {
	ID          string        `json:"id"`
	SlotID      string        `json:"slot_id"`
	DinerID     string        `json:"diner_id"`
	PartySize   int           `json:"party_size"`
	Status      BookingStatus `json:"status"`
	Note        *string       `json:"note,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
}

// IsActive reports whether the booking still holds its slot
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusActive
}

// Validate validates the booking
func (b *Booking) Validate() error {
	if b.SlotID == "" {
		return ErrInvalidSlotID
	}
	if b.DinerID == "" {
		return ErrInvalidDinerID
	}
	if b.PartySize <= 0 {
		return ErrInvalidPartySize
	}
	return nil
}
