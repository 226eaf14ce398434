package domain

import "time"

// ReservationEventType represents the type of reservation event
type ReservationEventType string

const (
	EventBookingCreated   ReservationEventType = "booking.created"
	EventBookingCancelled ReservationEventType = "booking.cancelled"
	EventAlertRegistered  ReservationEventType = "alert.registered"
	EventAlertWithdrawn   ReservationEventType = "alert.withdrawn"
	EventAlertPromoted    ReservationEventType = "alert.promoted"
	EventAlertExpired     ReservationEventType = "alert.expired"
	EventAlertClaimed     ReservationEventType = "alert.claimed"
)

// ReservationEvent is a domain event published for downstream consumers
// (mailers, reporting)
type ReservationEvent struct {
	EventID    string               `json:"event_id"`
	EventType  ReservationEventType `json:"event_type"`
	OccurredAt time.Time            `json:"occurred_at"`
	Version    int                  `json:"version"`
	SlotID     string               `json:"slot_id"`
	DinerID    string               `json:"diner_id"`
	BookingID  string               `json:"booking_id,omitempty"`
	AlertID    string               `json:"alert_id,omitempty"`
	PartySize  int                  `json:"party_size,omitempty"`
	HoldUntil  *time.Time           `json:"hold_until,omitempty"`
}

// Key partitions events by slot so one slot's history stays ordered
func (e *ReservationEvent) Key() string {
	return e.SlotID
}

// NewBookingEvent creates an event for a booking
func NewBookingEvent(eventType ReservationEventType, booking *Booking, eventID string) *ReservationEvent {
	return &ReservationEvent{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now(),
		Version:    1,
		SlotID:     booking.SlotID,
		DinerID:    booking.DinerID,
		BookingID:  booking.ID,
		PartySize:  booking.PartySize,
	}
}

// NewAlertEvent creates an event for an alert
func NewAlertEvent(eventType ReservationEventType, alert *Alert, eventID string) *ReservationEvent {
	return &ReservationEvent{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now(),
		Version:    1,
		SlotID:     alert.SlotID,
		DinerID:    alert.DinerID,
		AlertID:    alert.ID,
	}
}

// NewPromotionEvent creates an alert.promoted event
func NewPromotionEvent(p *Promotion, eventID string) *ReservationEvent {
	until := p.ReservedUntil
	return &ReservationEvent{
		EventID:    eventID,
		EventType:  EventAlertPromoted,
		OccurredAt: time.Now(),
		Version:    1,
		SlotID:     p.SlotID,
		DinerID:    p.DinerID,
		AlertID:    p.AlertID,
		HoldUntil:  &until,
	}
}
