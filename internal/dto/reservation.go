package dto

import (
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
)

// BookRequest represents request to book a slot
type BookRequest struct {
	SlotID    string  `json:"slot_id" binding:"required"`
	PartySize int     `json:"party_size" binding:"required,min=1,max=20"`
	Note      *string `json:"note,omitempty" binding:"omitempty,max=500"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID          string     `json:"id"`
	SlotID      string     `json:"slot_id"`
	DinerID     string     `json:"diner_id"`
	PartySize   int        `json:"party_size"`
	Status      string     `json:"status"`
	Note        *string    `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// CancelBookingResponse represents response after cancelling a booking
type CancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// EligibilityResponse represents the outcome of an eligibility check
type EligibilityResponse struct {
	SlotID     string `json:"slot_id"`
	Eligible   bool   `json:"eligible"`
	Reason     string `json:"reason,omitempty"`
	TierBased  bool   `json:"tier_based"`
	LastMinute bool   `json:"last_minute"`
}

// AlertResponse represents an alert in API response
type AlertResponse struct {
	ID         string     `json:"id"`
	SlotID     string     `json:"slot_id"`
	Status     string     `json:"status"`
	Sequence   int64      `json:"sequence"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// QueuePositionResponse represents a diner's standing on a slot's queue
type QueuePositionResponse struct {
	SlotID        string     `json:"slot_id"`
	Queued        bool       `json:"queued"`
	Status        string     `json:"status,omitempty"`
	Position      int        `json:"position"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

// QueueEntryResponse is one row of a slot's queue
type QueueEntryResponse struct {
	AlertID  string `json:"alert_id"`
	DinerID  string `json:"diner_id"`
	Status   string `json:"status"`
	Sequence int64  `json:"sequence"`
	Position int    `json:"position"`
	// HoldRemainingSeconds is set for the notified holder only
	HoldRemainingSeconds int64 `json:"hold_remaining_seconds,omitempty"`
}

// QueueResponse represents a slot's queue
type QueueResponse struct {
	SlotID  string                `json:"slot_id"`
	Length  int                   `json:"length"`
	Entries []*QueueEntryResponse `json:"entries"`
}

// PublishSlotRequest represents request to publish a slot
type PublishSlotRequest struct {
	ID        string    `json:"id,omitempty"`
	VenueID   string    `json:"venue_id" binding:"required"`
	VenueName string    `json:"venue_name,omitempty"`
	StartsAt  time.Time `json:"starts_at" binding:"required"`
	PartyMin  int       `json:"party_min" binding:"required,min=1"`
	PartyMax  int       `json:"party_max" binding:"required,gtefield=PartyMin"`
	Tier      string    `json:"tier" binding:"required,oneof=standard elevated"`
}

// ToDomain converts the request into a slot. An empty ID is left for the
// service to assign.
func (r *PublishSlotRequest) ToDomain() *domain.Slot {
	return &domain.Slot{
		ID:        r.ID,
		VenueID:   r.VenueID,
		VenueName: r.VenueName,
		StartsAt:  r.StartsAt,
		PartyMin:  r.PartyMin,
		PartyMax:  r.PartyMax,
		Tier:      domain.Tier(r.Tier),
	}
}

// SlotResponse represents a slot in API response
type SlotResponse struct {
	ID                 string     `json:"id"`
	VenueID            string     `json:"venue_id"`
	VenueName          string     `json:"venue_name,omitempty"`
	StartsAt           time.Time  `json:"starts_at"`
	PartyMin           int        `json:"party_min"`
	PartyMax           int        `json:"party_max"`
	Tier               string     `json:"tier"`
	Status             string     `json:"status"`
	ReservedForDinerID *string    `json:"reserved_for_diner_id,omitempty"`
	ReservedUntil      *time.Time `json:"reserved_until,omitempty"`
}

// SweepResponse represents the outcome of a manual sweep
type SweepResponse struct {
	Scanned    int   `json:"scanned"`
	Expired    int   `json:"expired"`
	Promoted   int   `json:"promoted"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	// TierBased marks refusals that should prompt a membership upsell
	TierBased bool `json:"tier_based,omitempty"`
	Retryable bool `json:"retryable,omitempty"`
	// TraceID correlates a server failure with its logs
	TraceID string `json:"trace_id,omitempty"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:          b.ID,
		SlotID:      b.SlotID,
		DinerID:     b.DinerID,
		PartySize:   b.PartySize,
		Status:      string(b.Status),
		Note:        b.Note,
		CreatedAt:   b.CreatedAt,
		CancelledAt: b.CancelledAt,
	}
}

// EligibilityFromDomain converts a verdict
func EligibilityFromDomain(slotID string, v *domain.Verdict) *EligibilityResponse {
	return &EligibilityResponse{
		SlotID:     slotID,
		Eligible:   v.Eligible,
		Reason:     string(v.Reason),
		TierBased:  v.TierBased,
		LastMinute: v.LastMinute,
	}
}

// AlertFromDomain converts domain Alert to AlertResponse
func AlertFromDomain(a *domain.Alert) *AlertResponse {
	return &AlertResponse{
		ID:         a.ID,
		SlotID:     a.SlotID,
		Status:     string(a.Status),
		Sequence:   a.Sequence,
		CreatedAt:  a.CreatedAt,
		NotifiedAt: a.NotifiedAt,
	}
}

// PositionFromDomain converts a queue position. A nil position means the
// diner is not queued.
func PositionFromDomain(slotID string, p *domain.QueuePosition) *QueuePositionResponse {
	if p == nil {
		return &QueuePositionResponse{SlotID: slotID}
	}
	return &QueuePositionResponse{
		SlotID:        p.SlotID,
		Queued:        true,
		Status:        string(p.Status),
		Position:      p.Position,
		HoldExpiresAt: p.HoldExpiresAt,
	}
}

// QueueFromDomain converts the queue read model
func QueueFromDomain(slotID string, entries []*domain.QueueEntry) *QueueResponse {
	resp := &QueueResponse{
		SlotID:  slotID,
		Length:  len(entries),
		Entries: make([]*QueueEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, &QueueEntryResponse{
			AlertID:              e.AlertID,
			DinerID:              e.DinerID,
			Status:               string(e.Status),
			Sequence:             e.Sequence,
			Position:             e.Position,
			HoldRemainingSeconds: int64(e.HoldRemaining.Seconds()),
		})
	}
	return resp
}

// SlotFromDomain converts domain Slot to SlotResponse
func SlotFromDomain(s *domain.Slot) *SlotResponse {
	return &SlotResponse{
		ID:                 s.ID,
		VenueID:            s.VenueID,
		VenueName:          s.VenueName,
		StartsAt:           s.StartsAt,
		PartyMin:           s.PartyMin,
		PartyMax:           s.PartyMax,
		Tier:               string(s.Tier),
		Status:             string(s.Status),
		ReservedForDinerID: s.ReservedForDinerID,
		ReservedUntil:      s.ReservedUntil,
	}
}
