package domain

import "time"

// Tier classifies both slots and diners
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// IsValid reports whether t is a known tier
func (t Tier) IsValid() bool {
	return t == TierStandard || t == TierElevated
}

// SlotStatus represents the lifecycle status of a slot
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusReserved  SlotStatus = "reserved"
	SlotStatusBooked    SlotStatus = "booked"
)

// Slot is a bookable time window at a venue
type Slot struct {
	ID                 string     `json:"id"`
	VenueID            string     `json:"venue_id"`
	VenueName          string     `json:"venue_name"`
	StartsAt           time.Time  `json:"starts_at"`
	PartyMin           int        `json:"party_min"`
	PartyMax           int        `json:"party_max"`
	Tier               Tier       `json:"tier"`
	Status             SlotStatus `json:"status"`
	ReservedForDinerID *string    `json:"reserved_for_diner_id,omitempty"`
	ReservedUntil      *time.Time `json:"reserved_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Validate validates a slot about to be published
func (s *Slot) Validate() error {
	if s.ID == "" {
		return ErrInvalidSlotID
	}
	if s.VenueID == "" {
		return ErrInvalidVenueID
	}
	if s.StartsAt.IsZero() {
		return ErrInvalidStartTime
	}
	if s.PartyMin < 1 || s.PartyMin > s.PartyMax {
		return ErrInvalidPartyRange
	}
	if !s.Tier.IsValid() {
		return ErrInvalidTier
	}
	return nil
}

// AcceptsPartySize reports whether size is within the slot's inclusive range
func (s *Slot) AcceptsPartySize(size int) bool {
	return size >= s.PartyMin && size <= s.PartyMax
}

// IsHeldBy reports whether the slot is reserved for dinerID
func (s *Slot) IsHeldBy(dinerID string) bool {
	return s.Status == SlotStatusReserved &&
		s.ReservedForDinerID != nil &&
		*s.ReservedForDinerID == dinerID
}

// HoldExpired reports whether a reserved slot's hold has lapsed at now
func (s *Slot) HoldExpired(now time.Time) bool {
	if s.Status != SlotStatusReserved || s.ReservedUntil == nil {
		return false
	}
	return !now.Before(*s.ReservedUntil)
}

// EffectiveStatusFor returns the status the eligibility rules should see for
// dinerID. An unexpired hold is available to its holder.
func (s *Slot) EffectiveStatusFor(dinerID string, now time.Time) SlotStatus {
	if s.IsHeldBy(dinerID) && !s.HoldExpired(now) {
		return SlotStatusAvailable
	}
	return s.Status
}

// HoldConsistent checks that hold fields are both set exactly when reserved
func (s *Slot) HoldConsistent() bool {
	held := s.ReservedForDinerID != nil
	until := s.ReservedUntil != nil
	if held != until {
		return false
	}
	if s.Status == SlotStatusReserved {
		return held
	}
	return !held
}
