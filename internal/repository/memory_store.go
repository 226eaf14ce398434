package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
)

// MemoryStore is an in-process ReservationStore used by tests and local
// experiments. A single mutex makes every operation atomic.
type MemoryStore struct {
	mu        sync.Mutex
	slots     map[string]*domain.Slot
	bookings  map[string]*domain.Booking
	alerts    map[string][]*domain.Alert // slot id -> alerts in sequence order
	sequences map[string]int64
	tiers     map[string]domain.Tier
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:     make(map[string]*domain.Slot),
		bookings:  make(map[string]*domain.Booking),
		alerts:    make(map[string][]*domain.Alert),
		sequences: make(map[string]int64),
		tiers:     make(map[string]domain.Tier),
	}
}

// SetDinerTier registers a diner profile
func (m *MemoryStore) SetDinerTier(dinerID string, tier domain.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[dinerID] = tier
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateSlot publishes a new available slot
func (m *MemoryStore) CreateSlot(ctx context.Context, slot *domain.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[slot.ID]; ok {
		return domain.ErrSlotAlreadyExists
	}
	s := *slot
	s.Status = domain.SlotStatusAvailable
	s.ReservedForDinerID = nil
	s.ReservedUntil = nil
	m.slots[s.ID] = &s
	return nil
}

// GetSlot returns a copy of the slot
func (m *MemoryStore) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	return copySlot(s), nil
}

// DeleteSlot removes a slot while it is available
func (m *MemoryStore) DeleteSlot(ctx context.Context, slotID string) (*DeleteSlotResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return &DeleteSlotResult{ErrorCode: CodeSlotNotFound}, nil
	}
	if s.Status != domain.SlotStatusAvailable {
		return &DeleteSlotResult{ErrorCode: CodeSlotNotRemovable}, nil
	}
	delete(m.slots, slotID)
	delete(m.alerts, slotID)
	delete(m.sequences, slotID)
	return &DeleteSlotResult{Success: true}, nil
}

// GetBooking returns a copy of the booking
func (m *MemoryStore) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

// BookSlot performs the booked transition
func (m *MemoryStore) BookSlot(ctx context.Context, params BookSlotParams) (*BookSlotResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[params.SlotID]
	if !ok {
		return &BookSlotResult{ErrorCode: CodeSlotNotFound, ErrorMessage: "slot does not exist"}, nil
	}
	if !s.AcceptsPartySize(params.PartySize) {
		return &BookSlotResult{ErrorCode: CodeInvalidPartySize, ErrorMessage: "party size outside slot range"}, nil
	}

	claimedAlertID := ""
	switch s.Status {
	case domain.SlotStatusAvailable:
	case domain.SlotStatusReserved:
		if s.HoldExpired(params.Now) {
			return &BookSlotResult{ErrorCode: CodeHoldExpired, ErrorMessage: "reservation hold has expired"}, nil
		}
		if !s.IsHeldBy(params.DinerID) {
			return &BookSlotResult{ErrorCode: CodeReservedForAnother, ErrorMessage: "slot is held for another diner"}, nil
		}
		if a := m.openAlertLocked(s.ID, params.DinerID); a != nil {
			a.Status = domain.AlertStatusClaimed
			claimedAlertID = a.ID
		}
	default:
		return &BookSlotResult{ErrorCode: CodeSlotUnavailable, ErrorMessage: "slot is already booked"}, nil
	}

	booking := &domain.Booking{
		ID:        params.BookingID,
		SlotID:    s.ID,
		DinerID:   params.DinerID,
		PartySize: params.PartySize,
		Status:    domain.BookingStatusActive,
		Note:      params.Note,
		CreatedAt: params.Now,
	}
	m.bookings[booking.ID] = booking

	s.Status = domain.SlotStatusBooked
	s.ReservedForDinerID = nil
	s.ReservedUntil = nil
	s.UpdatedAt = params.Now

	cp := *booking
	return &BookSlotResult{Success: true, Booking: &cp, ClaimedAlertID: claimedAlertID}, nil
}

// CancelBooking performs booked → available and promotes the queue head
func (m *MemoryStore) CancelBooking(ctx context.Context, params CancelBookingParams) (*CancelBookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[params.BookingID]
	if !ok {
		return &CancelBookingResult{ErrorCode: CodeBookingNotFound, ErrorMessage: "booking does not exist"}, nil
	}
	if !b.IsActive() {
		return &CancelBookingResult{ErrorCode: CodeBookingNotActive, ErrorMessage: "booking is not active"}, nil
	}

	now := params.Now
	b.Status = domain.BookingStatusCancelled
	b.CancelledAt = &now

	result := &CancelBookingResult{Success: true}
	if s, ok := m.slots[b.SlotID]; ok && s.Status == domain.SlotStatusBooked {
		if a := m.openAlertLocked(s.ID, b.DinerID); a != nil {
			a.Status = domain.AlertStatusCancelled
			dropped := *a
			result.DroppedAlert = &dropped
		}
		s.Status = domain.SlotStatusAvailable
		s.UpdatedAt = now
		result.Promotion = m.promoteNextLocked(s, now, holdDuration(params.HoldDuration))
	}

	cp := *b
	result.Booking = &cp
	return result, nil
}

// ExpireHold releases a lapsed hold and promotes the next diner
func (m *MemoryStore) ExpireHold(ctx context.Context, params ExpireHoldParams) (*ExpireHoldResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[params.SlotID]
	if !ok || !s.HoldExpired(params.Now) {
		return &ExpireHoldResult{}, nil
	}

	result := &ExpireHoldResult{Expired: true}
	if a := m.openAlertLocked(s.ID, *s.ReservedForDinerID); a != nil && a.Status == domain.AlertStatusNotified {
		a.Status = domain.AlertStatusExpired
		cp := *a
		result.ExpiredAlert = &cp
	}

	s.Status = domain.SlotStatusAvailable
	s.ReservedForDinerID = nil
	s.ReservedUntil = nil
	s.UpdatedAt = params.Now

	result.Promotion = m.promoteNextLocked(s, params.Now, holdDuration(params.HoldDuration))
	return result, nil
}

// ListExpiredHolds returns reserved slots whose hold ended before the given time
func (m *MemoryStore) ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*domain.Slot
	for _, s := range m.slots {
		if s.Status == domain.SlotStatusReserved && s.ReservedUntil != nil && s.ReservedUntil.Before(before) {
			expired = append(expired, s)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ReservedUntil.Before(*expired[j].ReservedUntil)
	})

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// RegisterAlert appends a diner to the slot's queue
func (m *MemoryStore) RegisterAlert(ctx context.Context, params RegisterAlertParams) (*RegisterAlertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[params.SlotID]
	if !ok {
		return &RegisterAlertResult{ErrorCode: CodeSlotNotFound, ErrorMessage: "slot does not exist"}, nil
	}
	if m.openAlertLocked(s.ID, params.DinerID) != nil {
		return &RegisterAlertResult{ErrorCode: CodeAlreadyQueued, ErrorMessage: "diner already queued"}, nil
	}

	m.sequences[s.ID]++
	alert := &domain.Alert{
		ID:        params.AlertID,
		SlotID:    s.ID,
		DinerID:   params.DinerID,
		Status:    domain.AlertStatusActive,
		Sequence:  m.sequences[s.ID],
		CreatedAt: params.Now,
	}
	m.alerts[s.ID] = append(m.alerts[s.ID], alert)

	promotion := m.promoteNextLocked(s, params.Now, holdDuration(params.HoldDuration))

	cp := *alert
	return &RegisterAlertResult{Success: true, Alert: &cp, Promotion: promotion}, nil
}

// WithdrawAlert cancels a diner's open alert, releasing their hold if notified
func (m *MemoryStore) WithdrawAlert(ctx context.Context, params WithdrawAlertParams) (*WithdrawAlertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.openAlertLocked(params.SlotID, params.DinerID)
	if a == nil {
		return &WithdrawAlertResult{ErrorCode: CodeNotQueued, ErrorMessage: "diner is not queued"}, nil
	}

	wasNotified := a.Status == domain.AlertStatusNotified
	a.Status = domain.AlertStatusCancelled
	result := &WithdrawAlertResult{Success: true}

	if s, ok := m.slots[params.SlotID]; ok && wasNotified && s.IsHeldBy(params.DinerID) {
		s.Status = domain.SlotStatusAvailable
		s.ReservedForDinerID = nil
		s.ReservedUntil = nil
		s.UpdatedAt = params.Now
		result.ReleasedHold = true
		result.Promotion = m.promoteNextLocked(s, params.Now, holdDuration(params.HoldDuration))
	}

	cp := *a
	result.Alert = &cp
	return result, nil
}

// ListOpenAlerts returns active and notified alerts ordered by sequence
func (m *MemoryStore) ListOpenAlerts(ctx context.Context, slotID string) ([]*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []*domain.Alert
	for _, a := range m.alerts[slotID] {
		if a.Status.IsOpen() {
			cp := *a
			open = append(open, &cp)
		}
	}
	return open, nil
}

// GetTier returns a diner's membership tier
func (m *MemoryStore) GetTier(ctx context.Context, dinerID string) (domain.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tier, ok := m.tiers[dinerID]
	if !ok {
		return "", domain.ErrDinerNotFound
	}
	return tier, nil
}

// GetActiveFutureBookingCount counts active bookings on slots starting after now
func (m *MemoryStore) GetActiveFutureBookingCount(ctx context.Context, dinerID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, b := range m.bookings {
		if b.DinerID != dinerID || !b.IsActive() {
			continue
		}
		if s, ok := m.slots[b.SlotID]; ok && s.StartsAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) openAlertLocked(slotID, dinerID string) *domain.Alert {
	for _, a := range m.alerts[slotID] {
		if a.DinerID == dinerID && a.Status.IsOpen() {
			return a
		}
	}
	return nil
}

// promoteNextLocked gives the lowest-sequence active alert an exclusive hold
func (m *MemoryStore) promoteNextLocked(s *domain.Slot, now time.Time, hold time.Duration) *domain.Promotion {
	if s.Status != domain.SlotStatusAvailable {
		return nil
	}
	for _, a := range m.alerts[s.ID] {
		if a.Status != domain.AlertStatusActive {
			continue
		}
		until := now.Add(hold)
		dinerID := a.DinerID
		notifiedAt := now

		a.Status = domain.AlertStatusNotified
		a.NotifiedAt = &notifiedAt
		s.Status = domain.SlotStatusReserved
		s.ReservedForDinerID = &dinerID
		s.ReservedUntil = &until
		s.UpdatedAt = now

		return &domain.Promotion{
			SlotID:        s.ID,
			AlertID:       a.ID,
			DinerID:       dinerID,
			Sequence:      a.Sequence,
			NotifiedAt:    now,
			ReservedUntil: until,
		}
	}
	return nil
}

func copySlot(s *domain.Slot) *domain.Slot {
	cp := *s
	if s.ReservedForDinerID != nil {
		d := *s.ReservedForDinerID
		cp.ReservedForDinerID = &d
	}
	if s.ReservedUntil != nil {
		u := *s.ReservedUntil
		cp.ReservedUntil = &u
	}
	return &cp
}

var (
	_ ReservationStore       = (*MemoryStore)(nil)
	_ DinerProfileRepository = (*MemoryStore)(nil)
)
