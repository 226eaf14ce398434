package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/metrics"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/repository"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReservationService defines the reservation core operations
type ReservationService interface {
	// CheckEligibility evaluates whether a diner may book a slot right now.
	// It never changes state. A lapsed hold that no sweep has cleared yet is
	// judged as Book would find it after expiring the hold: the next queued
	// diner gets it, else it is available. The lapsed holder is refused.
	CheckEligibility(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error)

	// Book books a slot for a diner, claiming their hold if they have one
	Book(ctx context.Context, req *BookRequest) (*domain.Booking, error)

	// CancelBooking cancels a booking and promotes the slot's queue head.
	// An empty dinerID skips the ownership check.
	CancelBooking(ctx context.Context, bookingID, dinerID string) error

	// GetBooking retrieves a booking. An empty dinerID skips the ownership check.
	GetBooking(ctx context.Context, bookingID, dinerID string) (*domain.Booking, error)

	// RegisterAlert places the diner at the tail of the slot's queue
	RegisterAlert(ctx context.Context, slotID, dinerID string) (*domain.Alert, error)

	// WithdrawAlert removes the diner from the slot's queue, releasing their
	// hold if they were notified
	WithdrawAlert(ctx context.Context, slotID, dinerID string) error

	// GetQueuePosition returns the diner's standing, or nil when not queued
	GetQueuePosition(ctx context.Context, slotID, dinerID string) (*domain.QueuePosition, error)

	// GetQueue returns the slot's queue read model
	GetQueue(ctx context.Context, slotID string) ([]*domain.QueueEntry, error)

	// PublishSlot makes a new slot bookable
	PublishSlot(ctx context.Context, slot *domain.Slot) (*domain.Slot, error)

	// RemoveSlot deletes a slot that is available
	RemoveSlot(ctx context.Context, slotID string) error

	// ExpireHold runs the expiry transition for one slot. It reports false
	// when the slot held no lapsed reservation.
	ExpireHold(ctx context.Context, slotID string) (bool, error)

	// SweepExpiredReservations expires every lapsed hold. Safe to run
	// concurrently with itself and with user actions.
	SweepExpiredReservations(ctx context.Context) (*SweepResult, error)
}

// BookRequest is the input of Book
type BookRequest struct {
	SlotID    string
	DinerID   string
	PartySize int
	Note      *string
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Expired  int           `json:"expired"`
	Promoted int           `json:"promoted"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ReservationServiceConfig contains configuration for the reservation service
type ReservationServiceConfig struct {
	Policy         *domain.EligibilityPolicy
	HoldDuration   time.Duration
	SweepBatchSize int
	// EnqueueTimeout bounds the post-commit hand-off of a claim notification
	EnqueueTimeout time.Duration
	// Clock returns the current time; defaults to time.Now
	Clock func() time.Time
}

// reservationService implements ReservationService
type reservationService struct {
	store          repository.ReservationStore
	profiles       repository.DinerProfileRepository
	claims         ClaimQueue
	eventPublisher EventPublisher
	holdScheduler  HoldScheduler
	policy         domain.EligibilityPolicy
	holdDuration   time.Duration
	sweepBatchSize int
	enqueueTimeout time.Duration
	clock          func() time.Time
}

// NewReservationService creates a new reservation service
func NewReservationService(
	store repository.ReservationStore,
	profiles repository.DinerProfileRepository,
	claims ClaimQueue,
	eventPublisher EventPublisher,
	holdScheduler HoldScheduler,
	cfg *ReservationServiceConfig,
) ReservationService {
	policy := domain.DefaultEligibilityPolicy()
	hold := repository.DefaultHoldDuration
	batch := 100
	enqueueTimeout := 2 * time.Second
	clock := time.Now
	if cfg != nil {
		if cfg.Policy != nil {
			policy = *cfg.Policy
		}
		if cfg.HoldDuration > 0 {
			hold = cfg.HoldDuration
		}
		if cfg.SweepBatchSize > 0 {
			batch = cfg.SweepBatchSize
		}
		if cfg.EnqueueTimeout > 0 {
			enqueueTimeout = cfg.EnqueueTimeout
		}
		if cfg.Clock != nil {
			clock = cfg.Clock
		}
	}
	if claims == nil {
		claims = NoOpClaimQueue{}
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	if holdScheduler == nil {
		holdScheduler = NoOpHoldScheduler{}
	}
	return &reservationService{
		store:          store,
		profiles:       profiles,
		claims:         claims,
		eventPublisher: eventPublisher,
		holdScheduler:  holdScheduler,
		policy:         policy,
		holdDuration:   hold,
		sweepBatchSize: batch,
		enqueueTimeout: enqueueTimeout,
		clock:          clock,
	}
}

func (s *reservationService) now() time.Time {
	return s.clock().UTC()
}

// CheckEligibility evaluates a diner against a slot
func (s *reservationService) CheckEligibility(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.check_eligibility")
	defer span.End()

	if slotID == "" {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}
	if dinerID == "" {
		return nil, failSpan(span, domain.ErrInvalidDinerID)
	}
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("diner_id", dinerID))

	slot, err := s.getSlot(ctx, "check_eligibility", slotID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	now := s.now()
	if slot.HoldExpired(now) && !slot.IsHeldBy(dinerID) {
		slot, err = s.afterLapse(ctx, slot)
		if err != nil {
			return nil, failSpan(span, err)
		}
	}
	if slot.Status == domain.SlotStatusReserved && !slot.HoldExpired(now) && !slot.IsHeldBy(dinerID) {
		verdict := &domain.Verdict{Reason: domain.RefusalReservedForAnotherUser}
		span.SetAttributes(attribute.String("verdict", string(verdict.Reason)))
		return verdict, nil
	}

	standing, err := s.standing(ctx, dinerID, now)
	if err != nil {
		return nil, failSpan(span, err)
	}

	verdict := s.evaluate(slot, standing, now)
	span.SetAttributes(
		attribute.Bool("eligible", verdict.Eligible),
		attribute.String("verdict", string(verdict.Reason)),
		attribute.Bool("last_minute", verdict.LastMinute),
	)
	span.SetStatus(codes.Ok, "")
	return &verdict, nil
}

// afterLapse returns the slot as ExpireHold would leave it, without writing
func (s *reservationService) afterLapse(ctx context.Context, slot *domain.Slot) (*domain.Slot, error) {
	alerts, err := s.store.ListOpenAlerts(ctx, slot.ID)
	if err != nil {
		return nil, domain.NewInfrastructureError("check_eligibility", err)
	}

	view := *slot
	view.Status = domain.SlotStatusAvailable
	view.ReservedForDinerID = nil
	view.ReservedUntil = nil
	for _, a := range alerts {
		if a.Status != domain.AlertStatusActive {
			continue
		}
		until := s.now().Add(s.holdDuration)
		next := a.DinerID
		view.Status = domain.SlotStatusReserved
		view.ReservedForDinerID = &next
		view.ReservedUntil = &until
		break
	}
	return &view, nil
}

// Book books a slot
func (s *reservationService) Book(ctx context.Context, req *BookRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.book")
	defer span.End()

	if req == nil || req.SlotID == "" {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}
	if req.DinerID == "" {
		return nil, failSpan(span, domain.ErrInvalidDinerID)
	}
	if req.PartySize <= 0 {
		return nil, failSpan(span, domain.ErrInvalidPartySize)
	}
	span.SetAttributes(
		attribute.String("slot_id", req.SlotID),
		attribute.String("diner_id", req.DinerID),
		attribute.Int("party_size", req.PartySize),
	)

	// A lapsed hold seen by anyone but the holder is expired and the caller
	// gets one more evaluation against the fresh state
	reevaluated := false
	for {
		booking, again, err := s.tryBook(ctx, req)
		if err != nil {
			if refusal, ok := domain.AsRefusal(err); ok {
				metrics.RecordRefusal(ctx, "book", string(refusal.Code))
				span.SetAttributes(attribute.String("refusal", string(refusal.Code)))
			}
			return nil, failSpan(span, err)
		}
		if again {
			if reevaluated {
				metrics.RecordRefusal(ctx, "book", string(domain.RefusalSlotUnavailable))
				return nil, failSpan(span, domain.ErrSlotUnavailable)
			}
			reevaluated = true
			continue
		}

		span.AddEvent("booking_created", trace.WithAttributes(attribute.String("booking_id", booking.ID)))
		span.SetStatus(codes.Ok, "")
		return booking, nil
	}
}

// tryBook runs one evaluate-then-commit pass. again is true when an expired
// hold was cleared and the caller should evaluate again.
func (s *reservationService) tryBook(ctx context.Context, req *BookRequest) (*domain.Booking, bool, error) {
	slot, err := s.getSlot(ctx, "book", req.SlotID)
	if err != nil {
		return nil, false, err
	}
	if !slot.AcceptsPartySize(req.PartySize) {
		return nil, false, domain.ErrInvalidPartySize
	}

	now := s.now()
	if slot.HoldExpired(now) {
		again, err := s.expireForBooker(ctx, slot.ID, slot.IsHeldBy(req.DinerID), now)
		return nil, again, err
	}
	if slot.Status == domain.SlotStatusReserved && !slot.IsHeldBy(req.DinerID) {
		return nil, false, domain.ErrReservedForAnotherUser
	}

	standing, err := s.standing(ctx, req.DinerID, now)
	if err != nil {
		return nil, false, err
	}
	verdict := s.evaluate(slot, standing, now)
	if !verdict.Eligible {
		return nil, false, verdict.Err()
	}

	result, err := s.store.BookSlot(ctx, repository.BookSlotParams{
		BookingID: uuid.New().String(),
		SlotID:    slot.ID,
		DinerID:   req.DinerID,
		PartySize: req.PartySize,
		Note:      req.Note,
		Now:       now,
	})
	if err != nil {
		return nil, false, domain.NewInfrastructureError("book", err)
	}
	if !result.Success {
		if result.ErrorCode == repository.CodeHoldExpired {
			again, err := s.expireForBooker(ctx, slot.ID, slot.IsHeldBy(req.DinerID), now)
			return nil, again, err
		}
		return nil, false, storeRefusal(result.ErrorCode)
	}

	booking := result.Booking
	metrics.RecordBooking(ctx, verdict.LastMinute)
	s.publishBooking(ctx, domain.EventBookingCreated, booking)

	if result.ClaimedAlertID != "" {
		metrics.RecordAlertClosed(ctx, "claimed")
		if slot.ReservedUntil != nil {
			metrics.RecordClaimLatency(ctx, now.Sub(slot.ReservedUntil.Add(-s.holdDuration)).Seconds())
		}
		s.publishAlert(ctx, domain.EventAlertClaimed, &domain.Alert{
			ID:      result.ClaimedAlertID,
			SlotID:  slot.ID,
			DinerID: req.DinerID,
			Status:  domain.AlertStatusClaimed,
		})
	}

	logger.Get().InfoContext(ctx, fmt.Sprintf("Booked slot %s for diner %s", slot.ID, req.DinerID),
		zap.String("booking_id", booking.ID),
		zap.Bool("last_minute", verdict.LastMinute),
		zap.Bool("claimed_hold", result.ClaimedAlertID != ""),
	)
	return booking, false, nil
}

// expireForBooker clears a lapsed hold found while booking. The holder is
// refused; anyone else may re-evaluate.
func (s *reservationService) expireForBooker(ctx context.Context, slotID string, isHolder bool, now time.Time) (bool, error) {
	if _, err := s.expireHold(ctx, slotID, now); err != nil {
		return false, err
	}
	if isHolder {
		return false, domain.ErrHoldExpired
	}
	return true, nil
}

// CancelBooking cancels a booking
func (s *reservationService) CancelBooking(ctx context.Context, bookingID, dinerID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel_booking")
	defer span.End()

	if bookingID == "" {
		return failSpan(span, domain.ErrInvalidBookingID)
	}
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if _, err := s.ownedBooking(ctx, "cancel_booking", bookingID, dinerID); err != nil {
		return failSpan(span, err)
	}

	now := s.now()
	result, err := s.store.CancelBooking(ctx, repository.CancelBookingParams{
		BookingID:    bookingID,
		Now:          now,
		HoldDuration: s.holdDuration,
	})
	if err != nil {
		return failSpan(span, domain.NewInfrastructureError("cancel_booking", err))
	}
	if !result.Success {
		return failSpan(span, storeRefusal(result.ErrorCode))
	}

	metrics.RecordCancellation(ctx)
	s.publishBooking(ctx, domain.EventBookingCancelled, result.Booking)
	if result.DroppedAlert != nil {
		metrics.RecordAlertClosed(ctx, "withdrawn")
		s.publishAlert(ctx, domain.EventAlertWithdrawn, result.DroppedAlert)
	}
	s.afterPromotion(ctx, result.Promotion, "cancel")

	span.SetAttributes(attribute.Bool("promoted", result.Promotion != nil))
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetBooking retrieves a booking
func (s *reservationService) GetBooking(ctx context.Context, bookingID, dinerID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_booking")
	defer span.End()

	if bookingID == "" {
		return nil, failSpan(span, domain.ErrInvalidBookingID)
	}

	booking, err := s.ownedBooking(ctx, "get_booking", bookingID, dinerID)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *reservationService) ownedBooking(ctx context.Context, op, bookingID, dinerID string) (*domain.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(op, err)
	}
	// Other diners' bookings are reported as missing
	if dinerID != "" && booking.DinerID != dinerID {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}

// RegisterAlert joins the slot's queue
func (s *reservationService) RegisterAlert(ctx context.Context, slotID, dinerID string) (*domain.Alert, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.register_alert")
	defer span.End()

	if slotID == "" {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}
	if dinerID == "" {
		return nil, failSpan(span, domain.ErrInvalidDinerID)
	}
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("diner_id", dinerID))

	slot, err := s.getSlot(ctx, "register_alert", slotID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	now := s.now()
	tier, err := s.dinerTier(ctx, dinerID)
	if err != nil {
		return nil, failSpan(span, err)
	}
	if err := s.policy.TierGate(slot.Tier, slot.StartsAt, tier, now); err != nil {
		metrics.RecordRefusal(ctx, "register_alert", string(domain.RefusalTierRequired))
		return nil, failSpan(span, err)
	}

	result, err := s.store.RegisterAlert(ctx, repository.RegisterAlertParams{
		AlertID:      uuid.New().String(),
		SlotID:       slotID,
		DinerID:      dinerID,
		Now:          now,
		HoldDuration: s.holdDuration,
	})
	if err != nil {
		return nil, failSpan(span, domain.NewInfrastructureError("register_alert", err))
	}
	if !result.Success {
		err := storeRefusal(result.ErrorCode)
		if refusal, ok := domain.AsRefusal(err); ok {
			metrics.RecordRefusal(ctx, "register_alert", string(refusal.Code))
		}
		return nil, failSpan(span, err)
	}

	alert := result.Alert
	if p := result.Promotion; p != nil && p.AlertID == alert.ID {
		notifiedAt := p.NotifiedAt
		alert.Status = domain.AlertStatusNotified
		alert.NotifiedAt = &notifiedAt
	}

	metrics.RecordAlertRegistered(ctx)
	s.publishAlert(ctx, domain.EventAlertRegistered, alert)
	s.afterPromotion(ctx, result.Promotion, "register")

	span.SetAttributes(attribute.Int64("sequence", alert.Sequence))
	span.SetStatus(codes.Ok, "")
	return alert, nil
}

// WithdrawAlert leaves the slot's queue
func (s *reservationService) WithdrawAlert(ctx context.Context, slotID, dinerID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.withdraw_alert")
	defer span.End()

	if slotID == "" {
		return failSpan(span, domain.ErrInvalidSlotID)
	}
	if dinerID == "" {
		return failSpan(span, domain.ErrInvalidDinerID)
	}
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("diner_id", dinerID))

	result, err := s.store.WithdrawAlert(ctx, repository.WithdrawAlertParams{
		SlotID:       slotID,
		DinerID:      dinerID,
		Now:          s.now(),
		HoldDuration: s.holdDuration,
	})
	if err != nil {
		return failSpan(span, domain.NewInfrastructureError("withdraw_alert", err))
	}
	if !result.Success {
		metrics.RecordRefusal(ctx, "withdraw_alert", result.ErrorCode)
		return failSpan(span, storeRefusal(result.ErrorCode))
	}

	metrics.RecordAlertClosed(ctx, "withdrawn")
	if result.Alert != nil {
		s.publishAlert(ctx, domain.EventAlertWithdrawn, result.Alert)
	}
	s.afterPromotion(ctx, result.Promotion, "withdraw")

	span.SetAttributes(attribute.Bool("released_hold", result.ReleasedHold))
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetQueuePosition returns the diner's standing on the slot's queue
func (s *reservationService) GetQueuePosition(ctx context.Context, slotID, dinerID string) (*domain.QueuePosition, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_queue_position")
	defer span.End()

	if slotID == "" {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}
	if dinerID == "" {
		return nil, failSpan(span, domain.ErrInvalidDinerID)
	}

	slot, entries, err := s.queue(ctx, slotID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	for _, e := range entries {
		if e.DinerID != dinerID {
			continue
		}
		pos := &domain.QueuePosition{
			SlotID:   slotID,
			DinerID:  dinerID,
			Status:   e.Status,
			Position: e.Position,
		}
		if e.Status == domain.AlertStatusNotified && slot.ReservedUntil != nil {
			until := *slot.ReservedUntil
			pos.HoldExpiresAt = &until
		}
		span.SetAttributes(attribute.Int("position", pos.Position))
		span.SetStatus(codes.Ok, "")
		return pos, nil
	}

	span.SetStatus(codes.Ok, "not queued")
	return nil, nil
}

// GetQueue returns the queue read model
func (s *reservationService) GetQueue(ctx context.Context, slotID string) ([]*domain.QueueEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_queue")
	defer span.End()

	if slotID == "" {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}

	_, entries, err := s.queue(ctx, slotID)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int("queue_length", len(entries)))
	span.SetStatus(codes.Ok, "")
	return entries, nil
}

func (s *reservationService) queue(ctx context.Context, slotID string) (*domain.Slot, []*domain.QueueEntry, error) {
	slot, err := s.getSlot(ctx, "get_queue", slotID)
	if err != nil {
		return nil, nil, err
	}
	alerts, err := s.store.ListOpenAlerts(ctx, slotID)
	if err != nil {
		return nil, nil, domain.NewInfrastructureError("get_queue", err)
	}
	return slot, domain.BuildQueue(alerts, slot.ReservedUntil, s.now()), nil
}

// PublishSlot creates an available slot
func (s *reservationService) PublishSlot(ctx context.Context, slot *domain.Slot) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.publish_slot")
	defer span.End()

	if slot == nil {
		return nil, failSpan(span, domain.ErrInvalidSlotID)
	}

	now := s.now()
	created := *slot
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Tier == "" {
		created.Tier = domain.TierStandard
	}
	created.StartsAt = created.StartsAt.UTC()
	created.Status = domain.SlotStatusAvailable
	created.ReservedForDinerID = nil
	created.ReservedUntil = nil
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := created.Validate(); err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(attribute.String("slot_id", created.ID), attribute.String("venue_id", created.VenueID))

	if err := s.store.CreateSlot(ctx, &created); err != nil {
		return nil, failSpan(span, storeError("publish_slot", err))
	}

	span.SetStatus(codes.Ok, "")
	return &created, nil
}

// RemoveSlot deletes an available slot
func (s *reservationService) RemoveSlot(ctx context.Context, slotID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.remove_slot")
	defer span.End()

	if slotID == "" {
		return failSpan(span, domain.ErrInvalidSlotID)
	}
	span.SetAttributes(attribute.String("slot_id", slotID))

	result, err := s.store.DeleteSlot(ctx, slotID)
	if err != nil {
		return failSpan(span, domain.NewInfrastructureError("remove_slot", err))
	}
	if !result.Success {
		return failSpan(span, storeRefusal(result.ErrorCode))
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ExpireHold expires one slot's lapsed hold
func (s *reservationService) ExpireHold(ctx context.Context, slotID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.expire_hold")
	defer span.End()

	if slotID == "" {
		return false, failSpan(span, domain.ErrInvalidSlotID)
	}
	span.SetAttributes(attribute.String("slot_id", slotID))

	result, err := s.expireHold(ctx, slotID, s.now())
	if err != nil {
		return false, failSpan(span, err)
	}
	span.SetAttributes(attribute.Bool("expired", result.Expired))
	span.SetStatus(codes.Ok, "")
	return result.Expired, nil
}

func (s *reservationService) expireHold(ctx context.Context, slotID string, now time.Time) (*repository.ExpireHoldResult, error) {
	result, err := s.store.ExpireHold(ctx, repository.ExpireHoldParams{
		SlotID:       slotID,
		Now:          now,
		HoldDuration: s.holdDuration,
	})
	if err != nil {
		return nil, domain.NewInfrastructureError("expire_hold", err)
	}
	if !result.Expired {
		return result, nil
	}

	if result.ExpiredAlert != nil {
		metrics.RecordAlertClosed(ctx, "expired")
		s.publishAlert(ctx, domain.EventAlertExpired, result.ExpiredAlert)
	}
	logger.Get().InfoContext(ctx, fmt.Sprintf("Expired hold on slot %s", slotID),
		zap.Bool("promoted", result.Promotion != nil),
	)
	s.afterPromotion(ctx, result.Promotion, "expiry")
	return result, nil
}

// SweepExpiredReservations expires all lapsed holds in batches
func (s *reservationService) SweepExpiredReservations(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.sweep")
	defer span.End()

	start := time.Now()
	now := s.now()
	result := &SweepResult{}

	failed := make(map[string]bool)
	for {
		// Slots that failed stay expired; widen the window past them
		limit := s.sweepBatchSize + len(failed)
		ids, err := s.store.ListExpiredHolds(ctx, now, limit)
		if err != nil {
			return result, failSpan(span, domain.NewInfrastructureError("sweep", err))
		}

		attempted := 0
		for _, id := range ids {
			if failed[id] {
				continue
			}
			if ctx.Err() != nil {
				return result, failSpan(span, ctx.Err())
			}
			attempted++
			result.Scanned++

			expired, err := s.expireHold(ctx, id, now)
			if err != nil {
				failed[id] = true
				result.Failed++
				logger.Get().ErrorContext(ctx, fmt.Sprintf("Failed to expire hold on slot %s", id), zap.Error(err))
				continue
			}
			if expired.Expired {
				result.Expired++
			}
			if expired.Promotion != nil {
				result.Promoted++
			}
		}

		if len(ids) < limit || attempted == 0 {
			break
		}
	}

	result.Duration = time.Since(start)
	metrics.RecordSweep(ctx, result.Duration.Seconds(), result.Failed)

	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("expired", result.Expired),
		attribute.Int("promoted", result.Promoted),
		attribute.Int("failed", result.Failed),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// afterPromotion runs the side effects of a promotion. None of them can undo
// the hold, so failures are logged and counted only. The claim notification
// is handed to the claim queue; delivery never runs on this path.
func (s *reservationService) afterPromotion(ctx context.Context, p *domain.Promotion, trigger string) {
	if p == nil {
		return
	}
	metrics.RecordPromotion(ctx, trigger)

	log := logger.Get().With(
		zap.String("slot_id", p.SlotID),
		zap.String("diner_id", p.DinerID),
		zap.String("alert_id", p.AlertID),
	)
	log.InfoContext(ctx, fmt.Sprintf("Promoted alert %d to hold until %s", p.Sequence, p.ReservedUntil.Format(time.RFC3339)),
		zap.String("trigger", trigger),
	)

	if err := s.eventPublisher.PublishPromotion(ctx, p); err != nil {
		log.WarnContext(ctx, "failed to publish promotion event", zap.Error(err))
	}
	if err := s.holdScheduler.ScheduleExpiry(ctx, p.SlotID, p.ReservedUntil); err != nil {
		log.WarnContext(ctx, "failed to schedule hold expiry", zap.Error(err))
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.enqueueTimeout)
	defer cancel()

	slot, err := s.store.GetSlot(enqueueCtx, p.SlotID)
	if err != nil {
		metrics.RecordNotificationFailure(ctx)
		log.ErrorContext(ctx, "failed to load slot for claim notification", zap.Error(err))
		return
	}
	note := domain.NewClaimNotification(uuid.New().String(), slot, p)
	if err := s.claims.Enqueue(enqueueCtx, note); err != nil {
		metrics.RecordNotificationFailure(ctx)
		log.ErrorContext(ctx, "failed to enqueue claim notification", zap.Error(err))
	}
}

func (s *reservationService) publishBooking(ctx context.Context, eventType domain.ReservationEventType, booking *domain.Booking) {
	if booking == nil {
		return
	}
	if err := s.eventPublisher.PublishBookingEvent(ctx, eventType, booking); err != nil {
		logger.Get().WarnContext(ctx, fmt.Sprintf("Failed to publish %s event", eventType),
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

func (s *reservationService) publishAlert(ctx context.Context, eventType domain.ReservationEventType, alert *domain.Alert) {
	if err := s.eventPublisher.PublishAlertEvent(ctx, eventType, alert); err != nil {
		logger.Get().WarnContext(ctx, fmt.Sprintf("Failed to publish %s event", eventType),
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

func (s *reservationService) getSlot(ctx context.Context, op, slotID string) (*domain.Slot, error) {
	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, storeError(op, err)
	}
	return slot, nil
}

func (s *reservationService) evaluate(slot *domain.Slot, standing domain.DinerStanding, now time.Time) domain.Verdict {
	return s.policy.Evaluate(domain.EligibilityInput{
		SlotStatus: slot.EffectiveStatusFor(standing.DinerID, now),
		SlotTier:   slot.Tier,
		SlotStart:  slot.StartsAt,
		Diner:      standing,
		Now:        now,
	})
}

func (s *reservationService) standing(ctx context.Context, dinerID string, now time.Time) (domain.DinerStanding, error) {
	tier, err := s.dinerTier(ctx, dinerID)
	if err != nil {
		return domain.DinerStanding{}, err
	}
	count, err := s.profiles.GetActiveFutureBookingCount(ctx, dinerID, now)
	if err != nil {
		return domain.DinerStanding{}, domain.NewInfrastructureError("booking_count", err)
	}
	return domain.DinerStanding{DinerID: dinerID, Tier: tier, ActiveFutureBookings: count}, nil
}

// dinerTier treats diners without a profile as standard members
func (s *reservationService) dinerTier(ctx context.Context, dinerID string) (domain.Tier, error) {
	tier, err := s.profiles.GetTier(ctx, dinerID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return domain.TierStandard, nil
		}
		return "", domain.NewInfrastructureError("diner_tier", err)
	}
	if !tier.IsValid() {
		return domain.TierStandard, nil
	}
	return tier, nil
}

// storeError passes domain sentinels through and wraps everything else as
// an infrastructure failure
func storeError(op string, err error) error {
	if domain.IsNotFoundError(err) || domain.IsConflictError(err) || domain.IsValidationError(err) {
		return err
	}
	return domain.NewInfrastructureError(op, err)
}

// storeRefusal maps an atomic store result code to the caller-facing error
func storeRefusal(code string) error {
	switch code {
	case repository.CodeSlotNotFound:
		return domain.ErrSlotNotFound
	case repository.CodeSlotUnavailable:
		return domain.ErrSlotUnavailable
	case repository.CodeReservedForAnother:
		return domain.ErrReservedForAnotherUser
	case repository.CodeHoldExpired:
		return domain.ErrHoldExpired
	case repository.CodeBookingNotFound:
		return domain.ErrBookingNotFound
	case repository.CodeBookingNotActive:
		return domain.ErrBookingNotActive
	case repository.CodeAlreadyQueued:
		return domain.ErrAlreadyQueued
	case repository.CodeNotQueued:
		return domain.ErrNotQueued
	case repository.CodeSlotNotRemovable:
		return domain.ErrSlotNotRemovable
	case repository.CodeInvalidPartySize:
		return domain.ErrInvalidPartySize
	case repository.CodeSlotAlreadyExists:
		return domain.ErrSlotAlreadyExists
	default:
		return domain.NewInfrastructureError("store", fmt.Errorf("unexpected result code %q", code))
	}
}

// failSpan records err on the span. Refusals and validation errors are
// expected outcomes and leave the span status unset.
func failSpan(span trace.Span, err error) error {
	if domain.IsInfrastructureError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("outcome", err.Error()))
	return err
}
