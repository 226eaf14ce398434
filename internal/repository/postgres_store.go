package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/database"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const slotColumns = `id, venue_id, venue_name, starts_at, party_min, party_max, tier, status,
	reserved_for_diner_id, reserved_until, created_at, updated_at`

const bookingColumns = `id, slot_id, diner_id, party_size, status, note, created_at, cancelled_at`

const alertColumns = `id, slot_id, diner_id, status, sequence, created_at, notified_at`

// PostgresStore implements ReservationStore using PostgreSQL. Every
// transition runs in one transaction that locks the slot row first.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks the database connection
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateSlot publishes a new available slot
func (r *PostgresStore) CreateSlot(ctx context.Context, slot *domain.Slot) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.create")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slot.ID))

	query := `
		INSERT INTO slots (id, venue_id, venue_name, starts_at, party_min, party_max, tier, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'available', $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		slot.ID,
		slot.VenueID,
		slot.VenueName,
		slot.StartsAt,
		slot.PartyMin,
		slot.PartyMax,
		string(slot.Tier),
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create slot: %w", err))
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "exists")
		return domain.ErrSlotAlreadyExists
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetSlot retrieves a slot by id
func (r *PostgresStore) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.get")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	slot, err := scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, slotID))
	if err != nil {
		if errors.Is(err, domain.ErrSlotNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		return nil, spanError(span, fmt.Errorf("failed to get slot: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return slot, nil
}

// DeleteSlot removes a slot while it is available
func (r *PostgresStore) DeleteSlot(ctx context.Context, slotID string) (*DeleteSlotResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.delete")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		span.SetStatus(codes.Error, CodeSlotNotFound)
		return &DeleteSlotResult{ErrorCode: CodeSlotNotFound}, nil
	}
	if err != nil {
		return nil, spanError(span, err)
	}
	if slot.Status != domain.SlotStatusAvailable {
		span.SetStatus(codes.Error, CodeSlotNotRemovable)
		return &DeleteSlotResult{ErrorCode: CodeSlotNotRemovable}, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE id = $1`, slotID); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to delete slot: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return &DeleteSlotResult{Success: true}, nil
}

// GetBooking retrieves a booking by id
func (r *PostgresStore) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		return nil, spanError(span, fmt.Errorf("failed to get booking: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// BookSlot books an available slot, or claims a held one for its holder
func (r *PostgresStore) BookSlot(ctx context.Context, params BookSlotParams) (*BookSlotResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.book")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
		attribute.Int("party_size", params.PartySize),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, params.SlotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		return bookRefused(span, CodeSlotNotFound, "slot does not exist"), nil
	}
	if err != nil {
		return nil, spanError(span, err)
	}
	if !slot.AcceptsPartySize(params.PartySize) {
		return bookRefused(span, CodeInvalidPartySize, "party size outside slot range"), nil
	}

	claimedAlertID := ""
	switch slot.Status {
	case domain.SlotStatusAvailable:
	case domain.SlotStatusReserved:
		if slot.HoldExpired(params.Now) {
			return bookRefused(span, CodeHoldExpired, "reservation hold has expired"), nil
		}
		if !slot.IsHeldBy(params.DinerID) {
			return bookRefused(span, CodeReservedForAnother, "slot is held for another diner"), nil
		}
		err := tx.QueryRow(ctx, `
			UPDATE alerts SET status = 'claimed'
			WHERE slot_id = $1 AND diner_id = $2 AND status = 'notified'
			RETURNING id
		`, params.SlotID, params.DinerID).Scan(&claimedAlertID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, spanError(span, fmt.Errorf("failed to claim alert: %w", err))
		}
	default:
		return bookRefused(span, CodeSlotUnavailable, "slot is already booked"), nil
	}

	booking := &domain.Booking{
		ID:        params.BookingID,
		SlotID:    params.SlotID,
		DinerID:   params.DinerID,
		PartySize: params.PartySize,
		Status:    domain.BookingStatusActive,
		Note:      params.Note,
		CreatedAt: params.Now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, slot_id, diner_id, party_size, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, booking.ID, booking.SlotID, booking.DinerID, booking.PartySize, string(booking.Status), booking.Note, booking.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return bookRefused(span, CodeSlotUnavailable, "slot is already booked"), nil
		}
		return nil, spanError(span, fmt.Errorf("failed to insert booking: %w", err))
	}

	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET status = 'booked', reserved_for_diner_id = NULL, reserved_until = NULL, updated_at = $2
		WHERE id = $1
	`, params.SlotID, params.Now)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to mark slot booked: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return &BookSlotResult{Success: true, Booking: booking, ClaimedAlertID: claimedAlertID}, nil
}

// CancelBooking cancels an active booking, frees the slot and promotes the queue head
func (r *PostgresStore) CancelBooking(ctx context.Context, params CancelBookingParams) (*CancelBookingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", params.BookingID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	// Lock order is slot then booking, same as BookSlot
	var slotID string
	err = tx.QueryRow(ctx, `SELECT slot_id FROM bookings WHERE id = $1`, params.BookingID).Scan(&slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, CodeBookingNotFound)
		return &CancelBookingResult{ErrorCode: CodeBookingNotFound, ErrorMessage: "booking does not exist"}, nil
	}
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to get booking: %w", err))
	}

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, spanError(span, err)
	}

	booking, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, params.BookingID))
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to lock booking: %w", err))
	}
	if !booking.IsActive() {
		span.SetStatus(codes.Error, CodeBookingNotActive)
		return &CancelBookingResult{ErrorCode: CodeBookingNotActive, ErrorMessage: "booking is not active"}, nil
	}

	now := params.Now
	if _, err := tx.Exec(ctx, `UPDATE bookings SET status = 'cancelled', cancelled_at = $2 WHERE id = $1`, booking.ID, now); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to cancel booking: %w", err))
	}
	booking.Status = domain.BookingStatusCancelled
	booking.CancelledAt = &now

	result := &CancelBookingResult{Success: true, Booking: booking}
	if slot.Status == domain.SlotStatusBooked {
		// The canceller leaves the slot's queue too
		dropped, err := scanAlert(tx.QueryRow(ctx, `
			UPDATE alerts SET status = 'cancelled'
			WHERE slot_id = $1 AND diner_id = $2 AND status IN ('active', 'notified')
			RETURNING `+alertColumns, slot.ID, booking.DinerID))
		switch {
		case err == nil:
			result.DroppedAlert = dropped
		case !errors.Is(err, domain.ErrAlertNotFound):
			return nil, spanError(span, fmt.Errorf("failed to cancel own alert: %w", err))
		}

		if err := releaseSlot(ctx, tx, slot, now); err != nil {
			return nil, spanError(span, err)
		}
		result.Promotion, err = promoteNextTx(ctx, tx, slot, now, holdDuration(params.HoldDuration))
		if err != nil {
			return nil, spanError(span, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ExpireHold releases a lapsed hold and promotes the next diner
func (r *PostgresStore) ExpireHold(ctx context.Context, params ExpireHoldParams) (*ExpireHoldResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.expire_hold")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", params.SlotID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, params.SlotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		span.SetStatus(codes.Ok, "")
		return &ExpireHoldResult{}, nil
	}
	if err != nil {
		return nil, spanError(span, err)
	}
	if !slot.HoldExpired(params.Now) {
		span.SetAttributes(attribute.Bool("expired", false))
		span.SetStatus(codes.Ok, "")
		return &ExpireHoldResult{}, nil
	}

	result := &ExpireHoldResult{Expired: true}
	expired, err := scanAlert(tx.QueryRow(ctx, `
		UPDATE alerts SET status = 'expired'
		WHERE slot_id = $1 AND diner_id = $2 AND status = 'notified'
		RETURNING `+alertColumns, slot.ID, *slot.ReservedForDinerID))
	switch {
	case err == nil:
		result.ExpiredAlert = expired
	case !errors.Is(err, domain.ErrAlertNotFound):
		return nil, spanError(span, fmt.Errorf("failed to expire alert: %w", err))
	}

	if err := releaseSlot(ctx, tx, slot, params.Now); err != nil {
		return nil, spanError(span, err)
	}
	result.Promotion, err = promoteNextTx(ctx, tx, slot, params.Now, holdDuration(params.HoldDuration))
	if err != nil {
		return nil, spanError(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetAttributes(attribute.Bool("expired", true))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ListExpiredHolds returns ids of reserved slots whose hold ended before the given time
func (r *PostgresStore) ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.list_expired_holds")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id FROM slots
		WHERE status = 'reserved' AND reserved_until < $1
		ORDER BY reserved_until
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list expired holds: %w", err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to scan expired holds: %w", err))
	}

	span.SetAttributes(attribute.Int("count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// RegisterAlert appends a diner to the slot's queue
func (r *PostgresStore) RegisterAlert(ctx context.Context, params RegisterAlertParams) (*RegisterAlertResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.alert.register")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, params.SlotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		span.SetStatus(codes.Error, CodeSlotNotFound)
		return &RegisterAlertResult{ErrorCode: CodeSlotNotFound, ErrorMessage: "slot does not exist"}, nil
	}
	if err != nil {
		return nil, spanError(span, err)
	}

	var queued bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM alerts WHERE slot_id = $1 AND diner_id = $2 AND status IN ('active', 'notified'))
	`, params.SlotID, params.DinerID).Scan(&queued)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to check queue membership: %w", err))
	}
	if queued {
		span.SetStatus(codes.Error, CodeAlreadyQueued)
		return &RegisterAlertResult{ErrorCode: CodeAlreadyQueued, ErrorMessage: "diner already queued"}, nil
	}

	alert := &domain.Alert{
		ID:        params.AlertID,
		SlotID:    params.SlotID,
		DinerID:   params.DinerID,
		Status:    domain.AlertStatusActive,
		CreatedAt: params.Now,
	}
	err = tx.QueryRow(ctx, `
		UPDATE slots SET alert_sequence = alert_sequence + 1 WHERE id = $1 RETURNING alert_sequence
	`, params.SlotID).Scan(&alert.Sequence)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to allocate sequence: %w", err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alerts (id, slot_id, diner_id, status, sequence, created_at)
		VALUES ($1, $2, $3, 'active', $4, $5)
	`, alert.ID, alert.SlotID, alert.DinerID, alert.Sequence, alert.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			span.SetStatus(codes.Error, CodeAlreadyQueued)
			return &RegisterAlertResult{ErrorCode: CodeAlreadyQueued, ErrorMessage: "diner already queued"}, nil
		}
		return nil, spanError(span, fmt.Errorf("failed to insert alert: %w", err))
	}

	promotion, err := promoteNextTx(ctx, tx, slot, params.Now, holdDuration(params.HoldDuration))
	if err != nil {
		return nil, spanError(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetAttributes(attribute.Int64("sequence", alert.Sequence))
	span.SetStatus(codes.Ok, "")
	return &RegisterAlertResult{Success: true, Alert: alert, Promotion: promotion}, nil
}

// WithdrawAlert cancels a diner's open alert, releasing their hold if notified
func (r *PostgresStore) WithdrawAlert(ctx context.Context, params WithdrawAlertParams) (*WithdrawAlertResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.alert.withdraw")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, params.SlotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		span.SetStatus(codes.Error, CodeNotQueued)
		return &WithdrawAlertResult{ErrorCode: CodeNotQueued, ErrorMessage: "diner is not queued"}, nil
	}
	if err != nil {
		return nil, spanError(span, err)
	}

	alert, err := scanAlert(tx.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE slot_id = $1 AND diner_id = $2 AND status IN ('active', 'notified')
		FOR UPDATE
	`, params.SlotID, params.DinerID))
	if errors.Is(err, domain.ErrAlertNotFound) {
		span.SetStatus(codes.Error, CodeNotQueued)
		return &WithdrawAlertResult{ErrorCode: CodeNotQueued, ErrorMessage: "diner is not queued"}, nil
	}
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to lock alert: %w", err))
	}

	wasNotified := alert.Status == domain.AlertStatusNotified
	if _, err := tx.Exec(ctx, `UPDATE alerts SET status = 'cancelled' WHERE id = $1`, alert.ID); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to cancel alert: %w", err))
	}
	alert.Status = domain.AlertStatusCancelled

	result := &WithdrawAlertResult{Success: true, Alert: alert}
	if wasNotified && slot.IsHeldBy(params.DinerID) {
		if err := releaseSlot(ctx, tx, slot, params.Now); err != nil {
			return nil, spanError(span, err)
		}
		result.ReleasedHold = true
		result.Promotion, err = promoteNextTx(ctx, tx, slot, params.Now, holdDuration(params.HoldDuration))
		if err != nil {
			return nil, spanError(span, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetAttributes(attribute.Bool("released_hold", result.ReleasedHold))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ListOpenAlerts returns active and notified alerts ordered by sequence
func (r *PostgresStore) ListOpenAlerts(ctx context.Context, slotID string) ([]*domain.Alert, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.alert.list_open")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	rows, err := r.pool.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE slot_id = $1 AND status IN ('active', 'notified')
		ORDER BY sequence
	`, slotID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list alerts: %w", err))
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, spanError(span, fmt.Errorf("failed to scan alert: %w", err))
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to iterate alerts: %w", err))
	}

	span.SetAttributes(attribute.Int("count", len(alerts)))
	span.SetStatus(codes.Ok, "")
	return alerts, nil
}

func lockSlot(ctx context.Context, tx pgx.Tx, slotID string) (*domain.Slot, error) {
	slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, slotID))
	if err != nil && !errors.Is(err, domain.ErrSlotNotFound) {
		return nil, fmt.Errorf("failed to lock slot: %w", err)
	}
	return slot, err
}

func releaseSlot(ctx context.Context, tx pgx.Tx, slot *domain.Slot, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'available', reserved_for_diner_id = NULL, reserved_until = NULL, updated_at = $2
		WHERE id = $1
	`, slot.ID, now)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	slot.Status = domain.SlotStatusAvailable
	slot.ReservedForDinerID = nil
	slot.ReservedUntil = nil
	return nil
}

// promoteNextTx gives the lowest-sequence active alert an exclusive hold.
// The slot row must already be locked and available.
func promoteNextTx(ctx context.Context, tx pgx.Tx, slot *domain.Slot, now time.Time, hold time.Duration) (*domain.Promotion, error) {
	if slot.Status != domain.SlotStatusAvailable {
		return nil, nil
	}

	p := &domain.Promotion{SlotID: slot.ID, NotifiedAt: now, ReservedUntil: now.Add(hold)}
	err := tx.QueryRow(ctx, `
		SELECT id, diner_id, sequence FROM alerts
		WHERE slot_id = $1 AND status = 'active'
		ORDER BY sequence
		LIMIT 1
		FOR UPDATE
	`, slot.ID).Scan(&p.AlertID, &p.DinerID, &p.Sequence)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE alerts SET status = 'notified', notified_at = $2 WHERE id = $1`, p.AlertID, now); err != nil {
		return nil, fmt.Errorf("failed to notify alert: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET status = 'reserved', reserved_for_diner_id = $2, reserved_until = $3, updated_at = $4
		WHERE id = $1
	`, slot.ID, p.DinerID, p.ReservedUntil, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	slot.Status = domain.SlotStatusReserved
	slot.ReservedForDinerID = &p.DinerID
	slot.ReservedUntil = &p.ReservedUntil
	return p, nil
}

func scanSlot(row pgx.Row) (*domain.Slot, error) {
	slot := &domain.Slot{}
	var tier, status string
	err := row.Scan(
		&slot.ID,
		&slot.VenueID,
		&slot.VenueName,
		&slot.StartsAt,
		&slot.PartyMin,
		&slot.PartyMax,
		&tier,
		&status,
		&slot.ReservedForDinerID,
		&slot.ReservedUntil,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSlotNotFound
		}
		return nil, err
	}
	slot.Tier = domain.Tier(tier)
	slot.Status = domain.SlotStatus(status)
	return slot, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var status string
	err := row.Scan(
		&booking.ID,
		&booking.SlotID,
		&booking.DinerID,
		&booking.PartySize,
		&status,
		&booking.Note,
		&booking.CreatedAt,
		&booking.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	booking.Status = domain.BookingStatus(status)
	return booking, nil
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	alert := &domain.Alert{}
	var status string
	err := row.Scan(
		&alert.ID,
		&alert.SlotID,
		&alert.DinerID,
		&status,
		&alert.Sequence,
		&alert.CreatedAt,
		&alert.NotifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlertNotFound
		}
		return nil, err
	}
	alert.Status = domain.AlertStatus(status)
	return alert, nil
}

func bookRefused(span trace.Span, code, message string) *BookSlotResult {
	span.SetAttributes(attribute.String("error_code", code))
	span.SetStatus(codes.Error, code)
	return &BookSlotResult{ErrorCode: code, ErrorMessage: message}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if database.IsSerializationFailure(err) {
		span.SetAttributes(attribute.Bool("retryable", true))
	}
	return err
}

// PostgresDinerRepository reads diner profiles from PostgreSQL
type PostgresDinerRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDinerRepository creates a new PostgresDinerRepository
func NewPostgresDinerRepository(pool *pgxpool.Pool) *PostgresDinerRepository {
	return &PostgresDinerRepository{pool: pool}
}

// GetTier returns a diner's membership tier
func (r *PostgresDinerRepository) GetTier(ctx context.Context, dinerID string) (domain.Tier, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.diner.get_tier")
	defer span.End()

	span.SetAttributes(attribute.String("diner_id", dinerID))

	var tier string
	err := r.pool.QueryRow(ctx, `SELECT tier FROM diners WHERE id = $1`, dinerID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return "", domain.ErrDinerNotFound
		}
		return "", spanError(span, fmt.Errorf("failed to get diner tier: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return domain.Tier(tier), nil
}

// GetActiveFutureBookingCount counts active bookings on slots starting after now
func (r *PostgresDinerRepository) GetActiveFutureBookingCount(ctx context.Context, dinerID string, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.diner.count_future_bookings")
	defer span.End()

	span.SetAttributes(attribute.String("diner_id", dinerID))

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.diner_id = $1 AND b.status = 'active' AND s.starts_at > $2
	`, dinerID, now).Scan(&count)
	if err != nil {
		return 0, spanError(span, fmt.Errorf("failed to count diner bookings: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return count, nil
}

// SetTier upserts a diner profile, used by seeding tools
func (r *PostgresDinerRepository) SetTier(ctx context.Context, dinerID string, tier domain.Tier) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO diners (id, tier) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier
	`, dinerID, string(tier))
	if err != nil {
		return fmt.Errorf("failed to set diner tier: %w", err)
	}
	return nil
}

var (
	_ ReservationStore       = (*PostgresStore)(nil)
	_ DinerProfileRepository = (*PostgresDinerRepository)(nil)
)
