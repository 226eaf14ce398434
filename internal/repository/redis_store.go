package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	pkgredis "github.com/johnnyhall81/clientdining-v1-sub000/pkg/redis"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/promote.lua
var promoteLib string

//go:embed scripts/create_slot.lua
var createSlotScript string

//go:embed scripts/book_slot.lua
var bookSlotScript string

//go:embed scripts/cancel_booking.lua
var cancelBookingBody string

//go:embed scripts/expire_hold.lua
var expireHoldBody string

//go:embed scripts/register_alert.lua
var registerAlertBody string

//go:embed scripts/withdraw_alert.lua
var withdrawAlertBody string

//go:embed scripts/delete_slot.lua
var deleteSlotScript string

// Scripts that can free a slot carry the promotion helper
var (
	cancelBookingScript = promoteLib + cancelBookingBody
	expireHoldScript    = promoteLib + expireHoldBody
	registerAlertScript = promoteLib + registerAlertBody
	withdrawAlertScript = promoteLib + withdrawAlertBody
)

// Script names for caching
const (
	scriptCreateSlot    = "create_slot"
	scriptBookSlot      = "book_slot"
	scriptCancelBooking = "cancel_booking"
	scriptExpireHold    = "expire_hold"
	scriptRegisterAlert = "register_alert"
	scriptWithdrawAlert = "withdraw_alert"
	scriptDeleteSlot    = "delete_slot"
)

const holdsKey = "holds:expiry"

// Per-slot keys share a {slot_id} hash tag. Scripts also write holdsKey and
// the booking and diner keys, and reach alert hashes through an ARGV prefix,
// so the store needs a single Redis node and does not run on Redis Cluster.
func slotKey(slotID string) string { return fmt.Sprintf("slot:{%s}", slotID) }

func queueKey(slotID string) string { return fmt.Sprintf("slot:{%s}:queue", slotID) }

func alertIndexKey(slotID string) string { return fmt.Sprintf("slot:{%s}:alerts", slotID) }

func alertPrefix(slotID string) string { return fmt.Sprintf("slot:{%s}:alert:", slotID) }

func bookingKey(bookingID string) string { return fmt.Sprintf("booking:%s", bookingID) }

func dinerKey(dinerID string) string { return fmt.Sprintf("diner:%s", dinerID) }

func dinerBookingsKey(dinerID string) string { return fmt.Sprintf("diner:%s:bookings", dinerID) }

// RedisStore implements ReservationStore with one Lua script per transition
type RedisStore struct {
	client *pkgredis.Client
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// LoadScripts loads all Lua scripts into Redis
func (r *RedisStore) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptCreateSlot:    createSlotScript,
		scriptBookSlot:      bookSlotScript,
		scriptCancelBooking: cancelBookingScript,
		scriptExpireHold:    expireHoldScript,
		scriptRegisterAlert: registerAlertScript,
		scriptWithdrawAlert: withdrawAlertScript,
		scriptDeleteSlot:    deleteSlotScript,
	}

	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Ping checks the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// CreateSlot publishes a new available slot
func (r *RedisStore) CreateSlot(ctx context.Context, slot *domain.Slot) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.create")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slot.ID))

	args := []interface{}{
		slot.ID,                    // ARGV[1]
		slot.VenueID,               // ARGV[2]
		slot.VenueName,             // ARGV[3]
		slot.StartsAt.UnixMilli(),  // ARGV[4]
		slot.PartyMin,              // ARGV[5]
		slot.PartyMax,              // ARGV[6]
		string(slot.Tier),          // ARGV[7]
		slot.CreatedAt.UnixMilli(), // ARGV[8]
	}

	created, err := r.client.RunScript(ctx, scriptCreateSlot, createSlotScript, []string{slotKey(slot.ID)}, args...).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to execute create_slot script: %w", err)
	}
	if created == 0 {
		span.SetStatus(codes.Error, "exists")
		return domain.ErrSlotAlreadyExists
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetSlot loads a slot hash
func (r *RedisStore) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.get")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	fields, err := r.client.HGetAll(ctx, slotKey(slotID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	if len(fields) == 0 {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrSlotNotFound
	}

	span.SetStatus(codes.Ok, "")
	return slotFromHash(fields), nil
}

// DeleteSlot removes an available slot and cancels any leftover alerts
func (r *RedisStore) DeleteSlot(ctx context.Context, slotID string) (*DeleteSlotResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.delete")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	keys := []string{slotKey(slotID), queueKey(slotID), alertIndexKey(slotID), holdsKey}
	values, err := r.evalSlice(ctx, scriptDeleteSlot, deleteSlotScript, keys, slotID, alertPrefix(slotID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if success, _ := toInt64(values[0]); success == 1 {
		span.SetStatus(codes.Ok, "")
		return &DeleteSlotResult{Success: true}, nil
	}

	code := stringAt(values, 1)
	span.SetStatus(codes.Error, code)
	return &DeleteSlotResult{ErrorCode: code}, nil
}

// GetBooking loads a booking hash
func (r *RedisStore) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	fields, err := r.client.HGetAll(ctx, bookingKey(bookingID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if len(fields) == 0 {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return bookingFromHash(fields), nil
}

// BookSlot atomically books an available slot, or claims a held one
func (r *RedisStore) BookSlot(ctx context.Context, params BookSlotParams) (*BookSlotResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.book")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
		attribute.Int("party_size", params.PartySize),
	)

	note := ""
	if params.Note != nil {
		note = *params.Note
	}

	keys := []string{
		slotKey(params.SlotID),
		alertIndexKey(params.SlotID),
		holdsKey,
		bookingKey(params.BookingID),
		dinerBookingsKey(params.DinerID),
	}
	args := []interface{}{
		params.BookingID,           // ARGV[1]
		params.SlotID,              // ARGV[2]
		params.DinerID,             // ARGV[3]
		params.PartySize,           // ARGV[4]
		note,                       // ARGV[5]
		params.Now.UnixMilli(),     // ARGV[6]
		alertPrefix(params.SlotID), // ARGV[7]
	}

	values, err := r.evalSlice(ctx, scriptBookSlot, bookSlotScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if success, _ := toInt64(values[0]); success != 1 {
		code, message := stringAt(values, 1), stringAt(values, 2)
		span.SetAttributes(attribute.String("error_code", code))
		span.SetStatus(codes.Error, code)
		return &BookSlotResult{ErrorCode: code, ErrorMessage: message}, nil
	}

	span.SetAttributes(attribute.String("booking_id", params.BookingID))
	span.SetStatus(codes.Ok, "")
	return &BookSlotResult{
		Success: true,
		Booking: &domain.Booking{
			ID:        params.BookingID,
			SlotID:    params.SlotID,
			DinerID:   params.DinerID,
			PartySize: params.PartySize,
			Status:    domain.BookingStatusActive,
			Note:      params.Note,
			CreatedAt: time.UnixMilli(params.Now.UnixMilli()).UTC(),
		},
		ClaimedAlertID: stringAt(values, 1),
	}, nil
}

// CancelBooking cancels an active booking, frees the slot and promotes the queue head
func (r *RedisStore) CancelBooking(ctx context.Context, params CancelBookingParams) (*CancelBookingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", params.BookingID))

	// The slot id is needed to build the script keys
	booking, err := r.GetBooking(ctx, params.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Error, CodeBookingNotFound)
			return &CancelBookingResult{ErrorCode: CodeBookingNotFound, ErrorMessage: "booking does not exist"}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	keys := []string{
		bookingKey(params.BookingID),
		slotKey(booking.SlotID),
		queueKey(booking.SlotID),
		holdsKey,
		dinerBookingsKey(booking.DinerID),
		alertIndexKey(booking.SlotID),
	}
	args := []interface{}{
		params.BookingID,
		booking.SlotID,
		params.Now.UnixMilli(),
		holdDuration(params.HoldDuration).Milliseconds(),
		alertPrefix(booking.SlotID),
		booking.DinerID,
	}

	values, err := r.evalSlice(ctx, scriptCancelBooking, cancelBookingScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if success, _ := toInt64(values[0]); success != 1 {
		code, message := stringAt(values, 1), stringAt(values, 2)
		span.SetStatus(codes.Error, code)
		return &CancelBookingResult{ErrorCode: code, ErrorMessage: message}, nil
	}

	cancelledAt := time.UnixMilli(params.Now.UnixMilli()).UTC()
	booking.Status = domain.BookingStatusCancelled
	booking.CancelledAt = &cancelledAt

	result := &CancelBookingResult{Success: true, Booking: booking}
	if droppedID := stringAt(values, 1); droppedID != "" {
		if alert, err := r.getAlert(ctx, booking.SlotID, droppedID); err == nil {
			result.DroppedAlert = alert
		} else {
			result.DroppedAlert = &domain.Alert{ID: droppedID, SlotID: booking.SlotID, DinerID: booking.DinerID, Status: domain.AlertStatusCancelled}
		}
	}
	if promoted, _ := toInt64(values[2]); promoted == 1 {
		result.Promotion = parsePromotion(booking.SlotID, values[3:])
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ExpireHold releases a lapsed hold and promotes the next diner
func (r *RedisStore) ExpireHold(ctx context.Context, params ExpireHoldParams) (*ExpireHoldResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.expire_hold")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", params.SlotID))

	keys := []string{slotKey(params.SlotID), queueKey(params.SlotID), alertIndexKey(params.SlotID), holdsKey}
	args := []interface{}{
		params.SlotID,
		params.Now.UnixMilli(),
		holdDuration(params.HoldDuration).Milliseconds(),
		alertPrefix(params.SlotID),
	}

	values, err := r.evalSlice(ctx, scriptExpireHold, expireHoldScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if expired, _ := toInt64(values[0]); expired != 1 {
		span.SetAttributes(attribute.Bool("expired", false))
		span.SetStatus(codes.Ok, "")
		return &ExpireHoldResult{}, nil
	}

	result := &ExpireHoldResult{Expired: true}
	if alertID := stringAt(values, 1); alertID != "" {
		alert, err := r.getAlert(ctx, params.SlotID, alertID)
		if err == nil {
			result.ExpiredAlert = alert
		} else {
			result.ExpiredAlert = &domain.Alert{
				ID:      alertID,
				SlotID:  params.SlotID,
				DinerID: stringAt(values, 2),
				Status:  domain.AlertStatusExpired,
			}
		}
	}
	if len(values) > 3 {
		if promoted, _ := toInt64(values[3]); promoted == 1 {
			result.Promotion = parsePromotion(params.SlotID, values[4:])
		}
	}

	span.SetAttributes(attribute.Bool("expired", true))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ListExpiredHolds reads the hold expiry index
func (r *RedisStore) ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot.list_expired_holds")
	defer span.End()

	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := r.client.ZRangeByScore(ctx, holdsKey, "-inf", upper, int64(limit)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// RegisterAlert appends a diner to the slot's queue
func (r *RedisStore) RegisterAlert(ctx context.Context, params RegisterAlertParams) (*RegisterAlertResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.alert.register")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
	)

	prefix := alertPrefix(params.SlotID)
	keys := []string{
		slotKey(params.SlotID),
		queueKey(params.SlotID),
		alertIndexKey(params.SlotID),
		holdsKey,
		prefix + params.AlertID,
	}
	args := []interface{}{
		params.AlertID,
		params.SlotID,
		params.DinerID,
		params.Now.UnixMilli(),
		holdDuration(params.HoldDuration).Milliseconds(),
		prefix,
	}

	values, err := r.evalSlice(ctx, scriptRegisterAlert, registerAlertScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if success, _ := toInt64(values[0]); success != 1 {
		code, message := stringAt(values, 1), stringAt(values, 2)
		span.SetAttributes(attribute.String("error_code", code))
		span.SetStatus(codes.Error, code)
		return &RegisterAlertResult{ErrorCode: code, ErrorMessage: message}, nil
	}

	sequence, _ := toInt64(values[1])
	result := &RegisterAlertResult{
		Success: true,
		Alert: &domain.Alert{
			ID:        params.AlertID,
			SlotID:    params.SlotID,
			DinerID:   params.DinerID,
			Status:    domain.AlertStatusActive,
			Sequence:  sequence,
			CreatedAt: time.UnixMilli(params.Now.UnixMilli()).UTC(),
		},
	}
	if len(values) > 2 {
		if promoted, _ := toInt64(values[2]); promoted == 1 {
			result.Promotion = parsePromotion(params.SlotID, values[3:])
		}
	}

	span.SetAttributes(attribute.Int64("sequence", sequence))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// WithdrawAlert cancels a diner's open alert, releasing their hold if notified
func (r *RedisStore) WithdrawAlert(ctx context.Context, params WithdrawAlertParams) (*WithdrawAlertResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.alert.withdraw")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", params.SlotID),
		attribute.String("diner_id", params.DinerID),
	)

	keys := []string{slotKey(params.SlotID), queueKey(params.SlotID), alertIndexKey(params.SlotID), holdsKey}
	args := []interface{}{
		params.SlotID,
		params.DinerID,
		params.Now.UnixMilli(),
		holdDuration(params.HoldDuration).Milliseconds(),
		alertPrefix(params.SlotID),
	}

	values, err := r.evalSlice(ctx, scriptWithdrawAlert, withdrawAlertScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if success, _ := toInt64(values[0]); success != 1 {
		code, message := stringAt(values, 1), stringAt(values, 2)
		span.SetStatus(codes.Error, code)
		return &WithdrawAlertResult{ErrorCode: code, ErrorMessage: message}, nil
	}

	alertID := stringAt(values, 1)
	result := &WithdrawAlertResult{Success: true}
	if alert, err := r.getAlert(ctx, params.SlotID, alertID); err == nil {
		result.Alert = alert
	} else {
		result.Alert = &domain.Alert{ID: alertID, SlotID: params.SlotID, DinerID: params.DinerID, Status: domain.AlertStatusCancelled}
	}
	if len(values) > 3 {
		released, _ := toInt64(values[2])
		promoted, _ := toInt64(values[3])
		result.ReleasedHold = released == 1
		if promoted == 1 {
			result.Promotion = parsePromotion(params.SlotID, values[4:])
		}
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ListOpenAlerts returns active and notified alerts ordered by sequence
func (r *RedisStore) ListOpenAlerts(ctx context.Context, slotID string) ([]*domain.Alert, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.alert.list_open")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	alertIDs, err := r.client.HVals(ctx, alertIndexKey(slotID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read alert index: %w", err)
	}
	if len(alertIDs) == 0 {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	pipe := r.client.Pipeline()
	prefix := alertPrefix(slotID)
	cmds := make([]*goredis.MapStringStringCmd, 0, len(alertIDs))
	for _, id := range alertIDs {
		cmds = append(cmds, pipe.HGetAll(ctx, prefix+id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		alert := alertFromHash(fields)
		if alert.Status.IsOpen() {
			alerts = append(alerts, alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Sequence < alerts[j].Sequence })

	span.SetAttributes(attribute.Int("count", len(alerts)))
	span.SetStatus(codes.Ok, "")
	return alerts, nil
}

func (r *RedisStore) getAlert(ctx context.Context, slotID, alertID string) (*domain.Alert, error) {
	fields, err := r.client.HGetAll(ctx, alertPrefix(slotID)+alertID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrAlertNotFound
	}
	return alertFromHash(fields), nil
}

func (r *RedisStore) evalSlice(ctx context.Context, name, script string, keys []string, args ...interface{}) ([]interface{}, error) {
	result := r.client.RunScript(ctx, name, script, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", name, result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s script result: %w", name, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unexpected empty %s script result", name)
	}
	return values, nil
}

// parsePromotion reads {alert_id, diner_id, sequence, notified_ms, until_ms}
func parsePromotion(slotID string, values []interface{}) *domain.Promotion {
	if len(values) < 5 {
		return nil
	}
	sequence, _ := strconv.ParseInt(stringAt(values, 2), 10, 64)
	notifiedMs, _ := strconv.ParseInt(stringAt(values, 3), 10, 64)
	untilMs, _ := strconv.ParseInt(stringAt(values, 4), 10, 64)
	return &domain.Promotion{
		SlotID:        slotID,
		AlertID:       stringAt(values, 0),
		DinerID:       stringAt(values, 1),
		Sequence:      sequence,
		NotifiedAt:    time.UnixMilli(notifiedMs).UTC(),
		ReservedUntil: time.UnixMilli(untilMs).UTC(),
	}
}

func slotFromHash(h map[string]string) *domain.Slot {
	slot := &domain.Slot{
		ID:        h["id"],
		VenueID:   h["venue_id"],
		VenueName: h["venue_name"],
		StartsAt:  millisField(h["starts_at"]),
		PartyMin:  intField(h["party_min"]),
		PartyMax:  intField(h["party_max"]),
		Tier:      domain.Tier(h["tier"]),
		Status:    domain.SlotStatus(h["status"]),
		CreatedAt: millisField(h["created_at"]),
		UpdatedAt: millisField(h["updated_at"]),
	}
	if holder := h["reserved_for"]; holder != "" {
		slot.ReservedForDinerID = &holder
	}
	if h["reserved_until"] != "" {
		until := millisField(h["reserved_until"])
		slot.ReservedUntil = &until
	}
	return slot
}

func bookingFromHash(h map[string]string) *domain.Booking {
	booking := &domain.Booking{
		ID:        h["id"],
		SlotID:    h["slot_id"],
		DinerID:   h["diner_id"],
		PartySize: intField(h["party_size"]),
		Status:    domain.BookingStatus(h["status"]),
		CreatedAt: millisField(h["created_at"]),
	}
	if note := h["note"]; note != "" {
		booking.Note = &note
	}
	if h["cancelled_at"] != "" {
		at := millisField(h["cancelled_at"])
		booking.CancelledAt = &at
	}
	return booking
}

func alertFromHash(h map[string]string) *domain.Alert {
	sequence, _ := strconv.ParseInt(h["sequence"], 10, 64)
	alert := &domain.Alert{
		ID:        h["id"],
		SlotID:    h["slot_id"],
		DinerID:   h["diner_id"],
		Status:    domain.AlertStatus(h["status"]),
		Sequence:  sequence,
		CreatedAt: millisField(h["created_at"]),
	}
	if h["notified_at"] != "" {
		at := millisField(h["notified_at"])
		alert.NotifiedAt = &at
	}
	return alert
}

func millisField(s string) time.Time {
	ms, _ := strconv.ParseInt(s, 10, 64)
	return time.UnixMilli(ms).UTC()
}

func intField(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func stringAt(values []interface{}, i int) string {
	if i >= len(values) {
		return ""
	}
	switch v := values[i].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// toInt64 converts a Lua integer reply to int64
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// RedisDinerRepository reads diner profiles kept in Redis hashes
type RedisDinerRepository struct {
	client *pkgredis.Client
}

// NewRedisDinerRepository creates a new RedisDinerRepository
func NewRedisDinerRepository(client *pkgredis.Client) *RedisDinerRepository {
	return &RedisDinerRepository{client: client}
}

// GetTier returns a diner's membership tier
func (r *RedisDinerRepository) GetTier(ctx context.Context, dinerID string) (domain.Tier, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.diner.get_tier")
	defer span.End()

	span.SetAttributes(attribute.String("diner_id", dinerID))

	tier, err := r.client.HGet(ctx, dinerKey(dinerID), "tier").Result()
	if err != nil {
		if pkgredis.IsNil(err) {
			span.SetStatus(codes.Error, "not found")
			return "", domain.ErrDinerNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to get diner tier: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return domain.Tier(tier), nil
}

// GetActiveFutureBookingCount counts active bookings on slots starting after now
func (r *RedisDinerRepository) GetActiveFutureBookingCount(ctx context.Context, dinerID string, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.diner.count_future_bookings")
	defer span.End()

	span.SetAttributes(attribute.String("diner_id", dinerID))

	lower := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	count, err := r.client.ZCount(ctx, dinerBookingsKey(dinerID), lower, "+inf").Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count diner bookings: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return int(count), nil
}

// SetTier writes a diner profile, used by seeding tools
func (r *RedisDinerRepository) SetTier(ctx context.Context, dinerID string, tier domain.Tier) error {
	if err := r.client.HSet(ctx, dinerKey(dinerID), "tier", string(tier)).Err(); err != nil {
		return fmt.Errorf("failed to set diner tier: %w", err)
	}
	return nil
}

var (
	_ ReservationStore       = (*RedisStore)(nil)
	_ DinerProfileRepository = (*RedisDinerRepository)(nil)
)
