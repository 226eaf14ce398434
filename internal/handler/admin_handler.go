package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/worker"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/response"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SweepRunner runs the expiry sweep on demand and reports its history
type SweepRunner interface {
	RunOnce(ctx context.Context) (*service.SweepResult, error)
	GetStats() *worker.ExpirySweeperStats
}

// AdminHandler handles operator HTTP requests: slot inventory and sweeps
type AdminHandler struct {
	reservationService service.ReservationService
	sweeper            SweepRunner
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(reservationService service.ReservationService, sweeper SweepRunner) *AdminHandler {
	return &AdminHandler{
		reservationService: reservationService,
		sweeper:            sweeper,
	}
}

// PublishSlot handles POST /admin/slots
func (h *AdminHandler) PublishSlot(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.publish_slot")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.PublishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	slot, err := h.reservationService.PublishSlot(ctx, req.ToDomain())
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("slot_id", slot.ID),
		attribute.String("tier", string(slot.Tier)),
	)
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.SlotFromDomain(slot))
}

// RemoveSlot handles DELETE /admin/slots/:id
func (h *AdminHandler) RemoveSlot(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.remove_slot")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	slotID := c.Param("id")
	span.SetAttributes(attribute.String("slot_id", slotID))

	if err := h.reservationService.RemoveSlot(ctx, slotID); err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.Status(http.StatusNoContent)
}

// ExpireHold handles POST /admin/slots/:id/expire
// Runs the expiry transition for one slot; a no-op when its hold has not lapsed.
func (h *AdminHandler) ExpireHold(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.expire_hold")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	slotID := c.Param("id")
	expired, err := h.reservationService.ExpireHold(ctx, slotID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("expired", expired))
	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"slot_id": slotID, "expired": expired})
}

// TriggerSweep handles POST /admin/sweep
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.sweep")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	result, err := h.sweeper.RunOnce(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.Error(c, http.StatusServiceUnavailable, "SWEEP_FAILED", "expiry sweep failed", err.Error())
		return
	}

	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("expired", result.Expired),
		attribute.Int("failed", result.Failed),
	)
	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.SweepResponse{
		Scanned:    result.Scanned,
		Expired:    result.Expired,
		Promoted:   result.Promoted,
		Failed:     result.Failed,
		DurationMs: result.Duration.Milliseconds(),
	})
}

// GetSweeperStats handles GET /admin/sweeper/stats
func (h *AdminHandler) GetSweeperStats(c *gin.Context) {
	response.Success(c, h.sweeper.GetStats())
}
