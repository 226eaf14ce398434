package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AlertHandler handles the per-slot waiting list
type AlertHandler struct {
	reservationService service.ReservationService
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(reservationService service.ReservationService) *AlertHandler {
	return &AlertHandler{reservationService: reservationService}
}

// RegisterAlert handles POST /slots/:id/alerts
func (h *AlertHandler) RegisterAlert(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.alert.register")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	slotID := c.Param("id")
	span.SetAttributes(
		attribute.String("diner_id", dinerID),
		attribute.String("slot_id", slotID),
	)

	alert, err := h.reservationService.RegisterAlert(ctx, slotID, dinerID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("alert_id", alert.ID),
		attribute.Int64("sequence", alert.Sequence),
	)
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, dto.AlertFromDomain(alert))
}

// WithdrawAlert handles DELETE /slots/:id/alerts
func (h *AlertHandler) WithdrawAlert(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.alert.withdraw")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	slotID := c.Param("id")
	span.SetAttributes(
		attribute.String("diner_id", dinerID),
		attribute.String("slot_id", slotID),
	)

	if err := h.reservationService.WithdrawAlert(ctx, slotID, dinerID); err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.Status(http.StatusNoContent)
}

// GetPosition handles GET /slots/:id/alerts/position
func (h *AlertHandler) GetPosition(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.alert.position")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	slotID := c.Param("id")
	position, err := h.reservationService.GetQueuePosition(ctx, slotID, dinerID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("queued", position != nil))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.PositionFromDomain(slotID, position))
}

// GetQueue handles GET /slots/:id/queue
func (h *AlertHandler) GetQueue(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.alert.queue")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	slotID := c.Param("id")
	entries, err := h.reservationService.GetQueue(ctx, slotID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("queue_length", len(entries)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.QueueFromDomain(slotID, entries))
}
