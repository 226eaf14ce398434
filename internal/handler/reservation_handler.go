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

// ReservationHandler handles eligibility and booking HTTP requests
type ReservationHandler struct {
	reservationService service.ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservationService service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// CheckEligibility handles GET /slots/:id/eligibility
// An ineligible verdict is a 200 with the refusal reason, not an error.
func (h *ReservationHandler) CheckEligibility(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.eligibility")
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

	verdict, err := h.reservationService.CheckEligibility(ctx, slotID, dinerID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.Bool("eligible", verdict.Eligible),
		attribute.String("reason", string(verdict.Reason)),
	)
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.EligibilityFromDomain(slotID, verdict))
}

// Book handles POST /bookings
func (h *ReservationHandler) Book(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.book")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	var req dto.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(c, span, err)
		return
	}

	span.SetAttributes(
		attribute.String("diner_id", dinerID),
		attribute.String("slot_id", req.SlotID),
		attribute.Int("party_size", req.PartySize),
	)

	booking, err := h.reservationService.Book(ctx, &service.BookRequest{
		SlotID:    req.SlotID,
		DinerID:   dinerID,
		PartySize: req.PartySize,
		Note:      req.Note,
	})
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, dto.FromDomain(booking))
}

// GetBooking handles GET /bookings/:id
func (h *ReservationHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.get_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.reservationService.GetBooking(ctx, bookingID, dinerID)
	if err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.FromDomain(booking))
}

// CancelBooking handles DELETE /bookings/:id
func (h *ReservationHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	dinerID := c.GetString("user_id")
	if dinerID == "" {
		respondUnauthorized(c, span)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("diner_id", dinerID),
		attribute.String("booking_id", bookingID),
	)

	if err := h.reservationService.CancelBooking(ctx, bookingID, dinerID); err != nil {
		recordFailure(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.CancelBookingResponse{
		BookingID: bookingID,
		Status:    "cancelled",
		Message:   "Booking cancelled",
	})
}
