package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/metrics"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// respondUnauthorized writes the 401 used when no diner is on the request
func respondUnauthorized(c *gin.Context, span trace.Span) {
	span.SetStatus(codes.Error, "unauthorized")
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error: "unauthorized",
		Code:  "UNAUTHORIZED",
	})
}

func respondInvalidRequest(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "invalid request")
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid request",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}

// handleError maps service errors to HTTP responses. Refusals carry their
// stable code so clients can branch on it.
func handleError(c *gin.Context, err error) {
	if refusal, ok := domain.AsRefusal(err); ok {
		status := http.StatusConflict
		if refusal.Code == domain.RefusalTierRequired {
			status = http.StatusForbidden
		}
		c.JSON(status, dto.ErrorResponse{
			Error:     refusal.Message,
			Code:      string(refusal.Code),
			TierBased: refusal.TierBased(),
		})
		return
	}

	switch {
	case domain.IsInfrastructureError(err):
		logger.Get().ErrorContext(c.Request.Context(), "Reservation infrastructure failure", zap.Error(err))
		metrics.RecordError(c.Request.Context(), "infrastructure", c.FullPath())
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:     "service temporarily unavailable",
			Code:      "INFRASTRUCTURE_FAILURE",
			Message:   "Please try again shortly.",
			Retryable: true,
			TraceID:   telemetry.TraceID(c.Request.Context()),
		})
	case errors.Is(err, domain.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SLOT_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "BOOKING_NOT_FOUND",
		})
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case errors.Is(err, domain.ErrInvalidPartySize):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_PARTY_SIZE",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	case errors.Is(err, domain.ErrSlotAlreadyExists):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SLOT_ALREADY_EXISTS",
		})
	case errors.Is(err, domain.ErrSlotNotRemovable):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SLOT_NOT_REMOVABLE",
		})
	case errors.Is(err, domain.ErrBookingNotActive):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "BOOKING_NOT_ACTIVE",
		})
	default:
		logger.Get().ErrorContext(c.Request.Context(), "Unhandled reservation error", zap.Error(err))
		metrics.RecordError(c.Request.Context(), "internal", c.FullPath())
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal server error",
			Code:    "INTERNAL_ERROR",
			TraceID: telemetry.TraceID(c.Request.Context()),
		})
	}
}

// recordFailure marks the span failed unless err is an ordinary refusal
func recordFailure(span trace.Span, err error) {
	if domain.IsRefusal(err) {
		span.SetAttributes(attribute.String("refusal", err.Error()))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
