package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(svc service.ReservationService, dinerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	if dinerID != "" {
		router.Use(func(c *gin.Context) {
			c.Set("user_id", dinerID)
			c.Next()
		})
	}

	reservations := NewReservationHandler(svc)
	alerts := NewAlertHandler(svc)

	router.POST("/bookings", reservations.Book)
	router.GET("/bookings/:id", reservations.GetBooking)
	router.DELETE("/bookings/:id", reservations.CancelBooking)

	slots := router.Group("/slots/:id")
	{
		slots.GET("/eligibility", reservations.CheckEligibility)
		slots.POST("/alerts", alerts.RegisterAlert)
		slots.DELETE("/alerts", alerts.WithdrawAlert)
		slots.GET("/alerts/position", alerts.GetPosition)
		slots.GET("/queue", alerts.GetQueue)
	}

	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestReservationHandler_Book(t *testing.T) {
	created := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		dinerID        string
		request        interface{}
		mockFunc       func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:    "successful booking",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return &domain.Booking{
					ID:        "booking-1",
					SlotID:    req.SlotID,
					DinerID:   req.DinerID,
					PartySize: req.PartySize,
					Status:    domain.BookingStatusActive,
					CreatedAt: created,
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthorized - no user_id",
			request:        dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "missing party size",
			dinerID:        "diner-a",
			request:        map[string]interface{}{"slot_id": "slot-1"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name:    "tier required",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrTierRequired
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "TIER_REQUIRED",
		},
		{
			name:    "booking limit reached",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrBookingLimitReached
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "BOOKING_LIMIT_REACHED",
		},
		{
			name:    "held for another diner",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrReservedForAnotherUser
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "RESERVED_FOR_ANOTHER_USER",
		},
		{
			name:    "expired hold surfaces as unavailable",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrHoldExpired
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "SLOT_UNAVAILABLE",
		},
		{
			name:    "slot not found",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "missing", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrSlotNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "SLOT_NOT_FOUND",
		},
		{
			name:    "party size outside range",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 9},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.ErrInvalidPartySize
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PARTY_SIZE",
		},
		{
			name:    "store unreachable",
			dinerID: "diner-a",
			request: dto.BookRequest{SlotID: "slot-1", PartySize: 2},
			mockFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
				return nil, domain.NewInfrastructureError("book", errors.New("connection refused"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "INFRASTRUCTURE_FAILURE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&MockReservationService{BookFunc: tt.mockFunc}, tt.dinerID)

			w := doRequest(router, http.MethodPost, "/bookings", tt.request)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestReservationHandler_Book_PassesDinerFromContext(t *testing.T) {
	var got *service.BookRequest
	note := "window seat"
	svc := &MockReservationService{
		BookFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
			got = req
			return &domain.Booking{ID: "booking-1", SlotID: req.SlotID, DinerID: req.DinerID, PartySize: req.PartySize, Note: req.Note, Status: domain.BookingStatusActive}, nil
		},
	}
	router := setupTestRouter(svc, "diner-a")

	w := doRequest(router, http.MethodPost, "/bookings", dto.BookRequest{SlotID: "slot-1", PartySize: 3, Note: &note})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NotNil(t, got)
	assert.Equal(t, "diner-a", got.DinerID)
	assert.Equal(t, 3, got.PartySize)
	require.NotNil(t, got.Note)
	assert.Equal(t, note, *got.Note)

	var resp dto.BookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "booking-1", resp.ID)
	assert.Equal(t, "active", resp.Status)
}

func TestReservationHandler_TierRefusalIsMarkedForUpsell(t *testing.T) {
	svc := &MockReservationService{
		BookFunc: func(ctx context.Context, req *service.BookRequest) (*domain.Booking, error) {
			return nil, domain.ErrTierRequired
		},
	}
	router := setupTestRouter(svc, "diner-a")

	w := doRequest(router, http.MethodPost, "/bookings", dto.BookRequest{SlotID: "slot-1", PartySize: 2})

	resp := decodeError(t, w)
	assert.True(t, resp.TierBased)
	assert.False(t, resp.Retryable)
}

func TestReservationHandler_CheckEligibility(t *testing.T) {
	t.Run("ineligible verdict is still 200", func(t *testing.T) {
		svc := &MockReservationService{
			CheckEligibilityFunc: func(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error) {
				assert.Equal(t, "slot-1", slotID)
				assert.Equal(t, "diner-a", dinerID)
				return &domain.Verdict{Reason: domain.RefusalTierRequired, TierBased: true}, nil
			},
		}
		router := setupTestRouter(svc, "diner-a")

		w := doRequest(router, http.MethodGet, "/slots/slot-1/eligibility", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.EligibilityResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Eligible)
		assert.Equal(t, "TIER_REQUIRED", resp.Reason)
		assert.True(t, resp.TierBased)
	})

	t.Run("last minute eligible", func(t *testing.T) {
		svc := &MockReservationService{
			CheckEligibilityFunc: func(ctx context.Context, slotID, dinerID string) (*domain.Verdict, error) {
				return &domain.Verdict{Eligible: true, LastMinute: true}, nil
			},
		}
		router := setupTestRouter(svc, "diner-a")

		w := doRequest(router, http.MethodGet, "/slots/slot-1/eligibility", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.EligibilityResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Eligible)
		assert.True(t, resp.LastMinute)
		assert.Empty(t, resp.Reason)
	})

	t.Run("unauthorized", func(t *testing.T) {
		router := setupTestRouter(&MockReservationService{}, "")

		w := doRequest(router, http.MethodGet, "/slots/slot-1/eligibility", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestReservationHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{name: "cancelled", expectedStatus: http.StatusOK},
		{name: "not found", err: domain.ErrBookingNotFound, expectedStatus: http.StatusNotFound, expectedCode: "BOOKING_NOT_FOUND"},
		{name: "already cancelled", err: domain.ErrBookingNotActive, expectedStatus: http.StatusConflict, expectedCode: "BOOKING_NOT_ACTIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockReservationService{
				CancelBookingFunc: func(ctx context.Context, bookingID, dinerID string) error {
					assert.Equal(t, "booking-1", bookingID)
					assert.Equal(t, "diner-a", dinerID)
					return tt.err
				},
			}
			router := setupTestRouter(svc, "diner-a")

			w := doRequest(router, http.MethodDelete, "/bookings/booking-1", nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestReservationHandler_GetBooking(t *testing.T) {
	svc := &MockReservationService{
		GetBookingFunc: func(ctx context.Context, bookingID, dinerID string) (*domain.Booking, error) {
			return &domain.Booking{ID: bookingID, SlotID: "slot-1", DinerID: dinerID, PartySize: 2, Status: domain.BookingStatusActive}, nil
		},
	}
	router := setupTestRouter(svc, "diner-a")

	w := doRequest(router, http.MethodGet, "/bookings/booking-7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.BookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "booking-7", resp.ID)
	assert.Equal(t, "diner-a", resp.DinerID)
}
