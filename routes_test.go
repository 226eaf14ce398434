package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/di"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/dto"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func setupServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App:   config.AppConfig{Name: "reservation-service", Environment: "development", Version: "test"},
		JWT:   config.JWTConfig{Secret: testSecret},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Reservation: config.ReservationConfig{
			HoldDuration:               15 * time.Minute,
			OverrideWindow:             24 * time.Hour,
			LimitAppliesWithinOverride: true,
			StandardLimit:              3,
			ElevatedLimit:              10,
			NotifyTimeout:              time.Second,
		},
		Sweeper: config.SweeperConfig{Schedule: "@every 1m", BatchSize: 10, Timeout: 5 * time.Second},
	}

	container, err := di.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return newRouter(cfg, container)
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.GenerateToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func call(router *gin.Engine, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutes_Health(t *testing.T) {
	router := setupServer(t)

	w := call(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_AuthAndRoles(t *testing.T) {
	router := setupServer(t)
	diner := token(t, "diner-1", middleware.RoleDiner)

	w := call(router, http.MethodGet, "/api/v1/slots/slot-1/eligibility", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(router, http.MethodPost, "/api/v1/admin/slots", diner, map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The queue read model needs no token
	w = call(router, http.MethodGet, "/api/v1/slots/slot-1/queue", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_CancellationPromotesWaitingDiner(t *testing.T) {
	router := setupServer(t)
	operator := token(t, "ops-1", middleware.RoleOperator)
	first := token(t, "diner-1", middleware.RoleDiner)
	second := token(t, "diner-2", middleware.RoleDiner)

	w := call(router, http.MethodPost, "/api/v1/admin/slots", operator, map[string]interface{}{
		"id":         "slot-1",
		"venue_id":   "venue-1",
		"venue_name": "Test Venue",
		"starts_at":  time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"party_min":  2,
		"party_max":  4,
		"tier":       "standard",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(router, http.MethodPost, "/api/v1/bookings", first, dto.BookRequest{SlotID: "slot-1", PartySize: 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var booking dto.BookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booking))
	assert.Equal(t, "diner-1", booking.DinerID)

	w = call(router, http.MethodPost, "/api/v1/bookings", second, dto.BookRequest{SlotID: "slot-1", PartySize: 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(router, http.MethodPost, "/api/v1/slots/slot-1/alerts", second, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(router, http.MethodGet, "/api/v1/slots/slot-1/alerts/position", second, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var position dto.QueuePositionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &position))
	assert.True(t, position.Queued)
	assert.Equal(t, 1, position.Position)

	w = call(router, http.MethodDelete, "/api/v1/bookings/"+booking.ID, first, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(router, http.MethodGet, "/api/v1/slots/slot-1/alerts/position", second, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &position))
	assert.Equal(t, "notified", position.Status)
	assert.NotNil(t, position.HoldExpiresAt)

	// The hold is exclusive to the notified diner
	w = call(router, http.MethodPost, "/api/v1/bookings", first, dto.BookRequest{SlotID: "slot-1", PartySize: 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(router, http.MethodPost, "/api/v1/bookings", second, dto.BookRequest{SlotID: "slot-1", PartySize: 3})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
