package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func serve(r *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, userID, role string, ttl time.Duration) map[string]string {
	t.Helper()
	token, err := GenerateToken(testSecret, userID, role, ttl)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestJWTAuth(t *testing.T) {
	r := newEngine(JWTAuth(&AuthConfig{Secret: testSecret, SkipPaths: []string{"/health"}}))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyUserID)+"/"+c.GetString(ContextKeyRole))
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("valid token", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/me", nil, bearer(t, "diner-a", RoleDiner, time.Hour))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "diner-a/diner", w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/me", nil, bearer(t, "diner-a", RoleDiner, -time.Minute))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateToken("other", "diner-a", RoleDiner, time.Hour)
		require.NoError(t, err)
		w := serve(r, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip path", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestParseToken_FallsBackToUserIDClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "diner-b",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, signed)
	require.NoError(t, err)
	assert.Equal(t, "diner-b", claims.UserID)
	assert.Equal(t, RoleDiner, claims.Role)

	_, err = ParseToken(testSecret, "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestRequireRole(t *testing.T) {
	r := newEngine(JWTAuth(&AuthConfig{Secret: testSecret}), RequireRole(RoleOperator))
	r.POST("/admin/sweep", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodPost, "/admin/sweep", nil, bearer(t, "diner-a", RoleDiner, time.Hour))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodPost, "/admin/sweep", nil, bearer(t, "ops-1", RoleOperator, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2, IdleTTL: time.Minute})
	r := newEngine(func(c *gin.Context) {
		c.Set(ContextKeyUserID, c.GetHeader("X-Diner"))
		c.Next()
	}, limiter.Middleware())
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	a := map[string]string{"X-Diner": "diner-a"}
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/bookings", nil, a).Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/bookings", nil, a).Code)

	w := serve(r, http.MethodPost, "/bookings", nil, a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	b := map[string]string{"X-Diner": "diner-b"}
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/bookings", nil, b).Code)
}

func TestRateLimiter_EvictsIdleCallers(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("diner-a"))
	assert.False(t, limiter.Allow("diner-a"))
	assert.Equal(t, 1, limiter.Size())

	now = now.Add(2 * time.Minute)
	assert.True(t, limiter.Allow("diner-b"))
	assert.Equal(t, 1, limiter.Size())
}

// fakeRedis implements RedisClient in memory
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestIdempotencyMiddleware_ReplaysCompletedRequest(t *testing.T) {
	store := newFakeRedis()
	var calls int32
	r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(store)))
	r.POST("/bookings", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	headers := map[string]string{IdempotencyKeyHeader: "key-1"}
	body := []byte(`{"slot_id":"slot-1","party_size":2}`)

	first := serve(r, http.MethodPost, "/bookings", body, headers)
	second := serve(r, http.MethodPost, "/bookings", body, headers)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyMiddleware_RejectsReusedKey(t *testing.T) {
	store := newFakeRedis()
	r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(store)))
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	headers := map[string]string{IdempotencyKeyHeader: "key-1"}
	serve(r, http.MethodPost, "/bookings", []byte(`{"party_size":2}`), headers)

	w := serve(r, http.MethodPost, "/bookings", []byte(`{"party_size":3}`), headers)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIdempotencyMiddleware_InFlight(t *testing.T) {
	store := newFakeRedis()
	r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(store)))
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body))
	hashCtx, _ := gin.CreateTestContext(httptest.NewRecorder())
	hashCtx.Request = req
	record := `{"key":"key-1","status":"processing","request_hash":"` + requestHash(hashCtx, body) + `"}`
	store.data[IdempotencyKeyPrefix+"key-1"] = record

	w := serve(r, http.MethodPost, "/bookings", body, map[string]string{IdempotencyKeyHeader: "key-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotencyMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	store := newFakeRedis()
	var calls int32
	r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(store)))
	r.POST("/bookings", func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusCreated)
	})

	headers := map[string]string{IdempotencyKeyHeader: "key-1"}
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/bookings", nil, headers).Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/bookings", nil, headers).Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_KeyRules(t *testing.T) {
	t.Run("required key missing", func(t *testing.T) {
		cfg := DefaultIdempotencyConfig(newFakeRedis())
		cfg.Required = true
		r := newEngine(IdempotencyMiddleware(cfg))
		r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

		assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/bookings", nil, nil).Code)
	})

	t.Run("optional key missing", func(t *testing.T) {
		r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(newFakeRedis())))
		r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

		assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/bookings", nil, nil).Code)
	})

	t.Run("redis down fails open", func(t *testing.T) {
		store := newFakeRedis()
		store.err = errors.New("connection refused")
		r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(store)))
		r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

		w := serve(r, http.MethodPost, "/bookings", nil, map[string]string{IdempotencyKeyHeader: "key-1"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("reads are not deduplicated", func(t *testing.T) {
		var calls int32
		r := newEngine(IdempotencyMiddleware(DefaultIdempotencyConfig(newFakeRedis())))
		r.GET("/bookings/:id", func(c *gin.Context) {
			atomic.AddInt32(&calls, 1)
			c.Status(http.StatusOK)
		})

		headers := map[string]string{IdempotencyKeyHeader: "key-1"}
		serve(r, http.MethodGet, "/bookings/b1", nil, headers)
		serve(r, http.MethodGet, "/bookings/b1", nil, headers)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}
