package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
)

type blockCounter struct {
	blocks int
}

func (b *blockCounter) IncrementRateLimitIPBlock() { b.blocks++ }

func newTestLimiter(perMinute int, now *time.Time) (*RateLimiter, *blockCounter) {
	metrics := &blockCounter{}
	rl := NewRateLimiter(Config{PerMinute: perMinute}, metrics)
	rl.now = func() time.Time { return *now }
	return rl, metrics
}

func TestAllowBurstThenBlock(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	rl, metrics := newTestLimiter(3, &now)

	for i := 0; i < 3; i++ {
		res := rl.Allow("10.0.0.1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res := rl.Allow("10.0.0.1")
	assert.False(t, res.Allowed)
	assert.InDelta(t, float64(20*time.Second), float64(res.RetryAfter), float64(time.Millisecond))
	assert.Equal(t, 1, metrics.blocks)

	assert.True(t, rl.Allow("10.0.0.2").Allowed, "buckets are per key")

	now = now.Add(21 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1").Allowed, "token refilled")
}

func TestDisabledLimiter(t *testing.T) {
	rl := NewRateLimiter(Config{PerMinute: 0}, nil)
	assert.False(t, rl.Enabled())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1").Allowed)
	}
	assert.Equal(t, 0, rl.GetStats()["active_buckets"])
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(60, &now)

	rl.Allow("a")
	now = now.Add(5 * time.Minute)
	rl.Allow("b")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.GetStats()["active_buckets"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(1, &now)

	r := gin.New()
	r.Use(apperrors.ErrorHandler(), rl.IPRateLimitMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"category":"rate_limit"`)
}
