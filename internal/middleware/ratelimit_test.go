package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/cache"
	"tempbox/backend/internal/storage"
)

// failingRateCache 模拟缓存故障的限流后端
type failingRateCache struct {
	storage.Cache
}

func (f *failingRateCache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("cache down")
}

func newRateLimitRouter(limiter *RateLimiter, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", limiter.Limit("test", limit, time.Hour), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func TestRateLimiterFixedWindow(t *testing.T) {
	cacheLayer := cache.NewLocalCache()
	defer cacheLayer.Close()

	limiter := NewRateLimiter(cacheLayer, zap.NewNop())
	router := newRateLimitRouter(limiter, 2)

	t.Run("限额内请求放行并带配额头", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("超过限额返回 429", func(t *testing.T) {
		// 第二次用掉剩余配额，第三次越界
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})
}

func TestRateLimiterCacheFailureFallback(t *testing.T) {
	limiter := NewRateLimiter(&failingRateCache{}, zap.NewNop())
	router := newRateLimitRouter(limiter, 2)

	// 缓存故障时走进程内令牌桶：突发额度内放行，超出拒绝
	allowed := 0
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "兜底限流应只放行突发额度")
}
