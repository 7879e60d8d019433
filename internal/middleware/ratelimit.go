package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempbox/backend/internal/storage"
)

// RateLimiter 固定窗口限流中间件。
//
// 正常路径用共享缓存计数（多实例部署时限流全局生效）；缓存故障时
// 降级到进程内的令牌桶兜底，避免缓存抖动把限流放空或把请求打死。
type RateLimiter struct {
	cache storage.Cache
	log   *zap.Logger

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// NewRateLimiter 创建限流中间件
func NewRateLimiter(cache storage.Cache, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		cache:    cache,
		log:      log,
		fallback: make(map[string]*rate.Limiter),
	}
}

// Limit 返回指定范围的限流处理器。
// scope 区分接口（generate / messages），计数键按 范围+客户端IP 组合。
func (rl *RateLimiter) Limit(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", scope, c.ClientIP())

		count, err := rl.cache.IncrementRateLimit(c.Request.Context(), key, window)
		if err != nil {
			// 缓存不可用：降级到进程内令牌桶
			rl.log.Warn("rate limit cache unavailable, using local fallback",
				zap.String("key", key),
				zap.Error(err),
			)
			if !rl.allowLocal(key, limit, window) {
				tooManyRequests(c, limit, window)
				return
			}
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

		if count > int64(limit) {
			tooManyRequests(c, limit, window)
			return
		}

		c.Next()
	}
}

// allowLocal 进程内令牌桶兜底：按窗口平均速率放行，突发额度等于限额
func (rl *RateLimiter) allowLocal(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	limiter, ok := rl.fallback[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
		rl.fallback[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// tooManyRequests 返回 429 响应
func tooManyRequests(c *gin.Context, limit int, window time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
		"limit": limit,
	})
}
