package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cloud-platform/team-metrics/shared/config"
	"github.com/cloud-platform/team-metrics/shared/response"
)

// TokenBucketLimiter 按客户端IP的令牌桶限流器
type TokenBucketLimiter struct {
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

// NewTokenBucketLimiter 创建令牌桶限流器
func NewTokenBucketLimiter(rps rate.Limit, burst int, cleanup time.Duration) *TokenBucketLimiter {
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rps,
		burst:    burst,
		cleanup:  cleanup,
	}
}

// NewLimiterFromConfig 根据配置创建限流器
func NewLimiterFromConfig(cfg config.RateLimitConfig) *TokenBucketLimiter {
	return NewTokenBucketLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst, cfg.Cleanup)
}

func (l *TokenBucketLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.lastSeen[key] = time.Now()
	return limiter
}

// Allow 检查是否允许请求
func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// GetRemaining 获取剩余请求数
func (l *TokenBucketLimiter) GetRemaining(key string) int {
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	l.mu.Unlock()

	if !exists {
		return l.burst
	}
	tokens := limiter.Tokens()
	switch {
	case tokens > float64(l.burst):
		return l.burst
	case tokens < 0:
		return 0
	}
	return int(tokens)
}

// Run 定期清理长时间未出现的客户端，直到ctx结束
func (l *TokenBucketLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *TokenBucketLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.cleanup {
			delete(l.limiters, key)
			delete(l.lastSeen, key)
		}
	}
}

// retryAfter 补充一个令牌所需的时间
func (l *TokenBucketLimiter) retryAfter() time.Duration {
	if l.rate <= 0 || l.rate == rate.Inf {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(l.rate))
}

// RateLimit 限流中间件
func RateLimit(limiter *TokenBucketLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			logger.Warn("请求被限流",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path))

			response.TooManyRequests(c, limiter.retryAfter())
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(clientIP)))
		c.Next()
	}
}
