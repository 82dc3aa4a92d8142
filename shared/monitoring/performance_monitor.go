package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultSlowThreshold 慢请求阈值
const DefaultSlowThreshold = time.Second

// PerformanceMonitor 性能监控器
//
// 统计HTTP请求与指标缓存命中情况，快照通过健康检查接口输出。
type PerformanceMonitor struct {
	logger        *zap.Logger
	slowThreshold time.Duration
	startedAt     time.Time

	requests      atomic.Int64
	clientErrors  atomic.Int64
	serverErrors  atomic.Int64
	slowRequests  atomic.Int64
	totalDuration atomic.Int64 // 纳秒

	mu    sync.RWMutex
	cache map[string]*RateMetric
}

// RateMetric 比率指标
type RateMetric struct {
	hits  atomic.Int64
	total atomic.Int64
}

// Rate 命中率，无样本时为0
func (r *RateMetric) Rate() float64 {
	total := r.total.Load()
	if total == 0 {
		return 0
	}
	return float64(r.hits.Load()) / float64(total)
}

// CacheStats 单类缓存的统计
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Snapshot 监控快照
type Snapshot struct {
	Uptime         string                `json:"uptime"`
	Requests       int64                 `json:"requests"`
	ClientErrors   int64                 `json:"client_errors"`
	ServerErrors   int64                 `json:"server_errors"`
	SlowRequests   int64                 `json:"slow_requests"`
	AverageLatency string                `json:"average_latency"`
	Cache          map[string]CacheStats `json:"cache"`
}

// NewPerformanceMonitor 创建性能监控器
func NewPerformanceMonitor(logger *zap.Logger, slowThreshold time.Duration) *PerformanceMonitor {
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &PerformanceMonitor{
		logger:        logger,
		slowThreshold: slowThreshold,
		startedAt:     time.Now(),
		cache:         make(map[string]*RateMetric),
	}
}

// HTTPMiddleware HTTP性能监控中间件
func (pm *PerformanceMonitor) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		pm.requests.Add(1)
		pm.totalDuration.Add(int64(duration))
		switch {
		case status >= 500:
			pm.serverErrors.Add(1)
		case status >= 400:
			pm.clientErrors.Add(1)
		}

		if duration > pm.slowThreshold {
			pm.slowRequests.Add(1)
			pm.logger.Warn("检测到慢请求",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", status),
				zap.Duration("duration", duration),
			)
		}
	}
}

// RecordCacheHit 记录一次缓存查询结果
func (pm *PerformanceMonitor) RecordCacheHit(kind string, hit bool) {
	metric := pm.rate(kind)
	metric.total.Add(1)
	if hit {
		metric.hits.Add(1)
	}
}

// GetCacheHitRate 获取某类缓存的命中率
func (pm *PerformanceMonitor) GetCacheHitRate(kind string) float64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if metric, ok := pm.cache[kind]; ok {
		return metric.Rate()
	}
	return 0
}

// Snapshot 生成当前快照
func (pm *PerformanceMonitor) Snapshot() Snapshot {
	requests := pm.requests.Load()
	var avg time.Duration
	if requests > 0 {
		avg = time.Duration(pm.totalDuration.Load() / requests)
	}

	snap := Snapshot{
		Uptime:         time.Since(pm.startedAt).Round(time.Second).String(),
		Requests:       requests,
		ClientErrors:   pm.clientErrors.Load(),
		ServerErrors:   pm.serverErrors.Load(),
		SlowRequests:   pm.slowRequests.Load(),
		AverageLatency: avg.String(),
		Cache:          make(map[string]CacheStats),
	}

	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for kind, metric := range pm.cache {
		hits, total := metric.hits.Load(), metric.total.Load()
		snap.Cache[kind] = CacheStats{Hits: hits, Misses: total - hits, HitRate: metric.Rate()}
	}
	return snap
}

func (pm *PerformanceMonitor) rate(kind string) *RateMetric {
	pm.mu.RLock()
	metric, ok := pm.cache[kind]
	pm.mu.RUnlock()
	if ok {
		return metric
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if metric, ok = pm.cache[kind]; !ok {
		metric = &RateMetric{}
		pm.cache[kind] = metric
	}
	return metric
}
