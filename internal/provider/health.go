package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/storage"
)

// HealthTracker 基于缓存的服务商熔断器。
//
// 探活结果缓存一个短 TTL（默认 1 分钟），把探活频率限制在每个
// 服务商每窗口一次。缓存或探活链路自身故障时按健康处理（fail open）：
// 缓存抖动不应导致整个生成链路停摆。与之相对，生成失败通过
// RecordFailure 立即覆写缓存，后续请求不必等 TTL 过期即可跳过故障
// 服务商。
type HealthTracker struct {
	cache   storage.Cache
	store   storage.ProviderHealthRepository
	metrics *monitoring.Metrics
	ttl     time.Duration
	log     *zap.Logger
}

// NewHealthTracker 创建健康追踪器
func NewHealthTracker(cache storage.Cache, store storage.ProviderHealthRepository, metrics *monitoring.Metrics, ttl time.Duration, log *zap.Logger) *HealthTracker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &HealthTracker{
		cache:   cache,
		store:   store,
		metrics: metrics,
		ttl:     ttl,
		log:     log,
	}
}

// HealthyProviders 按固定声明顺序返回当前健康的服务商子集。
// 每个服务商先查缓存；未命中时执行探活并回写缓存。
func (t *HealthTracker) HealthyProviders(ctx context.Context, providers []Provider) []Provider {
	healthy := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if t.isHealthy(ctx, p) {
			healthy = append(healthy, p)
		}
	}
	return healthy
}

// isHealthy 查询单个服务商的健康状态
func (t *HealthTracker) isHealthy(ctx context.Context, p Provider) bool {
	name := p.Name()

	cached, err := t.cache.GetProviderHealth(ctx, name)
	switch {
	case err == nil:
		return cached

	case errors.Is(err, storage.ErrCacheMiss):
		healthy := p.IsHealthy(ctx)
		if cacheErr := t.cache.SetProviderHealth(ctx, name, healthy, t.ttl); cacheErr != nil {
			t.log.Warn("failed to cache provider health",
				zap.String("provider", string(name)),
				zap.Error(cacheErr),
			)
		}
		t.persistProbeResult(name, healthy)
		if t.metrics != nil {
			t.metrics.SetProviderHealthy(name, healthy)
		}
		return healthy

	default:
		// 缓存故障按健康处理：一次缓存抖动不能让生成链路停摆
		t.log.Warn("health cache unavailable, assuming healthy",
			zap.String("provider", string(name)),
			zap.Error(err),
		)
		return true
	}
}

// persistProbeResult 把探活结果写入持久记录。
// 探活成功时清零错误计数；失败时走与生成失败相同的累加路径。
func (t *HealthTracker) persistProbeResult(name domain.ProviderName, healthy bool) {
	if !healthy {
		t.recordFailure(context.Background(), name, false)
		return
	}

	record := &domain.ProviderHealth{
		Provider:    name,
		IsHealthy:   true,
		LastChecked: time.Now().UTC(),
		ErrorCount:  0,
	}
	if err := t.store.UpsertProviderHealth(record); err != nil {
		t.log.Warn("failed to persist provider health",
			zap.String("provider", string(name)),
			zap.Error(err),
		)
	}
}

// RecordFailure 记录一次服务商失败。
// 标记不健康、错误计数加一并持久化，同时立即覆写缓存（绕过 TTL），
// 让后续请求直接跳过该服务商。
func (t *HealthTracker) RecordFailure(ctx context.Context, name domain.ProviderName) {
	t.recordFailure(ctx, name, true)
}

func (t *HealthTracker) recordFailure(ctx context.Context, name domain.ProviderName, overwriteCache bool) {
	errorCount := 1
	if existing, err := t.store.GetProviderHealth(name); err == nil && existing != nil {
		errorCount = existing.ErrorCount + 1
	}

	record := &domain.ProviderHealth{
		Provider:    name,
		IsHealthy:   false,
		LastChecked: time.Now().UTC(),
		ErrorCount:  errorCount,
	}
	if err := t.store.UpsertProviderHealth(record); err != nil {
		t.log.Warn("failed to persist provider failure",
			zap.String("provider", string(name)),
			zap.Error(err),
		)
	}

	if overwriteCache {
		if err := t.cache.SetProviderHealth(ctx, name, false, t.ttl); err != nil {
			t.log.Warn("failed to overwrite provider health cache",
				zap.String("provider", string(name)),
				zap.Error(err),
			)
		}
	}

	if t.metrics != nil {
		t.metrics.SetProviderHealthy(name, false)
	}
}
