package cache

import (
	"context"
	"sync"
	"time"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// LocalCache 本地内存缓存，实现 storage.Cache 接口。
//
// 在未配置 Redis 的部署中作为降级方案使用：
// - 使用 sync.Map 实现无锁读取
// - 支持 TTL 过期与定期清理
// - 限流计数在独立互斥锁下维护窗口
type LocalCache struct {
	data sync.Map

	rateMu sync.Mutex
	rates  map[string]*rateWindow
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

type rateWindow struct {
	count    int64
	resetsAt time.Time
}

// NewLocalCache 创建本地缓存并启动定期清理
func NewLocalCache() *LocalCache {
	c := &LocalCache{
		rates: make(map[string]*rateWindow),
	}
	go c.cleanupLoop()
	return c
}

func (c *LocalCache) get(key string) (interface{}, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.data.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (c *LocalCache) set(key string, value interface{}, ttl time.Duration) {
	c.data.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// GetMailbox 获取缓存的邮箱信息
func (c *LocalCache) GetMailbox(_ context.Context, address string) (*domain.Mailbox, error) {
	val, ok := c.get("email:" + address)
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	mailbox := val.(domain.Mailbox)
	return &mailbox, nil
}

// SetMailbox 缓存邮箱信息
func (c *LocalCache) SetMailbox(_ context.Context, mailbox *domain.Mailbox, ttl time.Duration) error {
	c.set("email:"+mailbox.Address, *mailbox, ttl)
	return nil
}

// GetMessageList 获取缓存的邮件列表
func (c *LocalCache) GetMessageList(_ context.Context, address string) ([]domain.Message, error) {
	val, ok := c.get("messages:" + address)
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	cached := val.([]domain.Message)
	messages := make([]domain.Message, len(cached))
	copy(messages, cached)
	return messages, nil
}

// SetMessageList 缓存邮件列表
func (c *LocalCache) SetMessageList(_ context.Context, address string, messages []domain.Message, ttl time.Duration) error {
	clone := make([]domain.Message, len(messages))
	copy(clone, messages)
	c.set("messages:"+address, clone, ttl)
	return nil
}

// GetProviderHealth 获取缓存的服务商健康标记
func (c *LocalCache) GetProviderHealth(_ context.Context, provider domain.ProviderName) (bool, error) {
	val, ok := c.get("health:" + string(provider))
	if !ok {
		return false, storage.ErrCacheMiss
	}
	return val.(bool), nil
}

// SetProviderHealth 写入服务商健康标记
func (c *LocalCache) SetProviderHealth(_ context.Context, provider domain.ProviderName, healthy bool, ttl time.Duration) error {
	c.set("health:"+string(provider), healthy, ttl)
	return nil
}

// IncrementRateLimit 固定窗口限流计数
func (c *LocalCache) IncrementRateLimit(_ context.Context, key string, window time.Duration) (int64, error) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	now := time.Now()
	w, ok := c.rates[key]
	if !ok || now.After(w.resetsAt) {
		w = &rateWindow{resetsAt: now.Add(window)}
		c.rates[key] = w
	}
	w.count++
	return w.count, nil
}

// Ping 本地缓存始终可用
func (c *LocalCache) Ping(_ context.Context) error {
	return nil
}

// Close 关闭缓存
func (c *LocalCache) Close() error {
	return nil
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.data.Range(func(key, value interface{}) bool {
			entry := value.(*cacheEntry)
			if now.After(entry.expiresAt) {
				c.data.Delete(key)
			}
			return true
		})

		c.rateMu.Lock()
		for key, w := range c.rates {
			if now.After(w.resetsAt) {
				delete(c.rates, key)
			}
		}
		c.rateMu.Unlock()
	}
}
