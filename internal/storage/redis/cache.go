package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// 缓存键格式（与历史部署保持一致，便于平滑迁移）
const (
	keyMailbox        = "email:%s"    // email:<address>
	keyMessageList    = "messages:%s" // messages:<address>
	keyProviderHealth = "health:%s"   // health:<provider>
	keyRateLimit      = "rate:%s"     // rate:<ip>:<endpoint>
)

// Cache Redis 缓存实现，实现 storage.Cache 接口。
type Cache struct {
	client *Client
}

// NewCache 基于已建立的客户端创建缓存实例
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetMailbox 获取缓存的邮箱信息
func (c *Cache) GetMailbox(ctx context.Context, address string) (*domain.Mailbox, error) {
	key := fmt.Sprintf(keyMailbox, address)
	data, err := c.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, storage.ErrCacheMiss
		}
		return nil, err
	}

	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// SetMailbox 缓存邮箱信息
func (c *Cache) SetMailbox(ctx context.Context, mailbox *domain.Mailbox, ttl time.Duration) error {
	key := fmt.Sprintf(keyMailbox, mailbox.Address)
	data, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, key, data, ttl).Err()
}

// GetMessageList 获取缓存的邮件列表
func (c *Cache) GetMessageList(ctx context.Context, address string) ([]domain.Message, error) {
	key := fmt.Sprintf(keyMessageList, address)
	data, err := c.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, storage.ErrCacheMiss
		}
		return nil, err
	}

	var messages []domain.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SetMessageList 缓存邮件列表（整表覆盖，非增量）
func (c *Cache) SetMessageList(ctx context.Context, address string, messages []domain.Message, ttl time.Duration) error {
	key := fmt.Sprintf(keyMessageList, address)
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, key, data, ttl).Err()
}

// GetProviderHealth 获取缓存的服务商健康标记；未命中返回 ErrCacheMiss
func (c *Cache) GetProviderHealth(ctx context.Context, provider domain.ProviderName) (bool, error) {
	key := fmt.Sprintf(keyProviderHealth, provider)
	data, err := c.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, storage.ErrCacheMiss
		}
		return false, err
	}
	return data == "1", nil
}

// SetProviderHealth 写入服务商健康标记（覆盖旧值，立即生效）
func (c *Cache) SetProviderHealth(ctx context.Context, provider domain.ProviderName, healthy bool, ttl time.Duration) error {
	key := fmt.Sprintf(keyProviderHealth, provider)
	value := "0"
	if healthy {
		value = "1"
	}
	return c.client.rdb.Set(ctx, key, value, ttl).Err()
}

// IncrementRateLimit 固定窗口限流计数
func (c *Cache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := fmt.Sprintf(keyRateLimit, key)
	count, err := c.client.rdb.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, err
	}
	// 首次计数时设置窗口过期时间
	if count == 1 {
		if err := c.client.rdb.Expire(ctx, fullKey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Ping 测试缓存连接
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close 关闭缓存连接
func (c *Cache) Close() error {
	return c.client.Close()
}
