package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

func TestLocalCacheMailbox(t *testing.T) {
	c := NewLocalCache()
	defer c.Close()
	ctx := context.Background()

	t.Run("未命中返回 ErrCacheMiss", func(t *testing.T) {
		_, err := c.GetMailbox(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrCacheMiss)
	})

	t.Run("写入后读取返回副本", func(t *testing.T) {
		mailbox := &domain.Mailbox{Address: "a@example.com", Provider: domain.ProviderOneSecMail}
		require.NoError(t, c.SetMailbox(ctx, mailbox, time.Minute))

		got, err := c.GetMailbox(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, mailbox.Address, got.Address)

		// 修改返回值不影响缓存内容
		got.Address = "mutated"
		again, err := c.GetMailbox(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", again.Address)
	})

	t.Run("过期条目按未命中处理", func(t *testing.T) {
		mailbox := &domain.Mailbox{Address: "short@example.com"}
		require.NoError(t, c.SetMailbox(ctx, mailbox, time.Millisecond))

		time.Sleep(5 * time.Millisecond)
		_, err := c.GetMailbox(ctx, "short@example.com")
		assert.ErrorIs(t, err, storage.ErrCacheMiss)
	})
}

func TestLocalCacheRateLimit(t *testing.T) {
	c := NewLocalCache()
	defer c.Close()
	ctx := context.Background()

	t.Run("窗口内计数递增", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			count, err := c.IncrementRateLimit(ctx, "rate:a", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, want, count)
		}
	})

	t.Run("窗口过期后重新计数", func(t *testing.T) {
		count, err := c.IncrementRateLimit(ctx, "rate:b", time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		time.Sleep(5 * time.Millisecond)
		count, err = c.IncrementRateLimit(ctx, "rate:b", time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("不同键互不影响", func(t *testing.T) {
		count, err := c.IncrementRateLimit(ctx, "rate:c", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
