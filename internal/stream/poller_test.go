package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
)

// stubFetcher 可编程的取件桩实现
type stubFetcher struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *stubFetcher) GetMessages(ctx context.Context, address string) ([]domain.Message, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("upstream timeout")
	}
	return []domain.Message{{MessageID: "m-1", Subject: "hello"}}, nil
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "事件通道提前关闭")
		return event
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
		return Event{}
	}
}

func TestPollerSubscribe(t *testing.T) {
	fetcher := &stubFetcher{}
	poller := NewPoller(fetcher, 10*time.Millisecond, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := poller.Subscribe(ctx, "box@example.com")

	t.Run("订阅后立即收到握手事件", func(t *testing.T) {
		event := waitEvent(t, events)
		assert.Equal(t, EventConnected, event.Type)
		assert.Equal(t, "box@example.com", event.Address)
		assert.Equal(t, int64(0), fetcher.calls.Load(), "握手事件不触发取件")
	})

	t.Run("周期推送邮件快照", func(t *testing.T) {
		event := waitEvent(t, events)
		assert.Equal(t, EventMessages, event.Type)
		require.Len(t, event.Messages, 1)
		assert.Equal(t, "m-1", event.Messages[0].MessageID)
	})

	t.Run("单次取件失败只下发错误事件不断开", func(t *testing.T) {
		fetcher.fail.Store(true)
		event := waitEvent(t, events)
		assert.Equal(t, EventError, event.Type)
		assert.NotEmpty(t, event.Error)

		// 恢复后继续推送快照
		fetcher.fail.Store(false)
		event = waitEvent(t, events)
		assert.Equal(t, EventMessages, event.Type)
	})
}

func TestPollerStopsOnCancel(t *testing.T) {
	fetcher := &stubFetcher{}
	poller := NewPoller(fetcher, 10*time.Millisecond, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	events := poller.Subscribe(ctx, "box@example.com")

	// 等到至少一次取件发生再断开
	waitEvent(t, events) // connected
	waitEvent(t, events) // messages
	cancel()

	// 通道最终关闭
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				goto closed
			}
		case <-deadline:
			t.Fatal("取消后事件通道未关闭")
		}
	}

closed:
	// 断开后不再发起取件
	settled := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, fetcher.calls.Load(), "取消后不应再轮询")
}

func TestPollerDefaultInterval(t *testing.T) {
	poller := NewPoller(&stubFetcher{}, 0, nil, zap.NewNop())
	assert.Equal(t, 3*time.Second, poller.interval)
}
