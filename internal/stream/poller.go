package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
)

// EventType 推送事件类型
type EventType string

const (
	// EventConnected 订阅建立后立即下发的握手事件
	EventConnected EventType = "connected"
	// EventMessages 周期轮询得到的邮件快照
	EventMessages EventType = "messages"
	// EventError 单次轮询失败（连接保持，下个周期继续）
	EventError EventType = "error"
)

// Event 实时推送通道上的单个事件
type Event struct {
	Type      EventType        `json:"type"`
	Address   string           `json:"email,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Fetcher 取件能力抽象，由服务商管理器实现
type Fetcher interface {
	GetMessages(ctx context.Context, address string) ([]domain.Message, error)
}

// Poller 实时推送轮询器。
//
// 每个订阅独立起一个轮询循环：先下发 connected 握手事件，之后按固定
// 周期取件并推送完整快照。单次取件失败下发 error 事件但不断开，下个
// 周期照常重试。订阅方的 context 取消是唯一的终止信号：循环停表、
// 关闭事件通道，不留悬挂 goroutine。
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	buffer   int
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewPoller 创建轮询器
func NewPoller(fetcher Fetcher, interval time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		buffer:   8,
		metrics:  metrics,
		log:      log,
	}
}

// Subscribe 订阅指定邮箱的实时更新。
// 返回的通道在 ctx 取消后关闭；事件按产生顺序投递，消费方来不及
// 处理时轮询循环会阻塞在发送上（由 ctx 取消兜底退出）。
func (p *Poller) Subscribe(ctx context.Context, address string) <-chan Event {
	events := make(chan Event, p.buffer)

	go p.run(ctx, address, events)

	return events
}

func (p *Poller) run(ctx context.Context, address string, events chan<- Event) {
	defer close(events)

	if p.metrics != nil {
		p.metrics.StreamSubscriberDelta(1)
		defer p.metrics.StreamSubscriberDelta(-1)
	}

	p.log.Debug("stream subscription started", zap.String("address", address))
	defer p.log.Debug("stream subscription stopped", zap.String("address", address))

	if !p.send(ctx, events, Event{
		Type:      EventConnected,
		Address:   address,
		Timestamp: time.Now().UTC(),
	}) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.send(ctx, events, p.poll(ctx, address)) {
				return
			}
		}
	}
}

// poll 执行一次取件并包装成事件
func (p *Poller) poll(ctx context.Context, address string) Event {
	now := time.Now().UTC()

	messages, err := p.fetcher.GetMessages(ctx, address)
	if err != nil {
		p.log.Warn("stream poll failed",
			zap.String("address", address),
			zap.Error(err),
		)
		return Event{
			Type:      EventError,
			Address:   address,
			Error:     "failed to fetch messages",
			Timestamp: now,
		}
	}

	return Event{
		Type:      EventMessages,
		Address:   address,
		Messages:  messages,
		Timestamp: now,
	}
}

// send 投递事件；ctx 已取消时返回 false
func (p *Poller) send(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
