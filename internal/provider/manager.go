package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/storage"
)

var (
	// ErrNoProviderAvailable 所有服务商都失败或无健康服务商
	ErrNoProviderAvailable = errors.New("no provider available")
	// ErrProviderUnavailable 邮箱记录引用的服务商未注册（适配器已下线）
	ErrProviderUnavailable = errors.New("provider not available")
)

// Manager 服务商聚合管理器。
//
// 持有按优先级排列的适配器集合，负责选路、故障切换、持久化、
// 缓存填充与邮件去重。显式构造并通过依赖注入传给请求处理器，
// 不依赖任何进程级单例，便于用桩适配器测试。
type Manager struct {
	providers []Provider
	byName    map[domain.ProviderName]Provider
	tracker   *HealthTracker
	store     storage.Store
	cache     storage.Cache
	metrics   *monitoring.Metrics
	log       *zap.Logger

	mailboxTTL  time.Duration // 邮箱缓存有效期
	messagesTTL time.Duration // 邮件列表缓存有效期
}

// ManagerOptions 管理器构造参数
type ManagerOptions struct {
	Providers []Provider // 按固定优先级排列
	Tracker   *HealthTracker
	Store     storage.Store
	Cache     storage.Cache
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger

	MailboxCacheTTL  time.Duration
	MessagesCacheTTL time.Duration
}

// NewManager 创建服务商聚合管理器
func NewManager(opts ManagerOptions) *Manager {
	byName := make(map[domain.ProviderName]Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		byName[p.Name()] = p
	}

	mailboxTTL := opts.MailboxCacheTTL
	if mailboxTTL <= 0 {
		mailboxTTL = time.Hour
	}
	messagesTTL := opts.MessagesCacheTTL
	if messagesTTL <= 0 {
		messagesTTL = 5 * time.Minute
	}

	return &Manager{
		providers:   opts.Providers,
		byName:      byName,
		tracker:     opts.Tracker,
		store:       opts.Store,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		mailboxTTL:  mailboxTTL,
		messagesTTL: messagesTTL,
	}
}

// Providers 返回按优先级排列的适配器集合
func (m *Manager) Providers() []Provider {
	return m.providers
}

// GenerateMailboxInput 定义生成邮箱的输入
type GenerateMailboxInput struct {
	Domain    string
	Prefix    string
	OwnerID   *string // 外部身份系统下发的用户标识，游客为 nil
	SessionID string  // 匿名会话标识
}

// GenerateMailbox 生成新的临时邮箱。
//
// 从健康追踪器取当前健康的服务商列表，按优先级逐个尝试，首个成功者
// 胜出：持久化邮箱记录（必须成功）、尽力写缓存、尽力写埋点事件。
// 单个服务商失败会记录健康信号并继续尝试下一个；全部失败时返回
// ErrNoProviderAvailable 并附带最后一个底层错误用于诊断。
func (m *Manager) GenerateMailbox(ctx context.Context, input GenerateMailboxInput) (*domain.Mailbox, error) {
	healthyProviders := m.tracker.HealthyProviders(ctx, m.providers)
	if len(healthyProviders) == 0 {
		return nil, ErrNoProviderAvailable
	}

	var lastErr error
	for _, p := range healthyProviders {
		mailbox, err := p.Generate(ctx, GenerateInput{Domain: input.Domain, Prefix: input.Prefix})
		if m.metrics != nil {
			m.metrics.RecordProviderRequest(p.Name(), "generate", err)
		}
		if err != nil {
			lastErr = err
			m.log.Error("provider generation failed",
				zap.String("provider", string(p.Name())),
				zap.Error(err),
			)
			m.tracker.RecordFailure(ctx, p.Name())
			continue
		}

		mailbox.ID = uuid.NewString()
		mailbox.OwnerID = input.OwnerID
		mailbox.SessionID = input.SessionID
		if mailbox.CreatedAt.IsZero() {
			mailbox.CreatedAt = time.Now().UTC()
		}

		// 持久化是主流程的一部分：取件要靠这条记录定位服务商
		if err := m.store.SaveMailbox(mailbox); err != nil {
			return nil, fmt.Errorf("persist mailbox: %w", err)
		}

		// 缓存与埋点都是尽力而为
		if err := m.cache.SetMailbox(ctx, mailbox, m.mailboxTTL); err != nil {
			m.log.Warn("failed to cache mailbox",
				zap.String("address", mailbox.Address),
				zap.Error(err),
			)
		}
		m.trackGeneration(mailbox, input)

		if m.metrics != nil {
			m.metrics.RecordMailboxGenerated(p.Name())
		}
		m.log.Info("mailbox generated",
			zap.String("address", mailbox.Address),
			zap.String("provider", string(p.Name())),
			zap.Time("expires_at", mailbox.ExpiresAt),
		)
		return mailbox, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoProviderAvailable, lastErr)
}

// GetMessages 获取邮箱的全部可见邮件。
//
// 路径：缓存命中直接返回；未命中时加载邮箱记录（不存在则报
// "邮箱不存在"），按服务商标识解析适配器（未注册则报"服务商不可用"），
// 调用适配器取件。每封邮件以 (邮箱, 服务商邮件编号) 为键原子落库，
// 已存在的保持不变；随后用本次完整结果刷新缓存。适配器取件失败时
// 不把错误抛给调用方，改为返回持久化的历史邮件（部分可用优于全挂）。
func (m *Manager) GetMessages(ctx context.Context, address string) ([]domain.Message, error) {
	if cached, err := m.cache.GetMessageList(ctx, address); err == nil {
		return cached, nil
	} else if !errors.Is(err, storage.ErrCacheMiss) {
		m.log.Warn("message cache unavailable",
			zap.String("address", address),
			zap.Error(err),
		)
	}

	mailbox, err := m.store.GetMailboxByAddress(address)
	if err != nil {
		return nil, err
	}

	p, ok := m.byName[mailbox.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, mailbox.Provider)
	}

	fetched, err := p.FetchMessages(ctx, mailbox)
	if m.metrics != nil {
		m.metrics.RecordProviderRequest(p.Name(), "fetch_messages", err)
	}
	if err != nil {
		m.log.Error("provider fetch failed, falling back to stored history",
			zap.String("address", address),
			zap.String("provider", string(p.Name())),
			zap.Error(err),
		)
		m.tracker.RecordFailure(ctx, p.Name())
		return m.store.ListMessages(mailbox.ID)
	}

	for i := range fetched {
		fetched[i].ID = uuid.NewString()
		fetched[i].MailboxID = mailbox.ID

		inserted, err := m.store.InsertMessageIfAbsent(&fetched[i])
		if err != nil {
			m.log.Warn("failed to persist message",
				zap.String("address", address),
				zap.String("message_id", fetched[i].MessageID),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			m.log.Debug("message ingested",
				zap.String("address", address),
				zap.String("message_id", fetched[i].MessageID),
			)
		}
	}

	if err := m.cache.SetMessageList(ctx, address, fetched, m.messagesTTL); err != nil {
		m.log.Warn("failed to cache message list",
			zap.String("address", address),
			zap.Error(err),
		)
	}

	return fetched, nil
}

// trackGeneration 尽力写入生成埋点事件
func (m *Manager) trackGeneration(mailbox *domain.Mailbox, input GenerateMailboxInput) {
	event := &domain.AnalyticsEvent{
		ID:        uuid.NewString(),
		Event:     domain.EventMailboxGenerated,
		OwnerID:   input.OwnerID,
		SessionID: input.SessionID,
		Provider:  mailbox.Provider,
		Domain:    mailbox.Domain,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.RecordEvent(event); err != nil {
		m.log.Warn("failed to record analytics event", zap.Error(err))
	}
}
