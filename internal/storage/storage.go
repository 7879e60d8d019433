package storage

import (
	"context"
	"errors"
	"time"

	"tempbox/backend/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱未找到错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrCacheMiss 缓存未命中错误
	ErrCacheMiss = errors.New("cache miss")
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	SaveMailbox(mailbox *domain.Mailbox) error
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	// UpdateMailboxToken 补写服务商令牌（创建后异步下发的场景），
	// 这是邮箱记录唯一允许的变更。
	UpdateMailboxToken(address, token string) error
	ListMailboxesByOwner(ownerID string) []domain.Mailbox
	DeleteExpiredMailboxes() (int, error) // 删除过期邮箱（级联删除邮件），返回删除数量
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	// InsertMessageIfAbsent 以 (MailboxID, MessageID) 为去重键原子写入，
	// 已存在时不做任何修改。返回是否实际插入。
	// 必须依赖唯一约束而非先查后写，并发拉取同一邮箱时才不会重复。
	InsertMessageIfAbsent(message *domain.Message) (bool, error)
	ListMessages(mailboxID string) ([]domain.Message, error)
}

// ProviderHealthRepository 定义服务商健康记录的存取操作。
type ProviderHealthRepository interface {
	UpsertProviderHealth(record *domain.ProviderHealth) error
	GetProviderHealth(provider domain.ProviderName) (*domain.ProviderHealth, error)
}

// AnalyticsRepository 定义埋点事件的存取操作。
type AnalyticsRepository interface {
	RecordEvent(event *domain.AnalyticsEvent) error
	CountEvents(event string, from, to time.Time) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	MessageRepository
	ProviderHealthRepository
	AnalyticsRepository

	Close() error
	Health() error
}

// Cache 定义键值缓存接口（Redis 或本地内存实现）。
//
// 所有写入都是尽力而为：缓存故障由调用方记日志后继续，
// 不阻断主流程。
type Cache interface {
	GetMailbox(ctx context.Context, address string) (*domain.Mailbox, error)
	SetMailbox(ctx context.Context, mailbox *domain.Mailbox, ttl time.Duration) error

	GetMessageList(ctx context.Context, address string) ([]domain.Message, error)
	SetMessageList(ctx context.Context, address string, messages []domain.Message, ttl time.Duration) error

	// GetProviderHealth 返回缓存的健康标记；未命中返回 ErrCacheMiss
	GetProviderHealth(ctx context.Context, provider domain.ProviderName) (bool, error)
	SetProviderHealth(ctx context.Context, provider domain.ProviderName, healthy bool, ttl time.Duration) error

	// IncrementRateLimit 固定窗口限流计数：首次自增时设置窗口过期
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
