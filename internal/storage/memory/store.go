package memory

import (
	"sort"
	"sync"
	"time"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// Store 内存存储实现，用于开发环境与测试。
//
// 所有操作都在同一把读写锁下进行，邮件写入在持锁状态下检查并插入，
// 与数据库的唯一约束语义一致（并发拉取不会产生重复邮件）。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox            // address -> mailbox
	messages  map[string]map[string]*domain.Message // mailboxID -> messageID -> message
	health    map[domain.ProviderName]*domain.ProviderHealth
	events    []*domain.AnalyticsEvent
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		messages:  make(map[string]map[string]*domain.Message),
		health:    make(map[domain.ProviderName]*domain.ProviderHealth),
	}
}

// SaveMailbox 保存邮箱
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *mailbox
	s.mailboxes[mailbox.Address] = &clone
	return nil
}

// GetMailboxByAddress 按地址查询邮箱
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[address]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	clone := *mailbox
	return &clone, nil
}

// UpdateMailboxToken 补写服务商令牌
func (s *Store) UpdateMailboxToken(address, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[address]
	if !ok {
		return storage.ErrMailboxNotFound
	}
	mailbox.ProviderToken = token
	return nil
}

// ListMailboxesByOwner 按用户标识查询邮箱
func (s *Store) ListMailboxesByOwner(ownerID string) []domain.Mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Mailbox
	for _, mailbox := range s.mailboxes {
		if mailbox.OwnerID != nil && *mailbox.OwnerID == ownerID {
			result = append(result, *mailbox)
		}
	}
	return result
}

// DeleteExpiredMailboxes 删除过期邮箱并级联删除其邮件
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for address, mailbox := range s.mailboxes {
		if mailbox.Expired(now) {
			delete(s.mailboxes, address)
			delete(s.messages, mailbox.ID)
			count++
		}
	}
	return count, nil
}

// InsertMessageIfAbsent 原子写入邮件，已存在时不做修改
func (s *Store) InsertMessageIfAbsent(message *domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.messages[message.MailboxID]
	if !ok {
		box = make(map[string]*domain.Message)
		s.messages[message.MailboxID] = box
	}
	if _, exists := box[message.MessageID]; exists {
		return false, nil
	}

	clone := *message
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	box[message.MessageID] = &clone
	return true, nil
}

// ListMessages 按接收时间升序返回邮箱内全部邮件
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	box := s.messages[mailboxID]
	result := make([]domain.Message, 0, len(box))
	for _, message := range box {
		result = append(result, *message)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

// UpsertProviderHealth 写入或更新服务商健康记录
func (s *Store) UpsertProviderHealth(record *domain.ProviderHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.health[record.Provider] = &clone
	return nil
}

// GetProviderHealth 查询服务商健康记录
func (s *Store) GetProviderHealth(provider domain.ProviderName) (*domain.ProviderHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.health[provider]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// RecordEvent 记录埋点事件
func (s *Store) RecordEvent(event *domain.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, &clone)
	return nil
}

// CountEvents 统计时间区间内的事件数量
func (s *Store) CountEvents(event string, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.events {
		if e.Event == event && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

// Close 关闭存储（内存实现无需清理）
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态
func (s *Store) Health() error {
	return nil
}
