package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	// 自动执行数据库迁移
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.Mailbox{},
		&domain.Message{},
		&domain.ProviderHealth{},
		&domain.AnalyticsEvent{},
	)
}

// SaveMailbox 保存邮箱
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	return s.gormDB.Create(mailbox).Error
}

// GetMailboxByAddress 按地址查询邮箱
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.gormDB.Where("address = ?", address).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// UpdateMailboxToken 补写服务商令牌
func (s *Store) UpdateMailboxToken(address, token string) error {
	result := s.gormDB.Model(&domain.Mailbox{}).
		Where("address = ?", address).
		Update("provider_token", token)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ListMailboxesByOwner 按用户标识查询邮箱
func (s *Store) ListMailboxesByOwner(ownerID string) []domain.Mailbox {
	var mailboxes []domain.Mailbox
	s.gormDB.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&mailboxes)
	return mailboxes
}

// DeleteExpiredMailboxes 删除过期邮箱并级联删除其邮件，返回删除数量
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	now := time.Now().UTC()

	var expired []domain.Mailbox
	if err := s.gormDB.Where("expires_at < ?", now).Find(&expired).Error; err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, mailbox := range expired {
		ids = append(ids, mailbox.ID)
	}

	// 先删邮件再删邮箱，保证不会留下孤儿邮件
	if err := s.gormDB.Where("mailbox_id IN ?", ids).Delete(&domain.Message{}).Error; err != nil {
		return 0, err
	}
	if err := s.gormDB.Where("id IN ?", ids).Delete(&domain.Mailbox{}).Error; err != nil {
		return 0, err
	}
	return len(ids), nil
}

// InsertMessageIfAbsent 以唯一约束去重写入邮件，返回是否实际插入。
// 依赖 (mailbox_id, message_id) 唯一索引，冲突时静默跳过，
// 并发拉取同一邮箱不会产生重复记录。
func (s *Store) InsertMessageIfAbsent(message *domain.Message) (bool, error) {
	result := s.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(message)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListMessages 按接收时间升序返回邮箱内全部邮件
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.gormDB.Where("mailbox_id = ?", mailboxID).
		Order("received_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UpsertProviderHealth 写入或更新服务商健康记录
func (s *Store) UpsertProviderHealth(record *domain.ProviderHealth) error {
	return s.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_healthy", "last_checked", "error_count"}),
	}).Create(record).Error
}

// GetProviderHealth 查询服务商健康记录；不存在时返回 nil
func (s *Store) GetProviderHealth(provider domain.ProviderName) (*domain.ProviderHealth, error) {
	var record domain.ProviderHealth
	err := s.gormDB.Where("provider = ?", provider).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// RecordEvent 记录埋点事件
func (s *Store) RecordEvent(event *domain.AnalyticsEvent) error {
	return s.gormDB.Create(event).Error
}

// CountEvents 统计时间区间内的事件数量
func (s *Store) CountEvents(event string, from, to time.Time) (int64, error) {
	var count int64
	err := s.gormDB.Model(&domain.AnalyticsEvent{}).
		Where("event = ? AND created_at >= ? AND created_at < ?", event, from, to).
		Count(&count).Error
	return count, err
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}
