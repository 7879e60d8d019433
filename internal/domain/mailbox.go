package domain

import (
	"time"
)

// Mailbox 表示由某个上游服务商托管的临时邮箱。
//
// 记录创建后除 ProviderToken 外不可变（部分服务商在创建后才异步
// 下发会话令牌）。过期邮箱由定时清理任务删除，并级联删除其邮件。
type Mailbox struct {
	ID       string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address  string       `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	Domain   string       `json:"domain" gorm:"type:varchar(100);index"`
	Provider ProviderName `json:"provider" gorm:"type:varchar(32);index"`
	// OwnerID 外部身份系统下发的用户标识，游客模式为 nil
	OwnerID *string `json:"ownerId,omitempty" gorm:"type:varchar(64);index"`
	// SessionID 匿名会话标识（未登录用户）
	SessionID string `json:"sessionId,omitempty" gorm:"type:varchar(64);index"`
	// ProviderToken 服务商侧的不透明令牌（如 tempmail.lol 的收件箱 token），
	// 取件时需要携带。创建后可补写一次。
	ProviderToken string    `json:"-" gorm:"type:varchar(512)"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt" gorm:"index"`
}

// Expired 判断邮箱是否已过期。
func (m *Mailbox) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}
