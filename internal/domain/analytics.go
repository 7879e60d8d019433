package domain

import "time"

// 埋点事件名
const (
	EventMailboxGenerated = "email_generated"
)

// AnalyticsEvent 记录一次业务埋点事件。
// 写入是尽力而为的：埋点失败只记日志，不影响主流程。
type AnalyticsEvent struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Event     string       `json:"event" gorm:"type:varchar(64);index"`
	OwnerID   *string      `json:"ownerId,omitempty" gorm:"type:varchar(64);index"`
	SessionID string       `json:"sessionId,omitempty" gorm:"type:varchar(64)"`
	Provider  ProviderName `json:"provider,omitempty" gorm:"type:varchar(32)"`
	Domain    string       `json:"domain,omitempty" gorm:"type:varchar(100)"`
	CreatedAt time.Time    `json:"createdAt" gorm:"index"`
}
