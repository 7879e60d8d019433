package domain

import (
	"encoding/json"
	"time"
)

// Message 表示从上游服务商拉取到的一封邮件。
//
// 唯一性由 (MailboxID, MessageID) 约束保证：MessageID 是服务商侧的
// 原生编号，重复拉取同一邮箱不会产生重复记录。邮件一经写入不再修改，
// 仅随邮箱过期级联删除。
type Message struct {
	ID        string `json:"-" gorm:"primaryKey;type:varchar(36)"`
	MailboxID string `json:"-" gorm:"type:varchar(36);index:idx_mailbox_message,unique;not null"`
	// MessageID 服务商侧的原生邮件编号（去重键的一半）
	MessageID  string    `json:"id" gorm:"column:message_id;type:varchar(128);index:idx_mailbox_message,unique;not null"`
	From       string    `json:"from" gorm:"type:varchar(255)"`
	To         string    `json:"to" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	Text       string    `json:"content" gorm:"type:text"`
	HTML       string    `json:"htmlContent,omitempty" gorm:"type:text"`
	ReceivedAt time.Time `json:"receivedAt"`
	// Attachments 服务商返回的附件元数据，整体按不透明 JSON 存储
	Attachments json.RawMessage `json:"attachments,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"-"`
}
