package domain

import (
	"fmt"
	"time"
)

// ProviderName 标识一个上游临时邮箱服务商。
//
// 这是一个封闭集合：邮箱记录中的 provider 字段只允许出现下列值，
// 未注册的值在取件时会返回"服务商不可用"错误，而不是静默降级。
type ProviderName string

const (
	// ProviderOneSecMail 1secmail 公开 API
	ProviderOneSecMail ProviderName = "1secmail"
	// ProviderMailTm mail.tm REST API
	ProviderMailTm ProviderName = "mail.tm"
	// ProviderGuerrillaMail GuerrillaMail ajax API
	ProviderGuerrillaMail ProviderName = "guerrillamail"
	// ProviderTempMailLol tempmail.lol v2 API
	ProviderTempMailLol ProviderName = "tempmail.lol"
)

// AllProviderNames 按固定优先级排列的全部服务商。
// 生成邮箱时按此顺序逐个尝试，不做基于负载的重排。
var AllProviderNames = []ProviderName{
	ProviderOneSecMail,
	ProviderMailTm,
	ProviderGuerrillaMail,
	ProviderTempMailLol,
}

// Valid 判断是否为已注册的服务商标识。
func (p ProviderName) Valid() bool {
	switch p {
	case ProviderOneSecMail, ProviderMailTm, ProviderGuerrillaMail, ProviderTempMailLol:
		return true
	}
	return false
}

// ParseProviderName 解析存储中的服务商标识。
func ParseProviderName(s string) (ProviderName, error) {
	p := ProviderName(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider: %q", s)
	}
	return p, nil
}

// ProviderHealth 记录单个服务商的健康状态，作为熔断依据。
//
// 每次生成失败时错误计数加一并标记不健康；探活成功时计数清零。
// 该记录同时写入短 TTL 缓存，避免每个请求都探活。
type ProviderHealth struct {
	Provider    ProviderName `json:"provider" gorm:"primaryKey;type:varchar(32)"`
	IsHealthy   bool         `json:"isHealthy" gorm:"default:true"`
	LastChecked time.Time    `json:"lastChecked"`
	ErrorCount  int          `json:"errorCount" gorm:"default:0"`
}
