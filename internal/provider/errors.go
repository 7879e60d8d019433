package provider

import (
	"errors"
	"fmt"

	"tempbox/backend/internal/domain"
)

// ProviderError 标记一次上游服务商的传输或协议失败。
// 携带服务商名称与可选的 HTTP 状态码，便于与业务错误区分：
// 管理器据此触发健康记录更新并切换服务商，而不会把它原样抛给调用方。
type ProviderError struct {
	Provider   domain.ProviderName
	Message    string
	StatusCode int
	Err        error
}

// Error 实现 error 接口
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Unwrap 返回底层错误
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// newStatusError 基于 HTTP 状态码构造服务商错误
func newStatusError(provider domain.ProviderName, message string, statusCode int) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, StatusCode: statusCode}
}

// wrapError 把传输层错误（超时、连接失败、解析失败）包装为服务商错误
func wrapError(provider domain.ProviderName, message string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Message: message, Err: err}
}

// AsProviderError 判断错误是否为服务商错误并提取
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
