package provider

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"time"

	"tempbox/backend/internal/domain"
)

// GenerateInput 定义生成邮箱时的可选参数。
// 域名与前缀均可省略，由各服务商实现补全默认域名和随机前缀。
type GenerateInput struct {
	Domain string
	Prefix string
}

// Provider 定义上游临时邮箱服务商的统一适配接口。
//
// 每个实现负责把一家服务商的协议翻译成统一的 Mailbox/Message 形态：
//   - Generate 向上游申请新地址，过期时间由服务商策略决定
//   - FetchMessages 拉取当前可见的全部邮件；需要会话令牌的实现
//     先查进程内缓存，再回退到邮箱记录（来自持久存储），
//     都没有则视为收件箱已过期，返回空列表而不是报错
//   - IsHealthy 轻量探活，任何传输失败都只返回 false，绝不抛错
//
// 所有网络失败都以 *ProviderError 形式返回，与业务错误（如"邮箱
// 不存在"）可区分。每次上游调用都受显式超时约束。
type Provider interface {
	Name() domain.ProviderName
	Generate(ctx context.Context, input GenerateInput) (*domain.Mailbox, error)
	FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error)
	IsHealthy(ctx context.Context) bool
}

// newHTTPClient 创建带超时约束的 HTTP 客户端。
// 上游服务商不保证响应及时，这里兜底保证任何调用都不会无限挂起。
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConnsPerHost:   4,
		},
	}
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomString 生成指定长度的随机字符串（小写字母+数字）
func randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = randomAlphabet[rand.Intn(len(randomAlphabet))]
	}
	return string(b)
}
