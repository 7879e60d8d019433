package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

const (
	// mail.tm 匿名账号约 10 分钟后回收
	mailTmExpiry = 10 * time.Minute
	// 预置账号令牌按 55 分钟刷新（上游 1 小时过期，留安全余量）
	mailTmTokenLifetime = 55 * time.Minute
)

// MailTm mail.tm REST API 适配器。
//
// 该服务按账号寻址：生成时注册账号并换取 Bearer 令牌，取件必须携带。
// 令牌先查进程内映射，再回退到邮箱记录（持久存储），最后尝试用
// 预置账号凭据刷新；都拿不到时按"收件箱已过期"处理，返回空列表。
type MailTm struct {
	baseURL  string
	email    string // 预置账号（可选）
	password string
	client   *http.Client

	tokens sync.Map // address -> bearer token

	mu          sync.Mutex
	sharedToken string
	tokenExpiry time.Time
}

// NewMailTm 创建 mail.tm 适配器
func NewMailTm(cfg *config.ProviderConfig) *MailTm {
	return &MailTm{
		baseURL:  strings.TrimRight(cfg.MailTmBaseURL, "/"),
		email:    cfg.MailTmEmail,
		password: cfg.MailTmPassword,
		client:   newHTTPClient(cfg.RequestTimeout),
	}
}

// Name 返回服务商标识
func (p *MailTm) Name() domain.ProviderName {
	return domain.ProviderMailTm
}

// mailTmDomains /domains 响应（hydra 分页格式）
type mailTmDomains struct {
	Member []struct {
		Domain string `json:"domain"`
	} `json:"hydra:member"`
}

// Generate 注册新账号并换取取件令牌。
// 域名列表接口故障时退回默认域名，不让一次辅助调用失败拖垮生成。
func (p *MailTm) Generate(ctx context.Context, input GenerateInput) (*domain.Mailbox, error) {
	selectedDomain := input.Domain
	if selectedDomain == "" {
		selectedDomain = p.fetchDefaultDomain(ctx)
	}

	prefix := input.Prefix
	if prefix == "" {
		prefix = randomString(12)
	}

	address := fmt.Sprintf("%s@%s", prefix, selectedDomain)
	password := randomString(16)

	body, _ := json.Marshal(map[string]string{
		"address":  address,
		"password": password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/accounts", bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(p.Name(), "build account request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "create account", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, newStatusError(p.Name(), "failed to create account", resp.StatusCode)
	}

	// 换取取件令牌；失败不阻断生成，后续取件会走预置账号刷新
	token, err := p.requestToken(ctx, address, password)
	if err == nil {
		p.tokens.Store(address, token)
	}

	now := time.Now().UTC()
	return &domain.Mailbox{
		Address:       address,
		Domain:        selectedDomain,
		Provider:      p.Name(),
		ProviderToken: token,
		CreatedAt:     now,
		ExpiresAt:     now.Add(mailTmExpiry),
	}, nil
}

// fetchDefaultDomain 查询上游可用域名，失败时退回 "mail.tm"
func (p *MailTm) fetchDefaultDomain(ctx context.Context) string {
	const fallback = "mail.tm"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/domains", nil)
	if err != nil {
		return fallback
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	var domains mailTmDomains
	if err := json.NewDecoder(resp.Body).Decode(&domains); err != nil {
		return fallback
	}
	if len(domains.Member) == 0 || domains.Member[0].Domain == "" {
		return fallback
	}
	return domains.Member[0].Domain
}

// requestToken 用账号凭据换取 Bearer 令牌
func (p *MailTm) requestToken(ctx context.Context, address, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"address":  address,
		"password": password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newStatusError(p.Name(), "failed to obtain token", resp.StatusCode)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", err
	}
	return auth.Token, nil
}

// mailTmMessage /messages 响应中的单封邮件
type mailTmMessage struct {
	ID   string `json:"id"`
	From struct {
		Address string `json:"address"`
	} `json:"from"`
	To []struct {
		Address string `json:"address"`
	} `json:"to"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	HTML        string          `json:"html"`
	CreatedAt   time.Time       `json:"createdAt"`
	Attachments json.RawMessage `json:"attachments"`
}

// FetchMessages 拉取邮箱内全部邮件。没有可用令牌时返回空列表：
// 上游把"无令牌"视为收件箱已过期，而不是错误。
func (p *MailTm) FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error) {
	token := p.resolveToken(ctx, mailbox)
	if token == "" {
		return []domain.Message{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/messages", nil)
	if err != nil {
		return nil, wrapError(p.Name(), "build message list request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "fetch messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to fetch messages", resp.StatusCode)
	}

	items, err := decodeMailTmMessages(resp.Body)
	if err != nil {
		return nil, wrapError(p.Name(), "decode messages", err)
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		to := mailbox.Address
		if len(item.To) > 0 && item.To[0].Address != "" {
			to = item.To[0].Address
		}
		content := item.Text
		if content == "" {
			content = item.HTML
		}
		messages = append(messages, domain.Message{
			MessageID:   item.ID,
			From:        item.From.Address,
			To:          to,
			Subject:     item.Subject,
			Text:        content,
			HTML:        item.HTML,
			ReceivedAt:  item.CreatedAt.UTC(),
			Attachments: item.Attachments,
		})
	}
	return messages, nil
}

// decodeMailTmMessages 同时兼容 hydra 分页对象与裸数组两种响应形态
func decodeMailTmMessages(r io.Reader) ([]mailTmMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	var items []mailTmMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var page struct {
		Member []mailTmMessage `json:"hydra:member"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	return page.Member, nil
}

// resolveToken 按 进程内缓存 -> 邮箱记录 -> 预置账号刷新 的顺序解析令牌
func (p *MailTm) resolveToken(ctx context.Context, mailbox *domain.Mailbox) string {
	if val, ok := p.tokens.Load(mailbox.Address); ok {
		return val.(string)
	}
	if mailbox.ProviderToken != "" {
		p.tokens.Store(mailbox.Address, mailbox.ProviderToken)
		return mailbox.ProviderToken
	}
	return p.sharedAccountToken(ctx)
}

// sharedAccountToken 用预置账号凭据获取（并缓存）共享令牌
func (p *MailTm) sharedAccountToken(ctx context.Context) string {
	if p.email == "" || p.password == "" {
		return ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sharedToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.sharedToken
	}

	token, err := p.requestToken(ctx, p.email, p.password)
	if err != nil {
		return ""
	}
	p.sharedToken = token
	p.tokenExpiry = time.Now().Add(mailTmTokenLifetime)
	return token
}

// IsHealthy 轻量探活：域名接口可达即视为健康
func (p *MailTm) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"/domains", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
