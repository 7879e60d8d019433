package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

const (
	// tempmail.lol 免费档收件箱 1 小时回收
	tempMailFreeExpiry = time.Hour
	// 携带 API Key 时收件箱保留 10 小时
	tempMailPaidExpiry = 10 * time.Hour
)

// TempMailLol tempmail.lol v2 API 适配器。
//
// 每个收件箱由创建时下发的 token 寻址。令牌先查进程内映射，再回退
// 到邮箱记录（持久存储，保证进程重启后仍可取件）；都没有时按
// "收件箱不存在或已过期"处理，返回空列表而不是报错。
type TempMailLol struct {
	baseURL string
	apiKey  string
	client  *http.Client

	tokens sync.Map // address -> inbox token
}

// NewTempMailLol 创建 tempmail.lol 适配器
func NewTempMailLol(cfg *config.ProviderConfig) *TempMailLol {
	return &TempMailLol{
		baseURL: strings.TrimRight(cfg.TempMailBaseURL, "/"),
		apiKey:  cfg.TempMailAPIKey,
		client:  newHTTPClient(cfg.RequestTimeout),
	}
}

// Name 返回服务商标识
func (p *TempMailLol) Name() domain.ProviderName {
	return domain.ProviderTempMailLol
}

// Generate 创建新收件箱。有效期取决于是否配置 API Key（订阅档位）。
func (p *TempMailLol) Generate(ctx context.Context, input GenerateInput) (*domain.Mailbox, error) {
	payload := map[string]string{}
	if input.Domain != "" {
		payload["domain"] = input.Domain
	}
	if input.Prefix != "" {
		payload["prefix"] = input.Prefix
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/inbox/create", bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(p.Name(), "build create request", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "create inbox", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, newStatusError(p.Name(), "failed to create inbox", resp.StatusCode)
	}

	var inbox struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&inbox); err != nil {
		return nil, wrapError(p.Name(), "decode create response", err)
	}
	if inbox.Address == "" || inbox.Token == "" {
		return nil, wrapError(p.Name(), "incomplete create response", fmt.Errorf("address=%q", inbox.Address))
	}

	p.tokens.Store(inbox.Address, inbox.Token)

	expiry := tempMailFreeExpiry
	if p.apiKey != "" {
		expiry = tempMailPaidExpiry
	}

	_, mailDomain, _ := strings.Cut(inbox.Address, "@")
	now := time.Now().UTC()
	return &domain.Mailbox{
		Address:       inbox.Address,
		Domain:        mailDomain,
		Provider:      p.Name(),
		ProviderToken: inbox.Token,
		CreatedAt:     now,
		ExpiresAt:     now.Add(expiry),
	}, nil
}

// tempMailEmail 上游返回的单封邮件
type tempMailEmail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html"`
	Date    int64  `json:"date"`
}

// FetchMessages 拉取收件箱内全部邮件。
// 404 或 expired 标记表示收件箱已被上游回收：丢弃令牌并返回空列表。
func (p *TempMailLol) FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error) {
	token := p.resolveToken(mailbox)
	if token == "" {
		return []domain.Message{}, nil
	}

	fetchURL := fmt.Sprintf("%s/v2/inbox?token=%s", p.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, wrapError(p.Name(), "build fetch request", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "fetch messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		p.tokens.Delete(mailbox.Address)
		return []domain.Message{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to fetch messages", resp.StatusCode)
	}

	var data struct {
		Expired bool            `json:"expired"`
		Emails  []tempMailEmail `json:"emails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, wrapError(p.Name(), "decode messages", err)
	}
	if data.Expired {
		p.tokens.Delete(mailbox.Address)
		return []domain.Message{}, nil
	}

	messages := make([]domain.Message, 0, len(data.Emails))
	for i, email := range data.Emails {
		to := email.To
		if to == "" {
			to = mailbox.Address
		}
		messages = append(messages, domain.Message{
			// 上游不下发邮件编号，用时间戳+序号合成稳定去重键
			MessageID:  fmt.Sprintf("tempmail-%d-%d", email.Date, i),
			From:       email.From,
			To:         to,
			Subject:    email.Subject,
			Text:       email.Body,
			HTML:       email.HTML,
			ReceivedAt: time.Unix(email.Date, 0).UTC(),
		})
	}
	return messages, nil
}

// resolveToken 按 进程内缓存 -> 邮箱记录 的顺序解析收件箱令牌
func (p *TempMailLol) resolveToken(mailbox *domain.Mailbox) string {
	if val, ok := p.tokens.Load(mailbox.Address); ok {
		return val.(string)
	}
	if mailbox.ProviderToken != "" {
		p.tokens.Store(mailbox.Address, mailbox.ProviderToken)
		return mailbox.ProviderToken
	}
	return ""
}

// setHeaders 设置公共请求头（可选的 Bearer API Key）
func (p *TempMailLol) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// IsHealthy 探活：尝试创建收件箱。限流响应 (429) 也视为健康，
// 说明服务本身存活，只是配额受限。
func (p *TempMailLol) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/inbox/create", bytes.NewReader([]byte("{}")))
	if err != nil {
		return false
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400 || resp.StatusCode == http.StatusTooManyRequests
}
