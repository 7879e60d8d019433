package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

// 1secmail 收件箱在上游约 10 分钟后回收
const oneSecMailExpiry = 10 * time.Minute

// OneSecMail 1secmail 公开 API 适配器。
// 该服务按 (login, domain) 寻址收件箱，无需令牌。
type OneSecMail struct {
	baseURL string
	client  *http.Client
}

// NewOneSecMail 创建 1secmail 适配器
func NewOneSecMail(cfg *config.ProviderConfig) *OneSecMail {
	return &OneSecMail{
		baseURL: strings.TrimRight(cfg.OneSecMailBaseURL, "?"),
		client:  newHTTPClient(cfg.RequestTimeout),
	}
}

// Name 返回服务商标识
func (p *OneSecMail) Name() domain.ProviderName {
	return domain.ProviderOneSecMail
}

// Generate 生成新邮箱地址。
// 先拉取可用域名列表，调用方未指定时取第一个；前缀缺省为 10 位随机串。
func (p *OneSecMail) Generate(ctx context.Context, input GenerateInput) (*domain.Mailbox, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?action=getDomainList", nil)
	if err != nil {
		return nil, wrapError(p.Name(), "build domain list request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "fetch domains", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to fetch domains", resp.StatusCode)
	}

	var domains []string
	if err := json.NewDecoder(resp.Body).Decode(&domains); err != nil {
		return nil, wrapError(p.Name(), "decode domains", err)
	}

	selectedDomain := input.Domain
	if selectedDomain == "" {
		if len(domains) > 0 {
			selectedDomain = domains[0]
		} else {
			selectedDomain = "1secmail.com"
		}
	}

	prefix := input.Prefix
	if prefix == "" {
		prefix = randomString(10)
	}

	now := time.Now().UTC()
	return &domain.Mailbox{
		Address:   fmt.Sprintf("%s@%s", prefix, selectedDomain),
		Domain:    selectedDomain,
		Provider:  p.Name(),
		CreatedAt: now,
		ExpiresAt: now.Add(oneSecMailExpiry),
	}, nil
}

// oneSecListItem 列表接口返回的邮件摘要
type oneSecListItem struct {
	ID      json.Number `json:"id"`
	From    string      `json:"from"`
	Subject string      `json:"subject"`
	Date    string      `json:"date"`
}

// oneSecDetail 单封邮件的完整内容
type oneSecDetail struct {
	TextBody    string          `json:"textBody"`
	HTMLBody    string          `json:"htmlBody"`
	Attachments json.RawMessage `json:"attachments"`
}

// FetchMessages 拉取邮箱内全部邮件。
// 列表接口只给摘要，正文需要按邮件逐封调用 readMessage；
// 单封正文拉取失败时保留列表条目（正文留空），不丢弃整封邮件。
func (p *OneSecMail) FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error) {
	login, mailDomain, ok := strings.Cut(mailbox.Address, "@")
	if !ok {
		return nil, wrapError(p.Name(), "malformed address", fmt.Errorf("address %q", mailbox.Address))
	}

	listURL := fmt.Sprintf("%s?action=getMessages&login=%s&domain=%s", p.baseURL, login, mailDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, wrapError(p.Name(), "build message list request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "fetch messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to fetch messages", resp.StatusCode)
	}

	var items []oneSecListItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, wrapError(p.Name(), "decode messages", err)
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		message := domain.Message{
			MessageID:  item.ID.String(),
			From:       item.From,
			To:         mailbox.Address,
			Subject:    item.Subject,
			ReceivedAt: parseOneSecDate(item.Date),
		}

		if detail, err := p.readMessage(ctx, login, mailDomain, item.ID.String()); err == nil {
			message.Text = detail.TextBody
			if message.Text == "" {
				message.Text = detail.HTMLBody
			}
			message.HTML = detail.HTMLBody
			message.Attachments = detail.Attachments
		}

		messages = append(messages, message)
	}
	return messages, nil
}

// readMessage 拉取单封邮件的完整内容
func (p *OneSecMail) readMessage(ctx context.Context, login, mailDomain, id string) (*oneSecDetail, error) {
	detailURL := fmt.Sprintf("%s?action=readMessage&login=%s&domain=%s&id=%s", p.baseURL, login, mailDomain, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to read message", resp.StatusCode)
	}

	var detail oneSecDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// IsHealthy 轻量探活：域名列表接口可达即视为健康
func (p *OneSecMail) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"?action=getDomainList", nil)
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

// parseOneSecDate 解析上游日期格式，失败时退回当前时间
func parseOneSecDate(value string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
