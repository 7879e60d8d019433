package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

// GuerrillaMail 收件箱在上游约 1 小时后回收
const guerrillaExpiry = time.Hour

// GuerrillaMail GuerrillaMail ajax API 适配器。
//
// 上游用 sid_token 绑定会话；令牌随生成响应下发，取件时先查进程内
// 映射，再回退到邮箱记录。列表接口只返回正文摘要（mail_excerpt），
// 完整正文需逐封调用 fetch_email，失败时以摘要兜底，不丢邮件。
type GuerrillaMail struct {
	baseURL string
	client  *http.Client

	tokens sync.Map // address -> sid_token
}

// NewGuerrillaMail 创建 GuerrillaMail 适配器
func NewGuerrillaMail(cfg *config.ProviderConfig) *GuerrillaMail {
	return &GuerrillaMail{
		baseURL: cfg.GuerrillaBaseURL,
		client:  newHTTPClient(cfg.RequestTimeout),
	}
}

// Name 返回服务商标识
func (p *GuerrillaMail) Name() domain.ProviderName {
	return domain.ProviderGuerrillaMail
}

// Generate 向上游申请新地址。前缀可选（email_user 参数），域名由上游分配。
func (p *GuerrillaMail) Generate(ctx context.Context, input GenerateInput) (*domain.Mailbox, error) {
	params := url.Values{}
	params.Set("f", "get_email_address")
	params.Set("lang", "en")
	if input.Prefix != "" {
		params.Set("email_user", input.Prefix)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, wrapError(p.Name(), "build generate request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapError(p.Name(), "generate email", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to generate email", resp.StatusCode)
	}

	var data struct {
		EmailAddr string `json:"email_addr"`
		SidToken  string `json:"sid_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, wrapError(p.Name(), "decode generate response", err)
	}
	if data.EmailAddr == "" {
		return nil, wrapError(p.Name(), "empty address in response", fmt.Errorf("sid_token=%q", data.SidToken))
	}

	_, mailDomain, _ := strings.Cut(data.EmailAddr, "@")
	if data.SidToken != "" {
		p.tokens.Store(data.EmailAddr, data.SidToken)
	}

	now := time.Now().UTC()
	return &domain.Mailbox{
		Address:       data.EmailAddr,
		Domain:        mailDomain,
		Provider:      p.Name(),
		ProviderToken: data.SidToken,
		CreatedAt:     now,
		ExpiresAt:     now.Add(guerrillaExpiry),
	}, nil
}

// guerrillaListItem 列表接口返回的邮件摘要
type guerrillaListItem struct {
	MailID        string `json:"mail_id"`
	MailFrom      string `json:"mail_from"`
	MailSubject   string `json:"mail_subject"`
	MailExcerpt   string `json:"mail_excerpt"`
	MailTimestamp string `json:"mail_timestamp"`
}

// FetchMessages 拉取邮箱内全部邮件
func (p *GuerrillaMail) FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error) {
	params := url.Values{}
	params.Set("f", "get_email_list")
	params.Set("offset", "0")
	if token := p.resolveToken(mailbox); token != "" {
		params.Set("sid_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
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

	var data struct {
		List []guerrillaListItem `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, wrapError(p.Name(), "decode messages", err)
	}

	messages := make([]domain.Message, 0, len(data.List))
	for _, item := range data.List {
		message := domain.Message{
			MessageID:  item.MailID,
			From:       item.MailFrom,
			To:         mailbox.Address,
			Subject:    item.MailSubject,
			Text:       item.MailExcerpt,
			ReceivedAt: parseGuerrillaTimestamp(item.MailTimestamp),
		}

		// 完整正文拉取失败时保留摘要，不丢弃邮件
		if full, err := p.fetchFullMessage(ctx, mailbox, item.MailID); err == nil {
			if full.MailBody != "" {
				message.Text = full.MailBody
			}
			if full.MailBodyHTML != "" {
				message.HTML = full.MailBodyHTML
			} else {
				message.HTML = full.MailBody
			}
			message.Attachments = full.AttList
		}

		messages = append(messages, message)
	}
	return messages, nil
}

// guerrillaFullMessage 单封邮件的完整内容
type guerrillaFullMessage struct {
	MailBody     string          `json:"mail_body"`
	MailBodyHTML string          `json:"mail_body_html"`
	AttList      json.RawMessage `json:"att_list"`
}

// fetchFullMessage 拉取单封邮件的完整正文
func (p *GuerrillaMail) fetchFullMessage(ctx context.Context, mailbox *domain.Mailbox, mailID string) (*guerrillaFullMessage, error) {
	params := url.Values{}
	params.Set("f", "fetch_email")
	params.Set("email_id", mailID)
	if token := p.resolveToken(mailbox); token != "" {
		params.Set("sid_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.Name(), "failed to fetch full message", resp.StatusCode)
	}

	var full guerrillaFullMessage
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		return nil, err
	}
	return &full, nil
}

// resolveToken 按 进程内缓存 -> 邮箱记录 的顺序解析会话令牌
func (p *GuerrillaMail) resolveToken(mailbox *domain.Mailbox) string {
	if val, ok := p.tokens.Load(mailbox.Address); ok {
		return val.(string)
	}
	if mailbox.ProviderToken != "" {
		p.tokens.Store(mailbox.Address, mailbox.ProviderToken)
		return mailbox.ProviderToken
	}
	return ""
}

// IsHealthy 轻量探活：生成接口可达即视为健康
func (p *GuerrillaMail) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"?f=get_email_address", nil)
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

// parseGuerrillaTimestamp 解析上游的 Unix 秒级时间戳
func parseGuerrillaTimestamp(value string) time.Time {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(ts, 0).UTC()
}
