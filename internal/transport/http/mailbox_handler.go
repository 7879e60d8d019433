package httptransport

import (
	"errors"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/provider"
	"tempbox/backend/internal/storage"
)

// prefix 仅允许小写字母、数字、点、横线，最长 32 字符
var prefixPattern = regexp.MustCompile(`^[a-z0-9.-]{1,32}$`)

// MailboxHandler 邮箱相关接口处理器
type MailboxHandler struct {
	manager *provider.Manager
	log     *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(manager *provider.Manager, log *zap.Logger) *MailboxHandler {
	return &MailboxHandler{
		manager: manager,
		log:     log,
	}
}

// generateRequest 生成邮箱的请求体（全部字段可选）
type generateRequest struct {
	Domain string `json:"domain"` // 期望域名，仅订阅账户可指定
	Prefix string `json:"prefix"` // 期望前缀，服务商不支持时忽略
}

// Generate 生成新的临时邮箱
//
// POST /v1/mailboxes
func (h *MailboxHandler) Generate(c *gin.Context) {
	var req generateRequest
	// 空请求体合法：全部走默认值
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	// 自定义域名是订阅能力，游客与免费档一律拒绝
	if req.Domain != "" && middleware.UserPlan(c) == "" {
		Forbidden(c, MsgCustomDomainRequires)
		return
	}

	if req.Prefix != "" && !prefixPattern.MatchString(req.Prefix) {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.manager.GenerateMailbox(c.Request.Context(), provider.GenerateMailboxInput{
		Domain:    req.Domain,
		Prefix:    req.Prefix,
		OwnerID:   middleware.UserID(c),
		SessionID: middleware.SessionID(c),
	})
	if err != nil {
		if errors.Is(err, provider.ErrNoProviderAvailable) {
			InternalError(c, GetErrorMessage(err))
			return
		}
		h.log.Error("mailbox generation failed", zap.Error(err))
		InternalError(c, MsgMailboxCreateFailed)
		return
	}

	Created(c, gin.H{
		"address":   mailbox.Address,
		"domain":    mailbox.Domain,
		"provider":  mailbox.Provider,
		"sessionId": mailbox.SessionID,
		"createdAt": mailbox.CreatedAt,
		"expiresAt": mailbox.ExpiresAt,
	})
}

// GetMessages 拉取邮箱内全部邮件
//
// GET /v1/mailboxes/messages?address=
func (h *MailboxHandler) GetMessages(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		BadRequest(c, MsgAddressRequired)
		return
	}

	messages, err := h.manager.GetMessages(c.Request.Context(), address)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMailboxNotFound):
			NotFound(c, GetErrorMessage(err))
		case errors.Is(err, provider.ErrProviderUnavailable):
			ServiceUnavailable(c, GetErrorMessage(err))
		default:
			h.log.Error("message fetch failed",
				zap.String("address", address),
				zap.Error(err),
			)
			InternalError(c, MsgMessageListFailed)
		}
		return
	}

	Success(c, gin.H{
		"email":    address,
		"messages": messages,
		"count":    len(messages),
	})
}
