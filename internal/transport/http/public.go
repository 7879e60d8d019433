package httptransport

import (
	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/provider"
)

// 各服务商对外宣传的默认域名。实际分配以生成时上游返回为准，
// 这里仅供前端展示选项。
var advertisedDomains = map[domain.ProviderName][]string{
	domain.ProviderOneSecMail:    {"1secmail.com", "1secmail.org", "1secmail.net"},
	domain.ProviderMailTm:        {"mail.tm"},
	domain.ProviderGuerrillaMail: {"guerrillamail.com", "sharklasers.com"},
	domain.ProviderTempMailLol:   {"tempmail.lol"},
}

// PublicHandler 公开API处理器（无需认证）
type PublicHandler struct {
	manager *provider.Manager
}

// NewPublicHandler 创建公开API处理器
func NewPublicHandler(manager *provider.Manager) *PublicHandler {
	return &PublicHandler{manager: manager}
}

// GetAvailableDomains 获取可用域名列表
//
// GET /v1/public/domains
func (h *PublicHandler) GetAvailableDomains(c *gin.Context) {
	domains := make([]string, 0, 8)
	providers := make([]string, 0, 4)
	for _, p := range h.manager.Providers() {
		providers = append(providers, string(p.Name()))
		domains = append(domains, advertisedDomains[p.Name()]...)
	}

	Success(c, gin.H{
		"domains":   domains,
		"providers": providers,
		"count":     len(domains),
	})
}
