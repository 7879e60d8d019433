package httptransport

import (
	"errors"

	"tempbox/backend/internal/provider"
	"tempbox/backend/internal/storage"
)

// 业务错误到中文消息的映射。
// 错误通常经过 fmt.Errorf("%w") 包装，匹配用 errors.Is 而非等值比较。
var errorMessages = []struct {
	err error
	msg string
}{
	{storage.ErrMailboxNotFound, "邮箱不存在"},
	{provider.ErrNoProviderAvailable, "暂无可用的邮箱服务商，请稍后重试"},
	{provider.ErrProviderUnavailable, "该邮箱的服务商已下线"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, entry := range errorMessages {
		if errors.Is(err, entry.err) {
			return entry.msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest  = "请求参数格式错误"
	MsgAddressRequired = "缺少 address 参数"

	// 邮箱相关
	MsgMailboxCreateFailed  = "创建邮箱失败"
	MsgMailboxNotFound      = "邮箱不存在"
	MsgCustomDomainRequires = "自定义域名需要订阅账户"

	// 邮件相关
	MsgMessageListFailed = "获取邮件列表失败"

	// 推送相关
	MsgStreamingUnsupported = "当前连接不支持流式推送"
)
