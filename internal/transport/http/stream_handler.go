package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/stream"
)

// StreamHandler SSE 实时推送处理器
type StreamHandler struct {
	poller *stream.Poller
	log    *zap.Logger
}

// NewStreamHandler 创建 SSE 推送处理器
func NewStreamHandler(poller *stream.Poller, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		poller: poller,
		log:    log,
	}
}

// Stream 建立 SSE 长连接，按固定周期推送邮件快照。
// 客户端断开由请求 context 感知，轮询随之停止。
//
// GET /v1/mailboxes/stream?address=
func (h *StreamHandler) Stream(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		BadRequest(c, MsgAddressRequired)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		InternalError(c, MsgStreamingUnsupported)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// 反向代理不要缓冲 SSE 流
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	events := h.poller.Subscribe(ctx, address)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			h.log.Warn("failed to encode stream event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			// 写失败说明客户端已断开，等 context 取消关闭通道
			return
		}
		flusher.Flush()
	}
}
