package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempbox/backend/internal/stream"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
)

// WSHandler WebSocket 实时推送处理器。
// 与 SSE 共用同一个轮询器，事件 JSON 结构一致，便于前端按能力择一接入。
type WSHandler struct {
	poller   *stream.Poller
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWSHandler 创建 WebSocket 推送处理器
func NewWSHandler(poller *stream.Poller, allowedOrigins []string, log *zap.Logger) *WSHandler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &WSHandler{
		poller: poller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		log: log,
	}
}

// Serve 升级连接并推送邮件快照。
// 客户端断开（读失败）立即取消轮询，不留悬挂 goroutine。
//
// GET /v1/ws?address=
func (h *WSHandler) Serve(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		BadRequest(c, MsgAddressRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 读循环只为感知断开与响应 ping/pong
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.poller.Subscribe(ctx, address)
	for event := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	// 通道关闭说明轮询结束，礼貌地下发关闭帧
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
