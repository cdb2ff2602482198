package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/middleware"
	"github.com/azhengyongqin/procq/internal/notify"
	"github.com/azhengyongqin/procq/internal/server/dto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 内部系统，与 CORSMiddleware 一致放开跨域
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler WebSocket 事件流 Handler。
// 每个连接挂成 Hub 的一个订阅，客户端通过控制消息增删关注的 job。
type StreamHandler struct {
	hub *notify.Hub
}

// NewStreamHandler 创建 StreamHandler
func NewStreamHandler(hub *notify.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Stream godoc
// @Summary 订阅任务进度事件流
// @Description 升级为 WebSocket。可通过 job_ids 查询参数预订阅，也可发送 {"type":"subscribe","job_ids":[...]} 控制消息
// @Tags Jobs
// @Param job_ids query string false "逗号分隔的任务 ID 列表"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已经写了响应
		logger.Warn().Err(err).Msg("WebSocket 升级失败")
		return
	}

	var initial []string
	if raw := c.Query("job_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" && middleware.ValidateJobID(id) {
				initial = append(initial, id)
			}
		}
	}

	sub := h.hub.Subscribe(initial...)
	log := logger.WithRequestID(middleware.GetRequestID(c))
	log.Info().Strs("job_ids", initial).Msg("WebSocket 订阅建立")

	done := make(chan struct{})
	go h.readLoop(conn, sub, done, log)
	h.writeLoop(conn, sub, done, log)
}

// readLoop 处理客户端的订阅控制消息，连接断开时通知 writeLoop 退出。
func (h *StreamHandler) readLoop(conn *websocket.Conn, sub *notify.Subscription, done chan struct{}, log zerolog.Logger) {
	defer close(done)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("WebSocket 异常断开")
			}
			return
		}

		var msg dto.SubscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Msg("订阅控制消息解析失败")
			continue
		}

		var valid []string
		for _, id := range msg.JobIDs {
			if middleware.ValidateJobID(id) {
				valid = append(valid, id)
			}
		}

		switch msg.Type {
		case "subscribe":
			h.hub.Add(sub, valid...)
		case "unsubscribe":
			h.hub.Remove(sub, valid...)
		default:
			log.Warn().Str("type", msg.Type).Msg("未知的订阅消息类型")
		}
	}
}

// writeLoop 把订阅到的事件推给客户端，定期发 ping 维持连接。
func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub *notify.Subscription, done <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
		log.Info().Msg("WebSocket 订阅关闭")
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(dto.NewEventMessage(ev)); err != nil {
				log.Warn().Err(err).Msg("WebSocket 写入失败")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
