// Package handler 存放 Gin 的 HTTP 处理器。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ask-docs-go/internal/middleware"
	"ask-docs-go/internal/service"
	"ask-docs-go/pkg/log"
)

// QueryHandler 结构体定义了问答相关的处理器。
type QueryHandler struct {
	queryService service.QueryService
	upgrader     websocket.Upgrader
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

// Ask 处理 POST /api/v1/query：返回完整答案的 JSON 响应。
func (h *QueryHandler) Ask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 question 参数"})
		return
	}

	result, err := h.queryService.Answer(c.Request.Context(), userID, req.Question)
	if err != nil {
		h.writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}

// Stream 处理 GET /api/v1/query/stream：升级为 WebSocket 并流式下发答案分块，
// 每个分块包装为 {"chunk":"..."}，结束后发送完成通知。
func (h *QueryHandler) Stream(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	question := c.Query("question")
	if strings.TrimSpace(question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 question 参数"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[QueryHandler] WebSocket 升级失败: %v", err)
		return
	}
	defer ws.Close()

	writer := &chunkWriter{conn: ws}
	if err := h.queryService.StreamAnswer(c.Request.Context(), userID, question, writer); err != nil {
		msg := "查询失败"
		switch {
		case errors.Is(err, service.ErrNoContext):
			msg = "No relevant context found"
		case errors.Is(err, service.ErrRateLimited):
			msg = "请求过于频繁，请稍后重试"
		}
		payload, _ := json.Marshal(gin.H{"type": "error", "message": msg})
		_ = ws.WriteMessage(websocket.TextMessage, payload)
		return
	}

	sendCompletion(ws)
}

// writeQueryError 将服务层错误映射为 HTTP 响应。
func (h *QueryHandler) writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoContext):
		c.JSON(http.StatusNotFound, gin.H{"error": "No relevant context found"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后重试"})
	default:
		log.Errorf("[QueryHandler] 查询服务返回错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
	}
}

// chunkWriter 把每个流式分块包装成 {"chunk":"..."} 再写入 WebSocket。
type chunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	payload, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, payload)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
