// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"scribo-go/internal/extract"
	"scribo-go/internal/middleware"
	"scribo-go/internal/repository"
	"scribo-go/internal/service"
	"scribo-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// InterviewHandler 负责处理 AI 面谈相关的请求。
type InterviewHandler struct {
	interviewService service.InterviewService
}

// NewInterviewHandler 创建一个新的 InterviewHandler。
func NewInterviewHandler(interviewService service.InterviewService) *InterviewHandler {
	return &InterviewHandler{interviewService: interviewService}
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

// GetSession 返回会话全量状态，不存在时创建并返回带问候语的新会话。
func (h *InterviewHandler) GetSession(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	examID := c.Param("exam_id")

	session, err := h.interviewService.GetOrCreateSession(c.Request.Context(), userID, examID)
	if err != nil {
		log.Errorf("获取会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "会話の取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// sseFragmentWriter 把分块作为原始文本写入 SSE 响应并立即刷出。
type sseFragmentWriter struct {
	c *gin.Context
}

func (w *sseFragmentWriter) WriteFragment(text string) error {
	if _, err := w.c.Writer.WriteString(text); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Chat 处理一次流式面谈回合，以分块文本流响应。
func (h *InterviewHandler) Chat(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	examID := c.Param("exam_id")

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "message は必須です", "data": nil})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	if err := h.interviewService.StreamChat(c.Request.Context(), userID, examID, req.Message, &sseFragmentWriter{c: c}); err != nil {
		// 响应头已发出，只能记日志
		log.Errorf("流式面谈回合失败: %v", err)
	}
}

// wsFragmentWriter 把分块包成 JSON 帧写入 WebSocket 连接。
type wsFragmentWriter struct {
	conn *websocket.Conn
}

func (w *wsFragmentWriter) WriteFragment(text string) error {
	b, err := json.Marshal(map[string]string{"chunk": text})
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// ChatWS 处理 WebSocket 面谈连接：每收到一条消息驱动一个流式回合，
// 回合结束后发送 completion 通知。
func (h *InterviewHandler) ChatWS(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	examID := c.Param("exam_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 面谈连接已建立, 用户: %s, 考试: %s", userID, examID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		if err := h.interviewService.StreamChat(c.Request.Context(), userID, examID, string(message), &wsFragmentWriter{conn: conn}); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
		}

		resp := map[string]interface{}{
			"type":      "completion",
			"status":    "finished",
			"timestamp": time.Now().UnixMilli(),
		}
		b, _ := json.Marshal(resp)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			break
		}
	}
}

// GenerateProposal 根据面谈记录生成论文骨子。
func (h *InterviewHandler) GenerateProposal(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	examID := c.Param("exam_id")

	proposal, err := h.interviewService.GenerateProposal(c.Request.Context(), userID, examID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "面談セッションが見つかりません", "data": nil})
			return
		}
		var extractErr *extract.Error
		if errors.As(err, &extractErr) {
			log.Errorf("骨子解析失败, 原始输出: %s", extractErr.Raw)
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "骨子の生成に失敗しました", "data": nil})
			return
		}
		log.Errorf("骨子生成失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "骨子の生成に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": proposal})
}
