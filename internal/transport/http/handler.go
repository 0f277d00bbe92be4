package httptransport

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/ingest"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// Handler 聚合收件箱 API 的处理逻辑。
type Handler struct {
	messages *service.MessageService
	log      *zap.Logger
}

// NewHandler 创建 API 处理器。
func NewHandler(messages *service.MessageService, log *zap.Logger) *Handler {
	return &Handler{messages: messages, log: log}
}

// ========== 请求/响应结构体 ==========

type simulateEmailRequest struct {
	ToEmail   string `json:"toEmail"`   // 收件地址（必填）
	FromEmail string `json:"fromEmail"` // 发件地址
	Subject   string `json:"subject"`   // 主题
	Body      string `json:"body"`      // 正文
}

type simulateEmailResponse struct {
	Success bool  `json:"success"`
	EmailID int64 `json:"emailId"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Stored  bool   `json:"stored"`
	Status  string `json:"status"`
	Shape   string `json:"shape,omitempty"`
	EmailID int64  `json:"emailId,omitempty"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type cleanupRequest struct {
	Hours int `json:"hours"` // 保留窗口（小时），非正值使用默认 24
}

type cleanupResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
	Hours   int  `json:"hours"`
}

// ========== 处理函数 ==========

// ListEmails 按收件地址查询邮件
// GET /api/emails/:address
func (h *Handler) ListEmails(c *gin.Context) {
	address := c.Param("address")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages, err := h.messages.ListByRecipient(address, limit)
	if err != nil {
		h.log.Error("failed to list messages", zap.String("address", address), zap.Error(err))
		InternalError(c, "failed to list emails")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// GetEmail 获取单封邮件
// GET /api/email/:id
func (h *Handler) GetEmail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid email id")
		return
	}

	msg, err := h.messages.Get(id)
	if errors.Is(err, storage.ErrMessageNotFound) {
		NotFound(c, "email not found")
		return
	}
	if err != nil {
		h.log.Error("failed to get message", zap.Int64("id", id), zap.Error(err))
		InternalError(c, "failed to get email")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// SimulateEmail 模拟一封入站邮件
// POST /api/simulate-email
func (h *Handler) SimulateEmail(c *gin.Context) {
	var req simulateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	msg, err := h.messages.Simulate(service.SimulateInput{
		ToEmail:   req.ToEmail,
		FromEmail: req.FromEmail,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if errors.Is(err, service.ErrRecipientRequired) {
		BadRequest(c, "toEmail is required")
		return
	}
	if err != nil {
		h.log.Error("failed to simulate email", zap.Error(err))
		InternalError(c, "failed to store email")
		return
	}

	c.JSON(http.StatusOK, simulateEmailResponse{Success: true, EmailID: msg.ID})
}

// ReceiveWebhook 接收邮件服务商的入站 webhook
// POST /api/webhook/email
//
// 无论识别与解析结果如何都返回 200：服务商对非 2xx 响应会反复重投，
// 而对已经无法解析的载荷重投没有意义。超过传输层体积上限的请求
// 由 BodySizeLimit 中间件在进入此处之前以 413 拒绝。
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// 读失败同样确认，避免重投循环
		c.JSON(http.StatusOK, webhookResponse{Success: true, Stored: false, Status: "read_failed"})
		return
	}

	result, err := h.messages.Ingest(body, c.ContentType())
	if err != nil {
		h.log.Error("webhook ingest failed at store layer", zap.Error(err))
		InternalError(c, "failed to store email")
		return
	}

	resp := webhookResponse{
		Success: true,
		Stored:  result.Status == ingest.StatusRecognized,
		Status:  result.Status.String(),
		Shape:   string(result.Shape),
	}
	if result.Message != nil {
		resp.EmailID = result.Message.ID
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteEmail 删除单封邮件
// DELETE /api/email/:id
func (h *Handler) DeleteEmail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid email id")
		return
	}

	err = h.messages.Delete(id)
	if errors.Is(err, storage.ErrMessageNotFound) {
		NotFound(c, "email not found")
		return
	}
	if err != nil {
		h.log.Error("failed to delete message", zap.Int64("id", id), zap.Error(err))
		InternalError(c, "failed to delete email")
		return
	}
	c.JSON(http.StatusOK, deleteResponse{Success: true})
}

// Cleanup 清理过期邮件
// POST /api/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	req := cleanupRequest{Hours: 24}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body")
			return
		}
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	removed, err := h.messages.Cleanup(time.Duration(req.Hours) * time.Hour)
	if err != nil {
		h.log.Error("cleanup failed", zap.Error(err))
		InternalError(c, "cleanup failed")
		return
	}
	c.JSON(http.StatusOK, cleanupResponse{Success: true, Removed: removed, Hours: req.Hours})
}

// Stats 返回存储统计
// GET /api/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.messages.Stats()
	if err != nil {
		h.log.Error("failed to collect stats", zap.Error(err))
		InternalError(c, "failed to collect stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health 存活探针，附带当前统计快照
// GET /health
func (h *Handler) Health(c *gin.Context) {
	stats, err := h.messages.Stats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"stats":  stats,
	})
}
