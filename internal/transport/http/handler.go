package httptransport

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	emails    *service.EmailService
	metrics   *monitoring.Metrics // 可选
}

// NewHandler 创建 HTTP 处理器
func NewHandler(mailboxes *service.MailboxService, emails *service.EmailService, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		mailboxes: mailboxes,
		emails:    emails,
		metrics:   metrics,
	}
}

// GetDomains 获取可用域名列表
func (h *Handler) GetDomains(c *gin.Context) {
	domains, defaultDomain := h.mailboxes.Domains()

	Success(c, gin.H{
		"domains":       domains,
		"defaultDomain": defaultDomain,
	})
}

// mailboxRequest 创建邮箱 / 检查可用性的请求体
type mailboxRequest struct {
	Prefix string `json:"prefix"`
	Domain string `json:"domain"`
}

// CheckAvailability 检查自定义前缀是否可用
func (h *Handler) CheckAvailability(c *gin.Context) {
	var req mailboxRequest
	// 空请求体等价于全部使用默认值
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// 未指定前缀时由服务端随机生成，总是可用
	if req.Prefix == "" {
		Success(c, gin.H{
			"available": true,
			"address":   nil,
		})
		return
	}

	available, address, err := h.mailboxes.CheckAvailability(c.Request.Context(), req.Prefix, req.Domain)
	if err != nil {
		respondError(c, err, MsgInternalError)
		return
	}

	Success(c, gin.H{
		"available": available,
		"address":   address,
	})
}

// CreateMailbox 创建邮箱
func (h *Handler) CreateMailbox(c *gin.Context) {
	var req mailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.mailboxes.Create(c.Request.Context(), service.CreateMailboxInput{
		Prefix: req.Prefix,
		Domain: req.Domain,
	})
	if err != nil {
		respondError(c, err, MsgMailboxCreateFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.MailboxesCreated.Inc()
	}
	Created(c, mailbox)
}

// GetMailbox 获取邮箱详情
func (h *Handler) GetMailbox(c *gin.Context) {
	mailbox, err := h.mailboxes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, MsgInternalError)
		return
	}

	Success(c, mailbox)
}

// DeleteMailbox 删除邮箱及其全部邮件。删除不存在的邮箱视为成功。
func (h *Handler) DeleteMailbox(c *gin.Context) {
	if err := h.mailboxes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, MsgMailboxDeleteFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.MailboxesDeleted.Inc()
	}
	Success(c, gin.H{"deleted": true})
}

// ListEmails 获取邮箱的邮件摘要列表（最新的在前）
func (h *Handler) ListEmails(c *gin.Context) {
	mailboxID := c.Param("id")

	// 邮箱已过期或不存在时返回 404，而不是空列表
	if _, err := h.mailboxes.Get(c.Request.Context(), mailboxID); err != nil {
		respondError(c, err, MsgInternalError)
		return
	}

	summaries, err := h.emails.ListSummaries(c.Request.Context(), mailboxID)
	if err != nil {
		respondError(c, err, MsgEmailListFailed)
		return
	}

	Success(c, gin.H{
		"emails": summaries,
		"count":  len(summaries),
	})
}

// GetEmail 获取邮件详情（含正文与附件）
func (h *Handler) GetEmail(c *gin.Context) {
	email, err := h.emails.Get(c.Request.Context(), c.Param("mailboxId"), c.Param("emailId"))
	if err != nil {
		respondError(c, err, MsgEmailGetFailed)
		return
	}

	Success(c, email)
}

// DeleteEmail 删除单封邮件。删除不存在的邮件视为成功。
func (h *Handler) DeleteEmail(c *gin.Context) {
	if err := h.emails.Delete(c.Request.Context(), c.Param("mailboxId"), c.Param("emailId")); err != nil {
		respondError(c, err, MsgEmailDeleteFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.EmailsDeleted.Inc()
	}
	Success(c, gin.H{"deleted": true})
}
