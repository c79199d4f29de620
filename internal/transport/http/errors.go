package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"flashmail/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"

	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxNotFound     = "邮箱不存在"
	MsgMailboxDeleteFailed = "删除邮箱失败"

	MsgEmailNotFound     = "邮件不存在"
	MsgEmailListFailed   = "获取邮件列表失败"
	MsgEmailGetFailed    = "获取邮件详情失败"
	MsgEmailDeleteFailed = "删除邮件失败"

	MsgInternalError = "服务器内部错误，请稍后重试"
)

// 错误消息映射表（业务错误 -> 提示消息）
var errorMessages = map[error]string{
	domain.ErrInvalidPrefix:    "邮箱前缀格式无效",
	domain.ErrInvalidDomain:    "域名不在允许列表中",
	domain.ErrAddressCollision: "该地址已被占用",
	domain.ErrMailboxNotFound:  MsgMailboxNotFound,
	domain.ErrEmailNotFound:    MsgEmailNotFound,
}

// GetErrorMessage 获取业务错误的提示消息
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// respondError 按业务错误类型选择 HTTP 状态响应
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrefix), errors.Is(err, domain.ErrInvalidDomain):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrAddressCollision):
		Conflict(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrMailboxNotFound), errors.Is(err, domain.ErrEmailNotFound):
		NotFound(c, GetErrorMessage(err))
	default:
		InternalError(c, fallback)
	}
}
