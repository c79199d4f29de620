package domain

import "errors"

// 业务错误定义。使用 errors.Is 判断。
var (
	// ErrInvalidPrefix 邮箱前缀格式无效。
	ErrInvalidPrefix = errors.New("invalid prefix")
	// ErrInvalidDomain 域名不在允许列表中。
	ErrInvalidDomain = errors.New("domain not allowed")
	// ErrAddressCollision 邮箱地址已被占用。
	ErrAddressCollision = errors.New("address already taken")
	// ErrMailboxNotFound 邮箱不存在或已过期。
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrEmailNotFound 邮件不存在或已过期。
	ErrEmailNotFound = errors.New("email not found")
	// ErrParseFailure 邮件内容解析失败。
	ErrParseFailure = errors.New("parse failure")
	// ErrStoreFailure 后端存储不可用或多键操作失败。
	ErrStoreFailure = errors.New("store failure")
)
