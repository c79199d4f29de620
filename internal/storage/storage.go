package storage

import (
	"context"

	"flashmail/backend/internal/domain"
)

// Store 定义临时邮箱引擎的存储操作。
//
// 所有涉及多个键的写操作（创建邮箱、删除邮箱、写入邮件、删除邮件）
// 必须以原子方式提交，避免并发读取者观察到部分写入的状态。
type Store interface {
	// ========== Directory：邮箱目录 ==========

	// CreateMailbox 原子地写入邮箱记录与地址索引。
	// 地址已被占用时返回 domain.ErrAddressCollision。
	CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	// GetMailbox 按 ID 获取邮箱，不存在或已过期返回 domain.ErrMailboxNotFound。
	GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error)
	// ResolveAddress 将地址解析为邮箱 ID，兼容历史未归一化索引。
	ResolveAddress(ctx context.Context, address string) (string, error)
	// AddressExists 检查地址是否已被占用。
	AddressExists(ctx context.Context, address string) (bool, error)
	// DeleteMailbox 级联删除邮箱、地址索引与全部邮件。幂等。
	DeleteMailbox(ctx context.Context, id string) error

	// ========== Archive：邮件归档 ==========

	// SaveEmail 写入邮件全文与摘要，并将 ID 插入邮箱索引头部（最新在前）。
	SaveEmail(ctx context.Context, email *domain.Email) error
	// ListEmailSummaries 按索引顺序返回邮件摘要，缺失摘要时从全文回退推导。
	ListEmailSummaries(ctx context.Context, mailboxID string) ([]domain.EmailSummary, error)
	// GetEmail 获取单封邮件全文。
	GetEmail(ctx context.Context, mailboxID, emailID string) (*domain.Email, error)
	// DeleteEmail 删除邮件及其摘要，并移除索引中的 ID。幂等。
	DeleteEmail(ctx context.Context, mailboxID, emailID string) error

	// Ping 探测存储连接。
	Ping(ctx context.Context) error
	// Close 释放存储连接。
	Close() error
}
