package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"flashmail/backend/internal/config"
	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/storage"
)

// MailboxService 封装邮箱目录相关业务操作。
type MailboxService struct {
	store     storage.Store
	cfg       *config.Config
	domainSet domain.DomainSet
}

// NewMailboxService 创建邮箱业务服务。
func NewMailboxService(store storage.Store, cfg *config.Config) *MailboxService {
	return &MailboxService{
		store:     store,
		cfg:       cfg,
		domainSet: domain.NewDomainSet(cfg.Mailbox.AllowedDomains),
	}
}

// Domains 返回允许的域名列表与默认域名。
func (s *MailboxService) Domains() (domains []string, defaultDomain string) {
	return s.cfg.Mailbox.AllowedDomains, s.cfg.Mailbox.DefaultDomain
}

// CreateMailboxInput 定义创建邮箱所需的输入。
type CreateMailboxInput struct {
	Prefix string // 可选：自定义前缀，留空则随机生成
	Domain string // 可选：域名，留空则使用默认域名
}

// Create 创建新的临时邮箱。
//
// 地址冲突由存储层的条件写入原生返回 domain.ErrAddressCollision，
// 不做先查后写。
func (s *MailboxService) Create(ctx context.Context, input CreateMailboxInput) (*domain.Mailbox, error) {
	selectedDomain, err := s.pickDomain(input.Domain)
	if err != nil {
		return nil, err
	}

	prefix, isCustom, err := s.resolvePrefix(input.Prefix)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mailbox := &domain.Mailbox{
		ID:             uuid.NewString(),
		Prefix:         prefix,
		Domain:         selectedDomain,
		Address:        fmt.Sprintf("%s@%s", prefix, selectedDomain),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.Mailbox.TTL),
		IsCustomPrefix: isCustom,
	}

	if err := s.store.CreateMailbox(ctx, mailbox); err != nil {
		return nil, err
	}

	return mailbox, nil
}

// CheckAvailability 检查给定前缀与域名组合的地址是否可用。
// 未指定前缀时视为可用（将随机生成），返回空地址。
func (s *MailboxService) CheckAvailability(ctx context.Context, prefix, domainName string) (available bool, address string, err error) {
	selectedDomain, err := s.pickDomain(domainName)
	if err != nil {
		return false, "", err
	}

	if prefix == "" {
		return true, "", nil
	}
	if err := domain.ValidatePrefix(prefix); err != nil {
		return false, "", err
	}

	address = fmt.Sprintf("%s@%s", strings.ToLower(prefix), selectedDomain)
	exists, err := s.store.AddressExists(ctx, address)
	if err != nil {
		return false, "", err
	}
	return !exists, address, nil
}

// Get 根据 ID 获取邮箱。
func (s *MailboxService) Get(ctx context.Context, id string) (*domain.Mailbox, error) {
	return s.store.GetMailbox(ctx, id)
}

// ResolveAddress 将完整地址解析为邮箱记录。
func (s *MailboxService) ResolveAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	id, err := s.store.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return s.store.GetMailbox(ctx, id)
}

// Delete 级联删除指定邮箱。幂等。
func (s *MailboxService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteMailbox(ctx, id)
}

// AcceptsDomain 判断域名是否在允许列表中。
func (s *MailboxService) AcceptsDomain(domainName string) bool {
	return s.domainSet.Contains(domainName)
}

// pickDomain 挑选合法的邮箱域名。
func (s *MailboxService) pickDomain(requested string) (string, error) {
	if requested == "" {
		return s.cfg.Mailbox.DefaultDomain, nil
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if s.domainSet.Contains(requested) {
		return requested, nil
	}
	return "", domain.ErrInvalidDomain
}

// resolvePrefix 生成或验证邮箱前缀。
func (s *MailboxService) resolvePrefix(prefix string) (string, bool, error) {
	if prefix == "" {
		return s.generateRandomPrefix(), false, nil
	}
	if err := domain.ValidatePrefix(prefix); err != nil {
		return "", false, err
	}
	return strings.ToLower(prefix), true, nil
}

// generateRandomPrefix 生成随机前缀。
func (s *MailboxService) generateRandomPrefix() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:10]
}
