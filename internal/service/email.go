package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/storage"
)

// Notifier 在邮件成功落库后接收提交事件。
type Notifier interface {
	NotifyNewEmail(mailboxID string, email *domain.Email)
}

// EmailService 封装邮件归档逻辑。
type EmailService struct {
	store    storage.Store
	notifier Notifier // 可选
}

// NewEmailService 创建邮件业务服务。
func NewEmailService(store storage.Store) *EmailService {
	return &EmailService{store: store}
}

// SetNotifier 设置提交事件的消费者（避免循环依赖）。
func (s *EmailService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// CreateEmailInput 定义归档一封邮件的输入。
type CreateEmailInput struct {
	MailboxID   string
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Date        time.Time // 发件方声明的时间，可为零值
	Attachments []*domain.Attachment
}

// Create 归档一封新邮件并触发提交事件。
func (s *EmailService) Create(ctx context.Context, input CreateEmailInput) (*domain.Email, error) {
	now := time.Now().UTC()
	if input.Date.IsZero() {
		input.Date = now
	}

	email := &domain.Email{
		ID:          uuid.NewString(),
		MailboxID:   input.MailboxID,
		From:        input.From,
		To:          input.To,
		Subject:     input.Subject,
		Text:        input.Text,
		HTML:        input.HTML,
		Attachments: input.Attachments,
		Date:        input.Date,
		ReceivedAt:  now,
	}
	if email.Attachments == nil {
		email.Attachments = []*domain.Attachment{}
	}

	if err := s.store.SaveEmail(ctx, email); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyNewEmail(email.MailboxID, email)
	}

	return email, nil
}

// ListSummaries 列出指定邮箱下的邮件摘要，最新在前。
func (s *EmailService) ListSummaries(ctx context.Context, mailboxID string) ([]domain.EmailSummary, error) {
	return s.store.ListEmailSummaries(ctx, mailboxID)
}

// Get 获取单封邮件详情。
func (s *EmailService) Get(ctx context.Context, mailboxID, emailID string) (*domain.Email, error) {
	return s.store.GetEmail(ctx, mailboxID, emailID)
}

// Delete 删除指定邮件。幂等。
func (s *EmailService) Delete(ctx context.Context, mailboxID, emailID string) error {
	return s.store.DeleteEmail(ctx, mailboxID, emailID)
}
