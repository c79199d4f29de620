package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flashmail/backend/internal/domain"
)

// captureNotifier 记录收到的提交事件
type captureNotifier struct {
	mailboxIDs []string
	emails     []*domain.Email
}

func (n *captureNotifier) NotifyNewEmail(mailboxID string, email *domain.Email) {
	n.mailboxIDs = append(n.mailboxIDs, mailboxID)
	n.emails = append(n.emails, email)
}

func TestEmailService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("saved and notified", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveEmail", ctx, mock.AnythingOfType("*domain.Email")).Return(nil)

		notifier := &captureNotifier{}
		svc := NewEmailService(store)
		svc.SetNotifier(notifier)

		email, err := svc.Create(ctx, CreateEmailInput{
			MailboxID: "mb-1",
			From:      "sender@example.org",
			To:        "tester@example.com",
			Subject:   "hello",
			Text:      "body",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, email.ID)
		assert.Equal(t, "mb-1", email.MailboxID)
		assert.False(t, email.ReceivedAt.IsZero())
		assert.NotNil(t, email.Attachments)

		require.Len(t, notifier.emails, 1)
		assert.Equal(t, "mb-1", notifier.mailboxIDs[0])
		assert.Equal(t, email.ID, notifier.emails[0].ID)
		store.AssertExpectations(t)
	})

	t.Run("zero date defaults to receive time", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveEmail", ctx, mock.AnythingOfType("*domain.Email")).Return(nil)

		svc := NewEmailService(store)
		email, err := svc.Create(ctx, CreateEmailInput{MailboxID: "mb-1"})

		require.NoError(t, err)
		assert.Equal(t, email.ReceivedAt, email.Date)
	})

	t.Run("declared date preserved", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveEmail", ctx, mock.AnythingOfType("*domain.Email")).Return(nil)

		declared := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		svc := NewEmailService(store)
		email, err := svc.Create(ctx, CreateEmailInput{MailboxID: "mb-1", Date: declared})

		require.NoError(t, err)
		assert.Equal(t, declared, email.Date)
	})

	t.Run("store failure skips notification", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveEmail", ctx, mock.AnythingOfType("*domain.Email")).
			Return(domain.ErrMailboxNotFound)

		notifier := &captureNotifier{}
		svc := NewEmailService(store)
		svc.SetNotifier(notifier)

		_, err := svc.Create(ctx, CreateEmailInput{MailboxID: "ghost"})
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
		assert.Empty(t, notifier.emails)
	})

	t.Run("no notifier configured", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveEmail", ctx, mock.AnythingOfType("*domain.Email")).Return(nil)

		svc := NewEmailService(store)
		_, err := svc.Create(ctx, CreateEmailInput{MailboxID: "mb-1"})
		assert.NoError(t, err)
	})
}

func TestEmailService_ListSummaries(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ListEmailSummaries", ctx, "mb-1").Return([]domain.EmailSummary{
		{ID: "em-2", Subject: "second"},
		{ID: "em-1", Subject: "first"},
	}, nil)

	svc := NewEmailService(store)
	summaries, err := svc.ListSummaries(ctx, "mb-1")

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "em-2", summaries[0].ID)
}

func TestEmailService_Delete(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("DeleteEmail", ctx, "mb-1", "em-1").Return(nil)

	svc := NewEmailService(store)
	assert.NoError(t, svc.Delete(ctx, "mb-1", "em-1"))
	store.AssertExpectations(t)
}
