package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"flashmail/backend/internal/domain"
)

// MockStore 模拟存储接口
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	args := m.Called(ctx, mailbox)
	return args.Error(0)
}

func (m *MockStore) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Mailbox), args.Error(1)
}

func (m *MockStore) ResolveAddress(ctx context.Context, address string) (string, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

func (m *MockStore) AddressExists(ctx context.Context, address string) (bool, error) {
	args := m.Called(ctx, address)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteMailbox(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) SaveEmail(ctx context.Context, email *domain.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockStore) ListEmailSummaries(ctx context.Context, mailboxID string) ([]domain.EmailSummary, error) {
	args := m.Called(ctx, mailboxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EmailSummary), args.Error(1)
}

func (m *MockStore) GetEmail(ctx context.Context, mailboxID, emailID string) (*domain.Email, error) {
	args := m.Called(ctx, mailboxID, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Email), args.Error(1)
}

func (m *MockStore) DeleteEmail(ctx context.Context, mailboxID, emailID string) error {
	args := m.Called(ctx, mailboxID, emailID)
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
