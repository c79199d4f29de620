package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gosmtp "github.com/emersion/go-smtp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashmail/backend/internal/config"
	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/service"
	redisstore "flashmail/backend/internal/storage/redis"
)

// captureNotifier 记录邮件提交事件
type captureNotifier struct {
	emails []*domain.Email
}

func (n *captureNotifier) NotifyNewEmail(mailboxID string, email *domain.Email) {
	n.emails = append(n.emails, email)
}

type testEnv struct {
	backend   *Backend
	mailboxes *service.MailboxService
	emails    *service.EmailService
	notifier  *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"example.com"},
			DefaultDomain:  "example.com",
			TTL:            time.Hour,
		},
	}

	store := redisstore.NewStore(rdb, cfg.Mailbox.TTL, nil)
	mailboxes := service.NewMailboxService(store, cfg)
	emails := service.NewEmailService(store)
	notifier := &captureNotifier{}
	emails.SetNotifier(notifier)

	return &testEnv{
		backend:   NewBackend(mailboxes, emails, nil, nil, 10*1024*1024, nil),
		mailboxes: mailboxes,
		emails:    emails,
		notifier:  notifier,
	}
}

func smtpCode(t *testing.T, err error) int {
	t.Helper()
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	return smtpErr.Code
}

func rawMessage(subject, body string) string {
	return "From: sender@example.org\r\n" +
		"To: tester@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n"
}

func TestSession_Rcpt(t *testing.T) {
	env := newTestEnv(t)

	t.Run("malformed address", func(t *testing.T) {
		sess := &session{backend: env.backend}
		err := sess.Rcpt("not-an-address", nil)
		assert.Equal(t, 501, smtpCode(t, err))
	})

	t.Run("domain not accepted", func(t *testing.T) {
		sess := &session{backend: env.backend}
		err := sess.Rcpt("someone@other.com", nil)
		assert.Equal(t, 550, smtpCode(t, err))
	})

	t.Run("accepted domain passes without mailbox check", func(t *testing.T) {
		// 邮箱存在性推迟到 DATA 阶段判定
		sess := &session{backend: env.backend}
		assert.NoError(t, sess.Rcpt("ghost@example.com", nil))
		assert.Equal(t, []string{"ghost@example.com"}, sess.recipients)
	})

	t.Run("address normalized", func(t *testing.T) {
		sess := &session{backend: env.backend}
		require.NoError(t, sess.Rcpt("<Someone@Example.COM>", nil))
		assert.Equal(t, []string{"someone@example.com"}, sess.recipients)
	})
}

func TestSession_DataNoRecipients(t *testing.T) {
	env := newTestEnv(t)

	sess := &session{backend: env.backend}
	err := sess.Data(strings.NewReader(rawMessage("s", "b")))
	assert.Equal(t, 503, smtpCode(t, err))
}

func TestSession_DataMailboxNotFound(t *testing.T) {
	env := newTestEnv(t)

	sess := &session{backend: env.backend}
	require.NoError(t, sess.Rcpt("ghost@example.com", nil))

	err := sess.Data(strings.NewReader(rawMessage("s", "b")))
	assert.Equal(t, 550, smtpCode(t, err))
	assert.Empty(t, env.notifier.emails)
}

func TestSession_DataParseFailure(t *testing.T) {
	env := newTestEnv(t)

	sess := &session{backend: env.backend}
	require.NoError(t, sess.Rcpt("ghost@example.com", nil))

	err := sess.Data(strings.NewReader(""))
	assert.Equal(t, 550, smtpCode(t, err))
}

func TestSession_Delivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mailbox, err := env.mailboxes.Create(ctx, service.CreateMailboxInput{Prefix: "tester"})
	require.NoError(t, err)
	require.Equal(t, "tester@example.com", mailbox.Address)

	sess := &session{backend: env.backend}
	require.NoError(t, sess.Mail("envelope@example.org", nil))
	require.NoError(t, sess.Rcpt("tester@example.com", nil))
	require.NoError(t, sess.Data(strings.NewReader(rawMessage("welcome", "first message"))))

	// 邮件已归档
	summaries, err := env.emails.ListSummaries(ctx, mailbox.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "welcome", summaries[0].Subject)
	assert.Equal(t, "sender@example.org", summaries[0].From)

	// 提交事件已触发
	require.Len(t, env.notifier.emails, 1)
	assert.Contains(t, env.notifier.emails[0].Text, "first message")
}

func TestSession_DeliveryUsesFirstRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.mailboxes.Create(ctx, service.CreateMailboxInput{Prefix: "first"})
	require.NoError(t, err)
	second, err := env.mailboxes.Create(ctx, service.CreateMailboxInput{Prefix: "second"})
	require.NoError(t, err)

	sess := &session{backend: env.backend}
	require.NoError(t, sess.Rcpt("first@example.com", nil))
	require.NoError(t, sess.Rcpt("second@example.com", nil))
	require.NoError(t, sess.Data(strings.NewReader(rawMessage("multi", "body"))))

	firstList, err := env.emails.ListSummaries(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, firstList, 1)

	secondList, err := env.emails.ListSummaries(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, secondList)
}

func TestSession_EnvelopeFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mailbox, err := env.mailboxes.Create(ctx, service.CreateMailboxInput{Prefix: "tester"})
	require.NoError(t, err)

	// 报文没有 From/To 头时回退到信封地址
	raw := "Subject: headless\r\n\r\nbody\r\n"
	sess := &session{backend: env.backend}
	require.NoError(t, sess.Mail("envelope@example.org", nil))
	require.NoError(t, sess.Rcpt("tester@example.com", nil))
	require.NoError(t, sess.Data(strings.NewReader(raw)))

	email, err := env.emails.Get(ctx, mailbox.ID, env.notifier.emails[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "envelope@example.org", email.From)
	assert.Equal(t, "tester@example.com", email.To)
}

func TestSession_DataMessageTooLarge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.backend.maxBytes = 1000

	mailbox, err := env.mailboxes.Create(ctx, service.CreateMailboxInput{Prefix: "tester"})
	require.NoError(t, err)

	t.Run("oversized message rejected, nothing stored", func(t *testing.T) {
		raw := rawMessage("big", strings.Repeat("x", 2000))
		sess := &session{backend: env.backend}
		require.NoError(t, sess.Rcpt("tester@example.com", nil))

		err := sess.Data(strings.NewReader(raw))
		assert.Equal(t, 552, smtpCode(t, err))

		summaries, err := env.emails.ListSummaries(ctx, mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, summaries)
		assert.Empty(t, env.notifier.emails)
	})

	t.Run("message at limit accepted in full", func(t *testing.T) {
		body := strings.Repeat("y", 500)
		raw := rawMessage("exact", body)
		env.backend.maxBytes = int64(len(raw))

		sess := &session{backend: env.backend}
		require.NoError(t, sess.Rcpt("tester@example.com", nil))
		require.NoError(t, sess.Data(strings.NewReader(raw)))

		require.Len(t, env.notifier.emails, 1)
		assert.Contains(t, env.notifier.emails[0].Text, body)
	})
}

func TestBackend_ConnectionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.backend.limiter = NewConnectionLimiter(1, 100)

	first, err := env.backend.NewSession(nil)
	require.NoError(t, err)

	_, err = env.backend.NewSession(nil)
	assert.Equal(t, 421, smtpCode(t, err))

	// 释放后可再次接入
	require.NoError(t, first.Logout())
	_, err = env.backend.NewSession(nil)
	assert.NoError(t, err)
}

func TestConnectionLimiter(t *testing.T) {
	limiter := NewConnectionLimiter(2, 100)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.False(t, limiter.Acquire())
	assert.Equal(t, 2, limiter.Current())

	limiter.Release()
	assert.True(t, limiter.Acquire())
}

func TestSession_TransientStoreFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"example.com"},
			DefaultDomain:  "example.com",
			TTL:            time.Hour,
		},
	}
	store := redisstore.NewStore(rdb, cfg.Mailbox.TTL, nil)
	mailboxes := service.NewMailboxService(store, cfg)
	emails := service.NewEmailService(store)
	backend := NewBackend(mailboxes, emails, nil, nil, 10*1024*1024, nil)

	_, err := mailboxes.Create(context.Background(), service.CreateMailboxInput{Prefix: "tester"})
	require.NoError(t, err)

	// 存储宕机模拟：连接关闭后投递应返回可重试应答
	mr.Close()

	sess := &session{backend: backend}
	require.NoError(t, sess.Rcpt("tester@example.com", nil))

	err = sess.Data(strings.NewReader(rawMessage("s", "b")))
	require.Error(t, err)
	assert.Equal(t, 451, smtpCode(t, err))
}
