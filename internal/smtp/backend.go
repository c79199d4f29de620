package smtp

import (
	"context"
	"errors"
	"io"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：
//   - 收件人域名必须在配置的接收域名列表中，否则在 RCPT 阶段即拒绝，
//     避免为不可投递的邮件浪费传输
//   - 不支持对外发送邮件，不会成为开放中继
//   - 仅第一个通过验证的收件人驱动投递，一次传输绑定一个邮箱
//
// 失败分类：
//   - 域名非法 / 邮箱不存在 / 内容解析失败 → 永久拒绝（5xx），发件方不应重试
//   - 存储故障 → 临时失败（451），发件方可以重试
type Backend struct {
	mailboxes *service.MailboxService
	emails    *service.EmailService
	limiter   *ConnectionLimiter
	metrics   *monitoring.Metrics
	maxBytes  int64
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(
	mailboxes *service.MailboxService,
	emails *service.EmailService,
	limiter *ConnectionLimiter,
	metrics *monitoring.Metrics,
	maxBytes int64,
	log *zap.Logger,
) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		mailboxes: mailboxes,
		emails:    emails,
		limiter:   limiter,
		metrics:   metrics,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// NewSession 创建新的 SMTP 会话。连接数或速率超限时直接拒绝。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

// session 是单个入站连接的状态机。
// 状态推进：Mail（声明发件人）→ Rcpt（逐个校验收件人）→ Data（解析并提交）。
type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string // 已通过域名校验的收件地址，声明顺序
	released    bool
}

// Mail 处理 MAIL 命令。发件人无条件接受。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只做快速拒绝判定：地址畸形或域名不在接收列表中立即永久拒绝；
// 邮箱是否存在推迟到 DATA 阶段解析（邮箱可能在传输过程中过期）。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := domain.NormalizeAddress(to)

	_, recipientDomain, ok := domain.SplitAddress(addr)
	if !ok {
		s.rejected("malformed_address", addr)
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if !s.backend.mailboxes.AcceptsDomain(recipientDomain) {
		s.rejected("domain_not_accepted", addr)
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not accepted by this server",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
//
// 先完整解析报文，再解析收件邮箱，最后一次性提交；
// 解析完成前不产生任何写入。
func (s *session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "no valid recipients",
		}
	}

	// 多读一个字节以区分"恰好达到上限"和"超限"：
	// 截断存储会产生残缺邮件，超限必须整体拒绝
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(rawBytes)) > s.backend.maxBytes {
		s.rejected("message_too_large", s.recipients[0])
		s.backend.log.Warn("rejected oversized message",
			zap.String("from", s.fromAddress), zap.Int64("limit", s.backend.maxBytes))
		return &gosmtp.SMTPError{
			Code:         552,
			EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
			Message:      "message exceeds maximum size",
		}
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		s.rejected("parse_failure", s.recipients[0])
		s.backend.log.Warn("rejected unparsable message",
			zap.String("from", s.fromAddress), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "message content could not be parsed",
		}
	}

	// 协议绑定一封邮件到一个邮箱：仅第一个收件人驱动投递
	recipient := s.recipients[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mailbox, err := s.backend.mailboxes.ResolveAddress(ctx, recipient)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			s.rejected("mailbox_not_found", recipient)
			s.backend.log.Info("rejected mail for unknown mailbox",
				zap.String("recipient", recipient))
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient mailbox not found",
			}
		}
		return s.transientFailure(err)
	}

	from := parsed.From
	if from == "" {
		from = s.fromAddress
	}
	to := parsed.To
	if to == "" {
		to = recipient
	}

	email, err := s.backend.emails.Create(ctx, service.CreateEmailInput{
		MailboxID:   mailbox.ID,
		From:        from,
		To:          to,
		Subject:     parsed.Subject,
		Text:        parsed.Text,
		HTML:        parsed.HTML,
		Date:        parsed.Date,
		Attachments: parsed.Attachments,
	})
	if err != nil {
		return s.transientFailure(err)
	}

	if s.backend.metrics != nil {
		s.backend.metrics.EmailsReceived.Inc()
	}
	s.backend.log.Info("email received",
		zap.String("mailboxID", mailbox.ID),
		zap.String("emailID", email.ID),
		zap.String("recipient", recipient),
		zap.String("subject", email.Subject),
	)

	return nil
}

// transientFailure 将存储故障映射为可重试的 451 应答。
func (s *session) transientFailure(err error) error {
	s.backend.log.Error("store failure during delivery", zap.Error(err))
	if s.backend.metrics != nil {
		s.backend.metrics.SMTPRejections.WithLabelValues("store_failure").Inc()
	}
	return &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary storage failure, try again later",
	}
}

func (s *session) rejected(reason, addr string) {
	if s.backend.metrics != nil {
		s.backend.metrics.SMTPRejections.WithLabelValues(reason).Inc()
	}
	s.backend.log.Debug("recipient rejected",
		zap.String("reason", reason), zap.String("address", addr))
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，释放连接配额。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}
