package smtp

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
)

// 单封邮件的大小上限。
const maxMessageBytes = 10 << 20

// 入站处理结果，对应指标 label。
const (
	outcomeAccepted      = "accepted"
	outcomeDroppedParse  = "dropped_parse"
	outcomeDroppedDomain = "dropped_domain"
	outcomeDroppedNoAddr = "dropped_unknown"
	outcomeDroppedExpire = "dropped_expired"
)

// Backend 实现 go-smtp 的 Backend 接口，只接收不转发。
//
// 与常规 MTA 不同，校验失败（收件人不存在、已过期、域名不符）时
// 不返回 550，而是正常应答后静默丢弃：对外不暴露哪些地址存在，
// 只在日志和指标里记录丢弃原因。存储故障才向对端返回临时错误。
type Backend struct {
	messages *service.MessageService
	// domain 本服务接管的邮箱域名，其它域名的收件人一律丢弃
	domain  string
	limiter *SessionLimiter
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewBackend 创建 SMTP Backend。limiter 可以为 nil。
func NewBackend(messages *service.MessageService, mailDomain string, limiter *SessionLimiter, logger *zap.Logger, metrics *monitoring.Metrics) *Backend {
	return &Backend{
		messages: messages,
		domain:   strings.ToLower(mailDomain),
		limiter:  limiter,
		logger:   logger,
		metrics:  metrics,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Allow() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 4, 5},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 这里无条件接受：真正的校验推迟到 Data 阶段完成，避免通过
// RCPT 应答探测哪些地址存在。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.recipients = append(s.recipients, normalizeAddress(to))
	return nil
}

// Data 处理邮件内容，对每个收件人独立执行校验和入库。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}
	s.backend.metrics.InboundSize.Observe(float64(len(rawBytes)))

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		// 解析不了的内容照常应答 250，然后丢弃
		s.backend.metrics.InboundMail.WithLabelValues(outcomeDroppedParse).Inc()
		s.backend.logger.Warn("入站邮件解析失败，已丢弃",
			zap.String("from", s.fromAddress),
			zap.Error(err))
		return nil
	}

	sender := senderAddress(parsed.From, s.fromAddress)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rcpt := range s.recipients {
		if err := s.deliver(ctx, rcpt, sender, parsed); err != nil {
			return err
		}
	}
	return nil
}

// deliver 对单个收件人执行域名检查、地址校验和入库。
// 校验失败返回 nil（对端看到的是成功应答），只有基础设施错误才上抛。
func (s *session) deliver(ctx context.Context, rcpt, sender string, parsed *ParsedEmail) error {
	log := s.backend.logger.With(
		zap.String("from", sender),
		zap.String("to", rcpt))

	parts := strings.Split(rcpt, "@")
	if len(parts) != 2 || !strings.EqualFold(parts[1], s.backend.domain) {
		s.backend.metrics.InboundMail.WithLabelValues(outcomeDroppedDomain).Inc()
		log.Info("收件域名不归本服务管理，已丢弃")
		return nil
	}

	msg := &domain.Message{
		Sender:   sender,
		Subject:  parsed.Subject,
		Body:     parsed.Text,
		HTMLBody: parsed.HTML,
	}

	err := s.backend.messages.Deliver(ctx, rcpt, msg)
	switch {
	case err == nil:
		s.backend.metrics.InboundMail.WithLabelValues(outcomeAccepted).Inc()
		return nil
	case errors.Is(err, service.ErrAddressNotFound):
		s.backend.metrics.InboundMail.WithLabelValues(outcomeDroppedNoAddr).Inc()
		log.Warn("收件地址不存在，已丢弃")
		return nil
	case errors.Is(err, service.ErrAddressExpired):
		s.backend.metrics.InboundMail.WithLabelValues(outcomeDroppedExpire).Inc()
		log.Warn("收件地址已过期，已丢弃")
		return nil
	default:
		// 存储故障，让对端稍后重试
		log.Error("邮件入库失败", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure",
		}
	}
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}
