package mailer

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"flashmail/backend/internal/monitoring"
)

// Config 出站中继参数。
type Config struct {
	// Host 中继服务器地址，留空时发送功能不可用
	Host     string
	Port     int
	Username string
	Password string
	// Domain 发件域名，信封发件人固定为 noreply@Domain
	Domain string
}

// Sender 通过上游中继发送邮件，使用隐式 TLS。
//
// 发送是尽力而为的：失败只记录日志和指标，不重试。
type Sender struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// dial 可注入的连接工厂，便于测试
	dial func(addr string) (smtpClient, error)
}

// smtpClient 出站会话所需的客户端操作子集，*gosmtp.Client 满足此接口。
type smtpClient interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Close() error
}

// NewSender 创建出站发送器。
func NewSender(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Sender {
	return &Sender{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		dial: func(addr string) (smtpClient, error) {
			client, err := gosmtp.DialTLS(addr, nil)
			if err != nil {
				return nil, err
			}
			client.CommandTimeout = 10 * time.Second
			client.SubmissionTimeout = 30 * time.Second
			return client, nil
		},
	}
}

// Enabled 是否配置了中继。
func (s *Sender) Enabled() bool {
	return s.cfg.Host != ""
}

// Send 发送一封邮件。textBody 必填，htmlBody 可选；两者都给时
// 生成 multipart/alternative 正文。
func (s *Sender) Send(to, subject, textBody, htmlBody string) error {
	if !s.Enabled() {
		return fmt.Errorf("outbound relay not configured")
	}

	from := fmt.Sprintf("noreply@%s", s.cfg.Domain)
	raw, err := buildMessage(from, to, subject, textBody, htmlBody)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	client, err := s.dial(addr)
	if err != nil {
		s.metrics.OutboundMail.WithLabelValues("failed").Inc()
		s.logger.Error("连接中继失败", zap.String("relay", addr), zap.Error(err))
		return fmt.Errorf("dial relay: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := client.Auth(auth); err != nil {
			s.metrics.OutboundMail.WithLabelValues("failed").Inc()
			s.logger.Error("中继认证失败", zap.Error(err))
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.SendMail(from, []string{to}, strings.NewReader(raw)); err != nil {
		s.metrics.OutboundMail.WithLabelValues("failed").Inc()
		s.logger.Error("发送失败", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}

	s.metrics.OutboundMail.WithLabelValues("sent").Inc()
	s.logger.Info("邮件已发送", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// buildMessage 组装 RFC 5322 格式的邮件。
func buildMessage(from, to, subject, textBody, htmlBody string) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuotedPrintable(&buf, textBody); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", textBody},
		{"text/html; charset=utf-8", htmlBody},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := writer.CreatePart(header)
		if err != nil {
			return "", err
		}
		qw := quotedprintable.NewWriter(pw)
		if _, err := qw.Write([]byte(part.body)); err != nil {
			return "", err
		}
		if err := qw.Close(); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func writeQuotedPrintable(buf *bytes.Buffer, body string) error {
	qw := quotedprintable.NewWriter(buf)
	if _, err := qw.Write([]byte(body)); err != nil {
		return err
	}
	return qw.Close()
}
