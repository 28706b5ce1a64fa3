package mailer

import (
	"io"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashmail/backend/internal/monitoring"
)

type fakeClient struct {
	authed   bool
	from     string
	to       []string
	raw      string
	closed   bool
	sendErr  error
	authFail error
}

func (f *fakeClient) Auth(a sasl.Client) error {
	if f.authFail != nil {
		return f.authFail
	}
	f.authed = true
	return nil
}

func (f *fakeClient) SendMail(from string, to []string, r io.Reader) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.from = from
	f.to = to
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.raw = string(raw)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestSender(t *testing.T, client *fakeClient) *Sender {
	t.Helper()
	s := NewSender(Config{
		Host:     "relay.example.com",
		Port:     465,
		Username: "user",
		Password: "pass",
		Domain:   "flashmail.dev",
	}, zap.NewNop(), monitoring.NewTestMetrics())
	s.dial = func(addr string) (smtpClient, error) {
		assert.Equal(t, "relay.example.com:465", addr)
		return client, nil
	}
	return s
}

func TestSender_Send(t *testing.T) {
	t.Run("纯文本邮件", func(t *testing.T) {
		client := &fakeClient{}
		s := newTestSender(t, client)

		require.NoError(t, s.Send("bob@example.com", "hi", "plain only", ""))
		assert.True(t, client.authed)
		assert.True(t, client.closed)
		assert.Equal(t, "noreply@flashmail.dev", client.from)
		assert.Equal(t, []string{"bob@example.com"}, client.to)
		assert.Contains(t, client.raw, "Content-Type: text/plain")
		assert.Contains(t, client.raw, "plain only")
	})

	t.Run("双格式邮件", func(t *testing.T) {
		client := &fakeClient{}
		s := newTestSender(t, client)

		require.NoError(t, s.Send("bob@example.com", "hi", "text", "<p>html</p>"))
		assert.Contains(t, client.raw, "multipart/alternative")
		assert.Contains(t, client.raw, "text/html")
	})

	t.Run("未配置中继", func(t *testing.T) {
		s := NewSender(Config{}, zap.NewNop(), monitoring.NewTestMetrics())
		assert.False(t, s.Enabled())
		assert.Error(t, s.Send("bob@example.com", "hi", "body", ""))
	})

	t.Run("发送失败上抛错误", func(t *testing.T) {
		client := &fakeClient{sendErr: assert.AnError}
		s := newTestSender(t, client)

		err := s.Send("bob@example.com", "hi", "body", "")
		assert.Error(t, err)
		assert.True(t, client.closed)
	})
}

func TestBuildMessage(t *testing.T) {
	t.Run("主题编码", func(t *testing.T) {
		raw, err := buildMessage("noreply@flashmail.dev", "bob@example.com", "中文主题", "body", "")
		require.NoError(t, err)
		assert.Contains(t, raw, "Subject: =?utf-8?q?")
	})

	t.Run("头部齐全", func(t *testing.T) {
		raw, err := buildMessage("noreply@flashmail.dev", "bob@example.com", "hi", "body", "")
		require.NoError(t, err)
		assert.Contains(t, raw, "From: noreply@flashmail.dev")
		assert.Contains(t, raw, "To: bob@example.com")
		assert.Contains(t, raw, "MIME-Version: 1.0")
		assert.Contains(t, raw, "Date: ")
	})
}
