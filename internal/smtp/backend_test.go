package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
	"flashmail/backend/internal/storage/memory"
)

func newTestBackend(t *testing.T) (*Backend, *service.AddressService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	metrics := monitoring.NewTestMetrics()
	addrSvc := service.NewAddressService(store, service.AddressConfig{
		Domain:          "flashmail.dev",
		DefaultTTL:      24 * time.Hour,
		LocalPartLen:    10,
		PremiumDuration: 30 * 24 * time.Hour,
	}, zap.NewNop(), metrics)
	msgSvc := service.NewMessageService(store, zap.NewNop(), metrics, nil)
	backend := NewBackend(msgSvc, "flashmail.dev", nil, zap.NewNop(), metrics)
	return backend, addrSvc, store
}

func rawEmail(to, subject, body string) string {
	return "From: alice@example.com\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n"
}

func runSession(t *testing.T, backend *Backend, from, to, raw string) error {
	t.Helper()
	sess, err := backend.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, sess.Mail(from, nil))
	require.NoError(t, sess.Rcpt(to, nil))
	return sess.Data(strings.NewReader(raw))
}

func TestSession_Data(t *testing.T) {
	ctx := context.Background()

	t.Run("有效地址正常入库", func(t *testing.T) {
		backend, addrSvc, store := newTestBackend(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		err = runSession(t, backend, "alice@example.com", "<"+addr.Address+">",
			rawEmail(addr.Address, "welcome", "hello there"))
		require.NoError(t, err)

		msgs, err := store.ListMessages(ctx, addr.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "welcome", msgs[0].Subject)
		assert.Equal(t, "alice@example.com", msgs[0].Sender)
		assert.Contains(t, msgs[0].Body, "hello there")
	})

	t.Run("未知收件人静默丢弃", func(t *testing.T) {
		backend, _, _ := newTestBackend(t)

		err := runSession(t, backend, "alice@example.com", "<ghost@flashmail.dev>",
			rawEmail("ghost@flashmail.dev", "spam", "body"))
		// 对端看到的是成功，邮件实际被丢弃
		assert.NoError(t, err)
	})

	t.Run("过期收件人静默丢弃", func(t *testing.T) {
		backend, addrSvc, store := newTestBackend(t)
		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)
		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))

		err = runSession(t, backend, "alice@example.com", "<"+addr.Address+">",
			rawEmail(addr.Address, "late", "body"))
		assert.NoError(t, err)

		msgs, err := store.ListMessages(ctx, addr.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("外域收件人静默丢弃", func(t *testing.T) {
		backend, _, _ := newTestBackend(t)

		err := runSession(t, backend, "alice@example.com", "<bob@other.example.com>",
			rawEmail("bob@other.example.com", "relay attempt", "body"))
		assert.NoError(t, err)
	})

	t.Run("解析失败静默丢弃", func(t *testing.T) {
		backend, _, _ := newTestBackend(t)

		sess, err := backend.NewSession(nil)
		require.NoError(t, err)
		require.NoError(t, sess.Mail("alice@example.com", nil))
		require.NoError(t, sess.Rcpt("<bob@flashmail.dev>", nil))
		assert.NoError(t, sess.Data(strings.NewReader("garbage without headers")))
	})

	t.Run("多收件人独立处理", func(t *testing.T) {
		backend, addrSvc, store := newTestBackend(t)
		valid, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		sess, err := backend.NewSession(nil)
		require.NoError(t, err)
		require.NoError(t, sess.Mail("alice@example.com", nil))
		require.NoError(t, sess.Rcpt("<"+valid.Address+">", nil))
		require.NoError(t, sess.Rcpt("<ghost@flashmail.dev>", nil))
		require.NoError(t, sess.Data(strings.NewReader(
			rawEmail(valid.Address, "fanout", "body"))))

		msgs, err := store.ListMessages(ctx, valid.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("重复投递产生两条记录", func(t *testing.T) {
		backend, addrSvc, store := newTestBackend(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		raw := rawEmail(addr.Address, "dup", "same content")
		require.NoError(t, runSession(t, backend, "alice@example.com", "<"+addr.Address+">", raw))
		require.NoError(t, runSession(t, backend, "alice@example.com", "<"+addr.Address+">", raw))

		msgs, err := store.ListMessages(ctx, addr.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})

	t.Run("Reset清空会话状态", func(t *testing.T) {
		backend, _, _ := newTestBackend(t)
		sess, err := backend.NewSession(nil)
		require.NoError(t, err)
		require.NoError(t, sess.Mail("alice@example.com", nil))
		require.NoError(t, sess.Rcpt("<bob@flashmail.dev>", nil))

		sess.Reset()
		inner := sess.(*session)
		assert.Empty(t, inner.fromAddress)
		assert.Empty(t, inner.recipients)
	})
}

func TestSession_DropLogsWarn(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store := memory.NewStore()
	metrics := monitoring.NewTestMetrics()
	addrSvc := service.NewAddressService(store, service.AddressConfig{
		Domain:          "flashmail.dev",
		DefaultTTL:      24 * time.Hour,
		LocalPartLen:    10,
		PremiumDuration: 30 * 24 * time.Hour,
	}, zap.NewNop(), metrics)
	msgSvc := service.NewMessageService(store, zap.NewNop(), metrics, nil)
	backend := NewBackend(msgSvc, "flashmail.dev", nil, logger, metrics)

	t.Run("未知地址以警告级别记录", func(t *testing.T) {
		require.NoError(t, runSession(t, backend, "alice@example.com", "<ghost@flashmail.dev>",
			rawEmail("ghost@flashmail.dev", "spam", "body")))

		entries := logs.FilterMessage("收件地址不存在，已丢弃").All()
		require.NotEmpty(t, entries)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("过期地址以警告级别记录", func(t *testing.T) {
		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)
		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))

		require.NoError(t, runSession(t, backend, "alice@example.com", "<"+addr.Address+">",
			rawEmail(addr.Address, "late", "body")))

		entries := logs.FilterMessage("收件地址已过期，已丢弃").All()
		require.NotEmpty(t, entries)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})
}

func TestSessionLimiter(t *testing.T) {
	limiter := NewSessionLimiter(1, 2)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	// 突发额度耗尽
	assert.False(t, limiter.Allow())
}

func TestBackend_NewSessionLimited(t *testing.T) {
	store := memory.NewStore()
	metrics := monitoring.NewTestMetrics()
	msgSvc := service.NewMessageService(store, zap.NewNop(), metrics, nil)
	backend := NewBackend(msgSvc, "flashmail.dev", NewSessionLimiter(1, 1), zap.NewNop(), metrics)

	_, err := backend.NewSession(nil)
	require.NoError(t, err)

	_, err = backend.NewSession(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many connections")
}
