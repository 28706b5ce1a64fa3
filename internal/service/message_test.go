package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/storage/memory"
)

func testInboundMessage() *domain.Message {
	return &domain.Message{
		Sender:   "alice@example.com",
		Subject:  "verification code",
		Body:     "your code is 123456",
		HTMLBody: "<p>your code is <b>123456</b></p>",
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyNewMessage(address string, msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, address)
}

func newTestMessageService(t *testing.T) (*MessageService, *AddressService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	metrics := monitoring.NewTestMetrics()
	addrSvc := NewAddressService(store, testAddressConfig(), zap.NewNop(), metrics)
	msgSvc := NewMessageService(store, zap.NewNop(), metrics, nil)
	return msgSvc, addrSvc, store
}

func TestMessageService_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("投递成功并补齐字段", func(t *testing.T) {
		msgSvc, addrSvc, _ := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		msg := testInboundMessage()
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, msg))
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.ReceivedAt.IsZero())
		assert.Equal(t, addr.ID, msg.RecipientID)
	})

	t.Run("收件地址不存在", func(t *testing.T) {
		msgSvc, _, _ := newTestMessageService(t)
		err := msgSvc.Deliver(ctx, "ghost@flashmail.dev", testInboundMessage())
		assert.ErrorIs(t, err, ErrAddressNotFound)
	})

	t.Run("收件地址已过期", func(t *testing.T) {
		msgSvc, addrSvc, store := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)
		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))

		err = msgSvc.Deliver(ctx, addr.Address, testInboundMessage())
		assert.ErrorIs(t, err, ErrAddressExpired)
	})

	t.Run("触发新邮件通知", func(t *testing.T) {
		store := memory.NewStore()
		metrics := monitoring.NewTestMetrics()
		notifier := &recordingNotifier{}
		addrSvc := NewAddressService(store, testAddressConfig(), zap.NewNop(), metrics)
		msgSvc := NewMessageService(store, zap.NewNop(), metrics, notifier)

		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, testInboundMessage()))

		assert.Equal(t, []string{addr.Address}, notifier.events)
	})
}

func TestMessageService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("按接收时间升序返回", func(t *testing.T) {
		msgSvc, addrSvc, _ := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		base := time.Now()
		for i, subject := range []string{"first", "second", "third"} {
			msg := testInboundMessage()
			msg.Subject = subject
			msg.ReceivedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, msgSvc.Deliver(ctx, addr.Address, msg))
		}

		msgs, err := msgSvc.List(ctx, addr.Address)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Subject)
		assert.Equal(t, "third", msgs[2].Subject)
	})

	t.Run("空邮箱返回空列表", func(t *testing.T) {
		msgSvc, addrSvc, _ := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		msgs, err := msgSvc.List(ctx, addr.Address)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("地址不存在", func(t *testing.T) {
		msgSvc, _, _ := newTestMessageService(t)
		_, err := msgSvc.List(ctx, "ghost@flashmail.dev")
		assert.ErrorIs(t, err, ErrAddressNotFound)
	})

	t.Run("地址过期后列表不可读", func(t *testing.T) {
		msgSvc, addrSvc, store := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, testInboundMessage()))

		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))

		_, err = msgSvc.List(ctx, addr.Address)
		assert.ErrorIs(t, err, ErrAddressExpired)
	})

	t.Run("升级复活后消息仍在", func(t *testing.T) {
		store := memory.NewStore()
		metrics := monitoring.NewTestMetrics()
		addrSvc := NewAddressService(store, testAddressConfig(), zap.NewNop(), metrics)
		msgSvc := NewMessageService(store, zap.NewNop(), metrics, nil)

		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, testInboundMessage()))

		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))
		_, err = msgSvc.List(ctx, addr.Address)
		require.ErrorIs(t, err, ErrAddressExpired)

		_, err = addrSvc.Upgrade(ctx, addr.Address)
		require.NoError(t, err)

		msgs, err := msgSvc.List(ctx, addr.Address)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})
}

func TestMessageService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("按ID读取", func(t *testing.T) {
		msgSvc, addrSvc, _ := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		msg := testInboundMessage()
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, msg))

		got, err := msgSvc.Get(ctx, addr.Address, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.Subject, got.Subject)
	})

	t.Run("过期地址仍可按ID读取", func(t *testing.T) {
		msgSvc, addrSvc, store := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 1)
		require.NoError(t, err)

		msg := testInboundMessage()
		require.NoError(t, msgSvc.Deliver(ctx, addr.Address, msg))

		addr.ExpirationTime = time.Now().Add(-time.Minute)
		require.NoError(t, store.UpdateAddress(ctx, addr))

		got, err := msgSvc.Get(ctx, addr.Address, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, got.ID)
	})

	t.Run("消息不存在", func(t *testing.T) {
		msgSvc, addrSvc, _ := newTestMessageService(t)
		addr, err := addrSvc.Create(ctx, 0)
		require.NoError(t, err)

		_, err = msgSvc.Get(ctx, addr.Address, "no-such-id")
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("地址不存在", func(t *testing.T) {
		msgSvc, _, _ := newTestMessageService(t)
		_, err := msgSvc.Get(ctx, "ghost@flashmail.dev", "id")
		assert.ErrorIs(t, err, ErrAddressNotFound)
	})
}
