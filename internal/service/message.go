package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/storage"
)

// Notifier 新邮件通知接口，由 WebSocket Hub 实现。
type Notifier interface {
	NotifyNewMessage(address string, msg *domain.Message)
}

// MessageService 消息读取与入站投递。
type MessageService struct {
	store    storage.Store
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	notifier Notifier

	now func() time.Time
}

// NewMessageService 创建消息服务。notifier 可以为 nil。
func NewMessageService(store storage.Store, logger *zap.Logger, metrics *monitoring.Metrics, notifier Notifier) *MessageService {
	return &MessageService{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		now:      time.Now,
	}
}

// List 列出某地址的全部消息。
//
// 地址不存在返回 ErrAddressNotFound；地址已过期返回 ErrAddressExpired，
// 但消息记录本身仍在库中，升级高级版复活地址后可以再次读到。
func (s *MessageService) List(ctx context.Context, address string) ([]*domain.Message, error) {
	addr, err := s.store.GetAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	if addr.Expired(s.now()) {
		return nil, ErrAddressExpired
	}

	return s.store.ListMessages(ctx, addr.ID)
}

// Get 按 ID 读取单条消息。
//
// 只校验地址存在和消息归属，不做过期检查：拿到了消息 ID 的调用方
// 在地址过期后依然可以读取这条消息，直到地址被删除。
func (s *MessageService) Get(ctx context.Context, address, messageID string) (*domain.Message, error) {
	addr, err := s.store.GetAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, addr.ID, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// Deliver 投递一封入站邮件到指定地址。
//
// 收件地址不存在返回 ErrAddressNotFound，已过期返回 ErrAddressExpired，
// 由 SMTP 层决定如何处置（静默丢弃）。不做去重：同一封邮件投递多次
// 会产生多条记录。
func (s *MessageService) Deliver(ctx context.Context, address string, msg *domain.Message) error {
	addr, err := s.store.GetAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return ErrAddressNotFound
		}
		return err
	}
	if addr.Expired(s.now()) {
		return ErrAddressExpired
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	msg.RecipientID = addr.ID

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return err
	}

	s.logger.Info("邮件已入库",
		zap.String("address", addr.Address),
		zap.String("sender", msg.Sender),
		zap.String("message_id", msg.ID))

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(addr.Address, msg)
	}
	return nil
}
