package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/storage"
)

// 随机本地部分的字符表，小写字母加数字。
const localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// 生成地址时的最大碰撞重试次数。
const maxGenerateAttempts = 5

// AddressConfig 地址服务参数。
type AddressConfig struct {
	// Domain 本服务接管的邮箱域名
	Domain string
	// DefaultTTL 未指定时长时的默认有效期
	DefaultTTL time.Duration
	// LocalPartLen 随机本地部分长度
	LocalPartLen int
	// PremiumDuration 升级高级版后的有效期
	PremiumDuration time.Duration
	// PremiumPrice 高级版价格，仅用于对外展示
	PremiumPrice float64
}

// AddressService 地址生命周期管理：创建、升级、删除。
type AddressService struct {
	store   storage.Store
	cfg     AddressConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// now 可注入的时钟，便于测试
	now func() time.Time
}

// NewAddressService 创建地址服务。
func NewAddressService(store storage.Store, cfg AddressConfig, logger *zap.Logger, metrics *monitoring.Metrics) *AddressService {
	return &AddressService{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Create 生成一个新的临时邮箱地址。
//
// ttlHours <= 0 时使用默认有效期。随机本地部分与已有地址碰撞时
// 重新生成，重试次数耗尽后返回 ErrGenerateExhausted。
func (s *AddressService) Create(ctx context.Context, ttlHours int) (*domain.Address, error) {
	ttl := s.cfg.DefaultTTL
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours) * time.Hour
	}

	now := s.now()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		local, err := randomLocalPart(s.cfg.LocalPartLen)
		if err != nil {
			return nil, fmt.Errorf("generate local part: %w", err)
		}

		addr := &domain.Address{
			ID:             uuid.NewString(),
			Address:        fmt.Sprintf("%s@%s", local, s.cfg.Domain),
			ExpirationTime: now.Add(ttl),
			CreatedAt:      now,
			Messages:       []domain.Message{},
		}

		err = s.store.CreateAddress(ctx, addr)
		if errors.Is(err, storage.ErrAddressExists) {
			s.logger.Debug("地址碰撞，重新生成", zap.String("address", addr.Address))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.AddressesCreated.Inc()
		s.logger.Info("创建临时邮箱",
			zap.String("address", addr.Address),
			zap.Time("expires_at", addr.ExpirationTime))
		return addr, nil
	}

	return nil, ErrGenerateExhausted
}

// Upgrade 将地址升级为高级版。
//
// 无论地址当前是否过期、是否已是高级版，过期时间一律重置为
// 当前时刻加高级版时长；对已过期地址而言等同于复活。
func (s *AddressService) Upgrade(ctx context.Context, address string) (*domain.Address, error) {
	addr, err := s.store.GetAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	addr.IsPremium = true
	addr.ExpirationTime = s.now().Add(s.cfg.PremiumDuration)
	if err := s.store.UpdateAddress(ctx, addr); err != nil {
		return nil, err
	}

	s.metrics.PremiumUpgrades.Inc()
	s.logger.Info("升级高级版",
		zap.String("address", addr.Address),
		zap.Time("expires_at", addr.ExpirationTime))
	return addr, nil
}

// Delete 删除地址及其全部消息。
func (s *AddressService) Delete(ctx context.Context, address string) error {
	addr, err := s.store.GetAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return ErrAddressNotFound
		}
		return err
	}

	if err := s.store.DeleteAddress(ctx, addr.ID); err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return ErrAddressNotFound
		}
		return err
	}

	s.metrics.AddressesDeleted.Inc()
	s.logger.Info("删除临时邮箱", zap.String("address", addr.Address))
	return nil
}

// PremiumPrice 高级版价格。
func (s *AddressService) PremiumPrice() float64 {
	return s.cfg.PremiumPrice
}

// randomLocalPart 生成指定长度的随机本地部分。
func randomLocalPart(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(localPartAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = localPartAlphabet[n.Int64()]
	}
	return string(buf), nil
}
