package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL 和 MySQL。
type Store struct {
	db *gorm.DB
}

// Config 数据库连接参数。
type Config struct {
	// Type 数据库类型，postgres 或 mysql
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 建立数据库连接并自动迁移表结构。
func NewStore(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	return NewStoreWithDialector(dialector, cfg)
}

// NewStoreWithDialector 使用给定方言创建存储，便于测试注入 sqlite 等方言。
func NewStoreWithDialector(dialector gorm.Dialector, cfg Config) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&domain.Address{}, &domain.Message{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateAddress 保存新地址，唯一约束冲突映射为 ErrAddressExists。
func (s *Store) CreateAddress(ctx context.Context, addr *domain.Address) error {
	err := s.db.WithContext(ctx).Create(addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrAddressExists
		}
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

// GetAddress 按邮箱地址字符串查询。
func (s *Store) GetAddress(ctx context.Context, address string) (*domain.Address, error) {
	var addr domain.Address
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &addr, nil
}

// GetAddressByID 按主键查询。
func (s *Store) GetAddressByID(ctx context.Context, id string) (*domain.Address, error) {
	var addr domain.Address
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address by id: %w", err)
	}
	return &addr, nil
}

// UpdateAddress 整体更新地址记录。
func (s *Store) UpdateAddress(ctx context.Context, addr *domain.Address) error {
	result := s.db.WithContext(ctx).Model(&domain.Address{}).
		Where("id = ?", addr.ID).
		Updates(map[string]any{
			"address":         addr.Address,
			"expiration_time": addr.ExpirationTime,
			"is_premium":      addr.IsPremium,
		})
	if result.Error != nil {
		return fmt.Errorf("update address: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrAddressNotFound
	}
	return nil
}

// DeleteAddress 删除地址并级联删除其全部消息，两者在同一事务内完成。
func (s *Store) DeleteAddress(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&domain.Address{})
		if result.Error != nil {
			return fmt.Errorf("delete address: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return storage.ErrAddressNotFound
		}
		if err := tx.Where("recipient_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		return nil
	})
}

// SaveMessage 追加保存一封消息；保存前校验收件地址仍然存在。
func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Address{}).Where("id = ?", msg.RecipientID).Count(&count).Error; err != nil {
			return fmt.Errorf("check recipient: %w", err)
		}
		if count == 0 {
			return storage.ErrAddressNotFound
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("save message: %w", err)
		}
		return nil
	})
}

// ListMessages 列出某地址的全部消息，按接收时间升序。
func (s *Store) ListMessages(ctx context.Context, recipientID string) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("received_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// GetMessage 按消息 ID 查询并校验归属。
func (s *Store) GetMessage(ctx context.Context, recipientID, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", messageID, recipientID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// Health 探活。
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
