package storage

import (
	"context"
	"errors"
	"time"

	"flashmail/backend/internal/domain"
)

// 存储层哨兵错误。服务层据此映射为对外的 HTTP 状态码。
var (
	// ErrAddressNotFound 地址不存在
	ErrAddressNotFound = errors.New("address not found")
	// ErrAddressExists 地址已存在（唯一约束冲突）
	ErrAddressExists = errors.New("address already exists")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")
)

// AddressRepository 地址仓储接口。
//
// 实现不做任何过期过滤：过期判断属于服务层语义，仓储只负责
// 按主键/地址取数和持久化。
type AddressRepository interface {
	// CreateAddress 保存新地址，地址字符串冲突时返回 ErrAddressExists
	CreateAddress(ctx context.Context, addr *domain.Address) error

	// GetAddress 按邮箱地址字符串查询
	GetAddress(ctx context.Context, address string) (*domain.Address, error)

	// GetAddressByID 按主键查询
	GetAddressByID(ctx context.Context, id string) (*domain.Address, error)

	// UpdateAddress 整体更新地址记录（升级高级版时重置过期时间）
	UpdateAddress(ctx context.Context, addr *domain.Address) error

	// DeleteAddress 删除地址并级联删除其全部消息，两者在同一事务内完成
	DeleteAddress(ctx context.Context, id string) error
}

// MessageRepository 消息仓储接口。
type MessageRepository interface {
	// SaveMessage 追加保存一封消息；不做去重，同一封邮件重复投递会产生多条记录
	SaveMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages 列出某地址的全部消息，按接收时间升序
	ListMessages(ctx context.Context, recipientID string) ([]*domain.Message, error)

	// GetMessage 按消息 ID 查询，并校验归属于给定地址
	GetMessage(ctx context.Context, recipientID, messageID string) (*domain.Message, error)
}

// RateLimiter 速率限制计数接口，由 Redis 或内存实现。
type RateLimiter interface {
	// IncrementRateLimit 自增指定 key 的计数并返回当前值，首次自增时设置过期窗口
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Store 聚合存储接口，供上层按需注入。
type Store interface {
	AddressRepository
	MessageRepository

	// Health 探活，用于健康检查端点
	Health(ctx context.Context) error

	// Close 释放底层连接
	Close() error
}
