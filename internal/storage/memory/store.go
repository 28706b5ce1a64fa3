package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/storage"
)

// Store 基于内存的存储实现，用于开发和测试。
//
// 使用读写锁保护两张索引表；所有返回值均为副本，调用方修改
// 返回的实体不会影响存储内部状态。
type Store struct {
	mu sync.RWMutex

	// id -> 地址
	addresses map[string]*domain.Address
	// 地址字符串 -> id
	addressIndex map[string]string
	// recipientID -> 消息列表（按接收时间追加）
	messages map[string][]*domain.Message

	// 速率限制计数
	limits map[string]*rateEntry
}

type rateEntry struct {
	count    int64
	expireAt time.Time
}

// NewStore 创建内存存储。
func NewStore() *Store {
	return &Store{
		addresses:    make(map[string]*domain.Address),
		addressIndex: make(map[string]string),
		messages:     make(map[string][]*domain.Message),
		limits:       make(map[string]*rateEntry),
	}
}

// CreateAddress 保存新地址。
func (s *Store) CreateAddress(ctx context.Context, addr *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addressIndex[addr.Address]; ok {
		return storage.ErrAddressExists
	}

	cp := *addr
	s.addresses[cp.ID] = &cp
	s.addressIndex[cp.Address] = cp.ID
	return nil
}

// GetAddress 按邮箱地址字符串查询。
func (s *Store) GetAddress(ctx context.Context, address string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.addressIndex[address]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	cp := *s.addresses[id]
	return &cp, nil
}

// GetAddressByID 按主键查询。
func (s *Store) GetAddressByID(ctx context.Context, id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.addresses[id]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	cp := *addr
	return &cp, nil
}

// UpdateAddress 整体更新地址记录。
func (s *Store) UpdateAddress(ctx context.Context, addr *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.addresses[addr.ID]
	if !ok {
		return storage.ErrAddressNotFound
	}

	if old.Address != addr.Address {
		delete(s.addressIndex, old.Address)
		s.addressIndex[addr.Address] = addr.ID
	}
	cp := *addr
	s.addresses[cp.ID] = &cp
	return nil
}

// DeleteAddress 删除地址并级联删除其全部消息。
func (s *Store) DeleteAddress(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.addresses[id]
	if !ok {
		return storage.ErrAddressNotFound
	}

	delete(s.addressIndex, addr.Address)
	delete(s.addresses, id)
	delete(s.messages, id)
	return nil
}

// SaveMessage 追加保存一封消息。
func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[msg.RecipientID]; !ok {
		return storage.ErrAddressNotFound
	}

	cp := *msg
	s.messages[cp.RecipientID] = append(s.messages[cp.RecipientID], &cp)
	return nil
}

// ListMessages 列出某地址的全部消息，按接收时间升序。
func (s *Store) ListMessages(ctx context.Context, recipientID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[recipientID]
	result := make([]*domain.Message, 0, len(stored))
	for _, m := range stored {
		cp := *m
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

// GetMessage 按消息 ID 查询并校验归属。
func (s *Store) GetMessage(ctx context.Context, recipientID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[recipientID] {
		if m.ID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, storage.ErrMessageNotFound
}

// IncrementRateLimit 自增计数，窗口到期后重新计数。
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.limits[key]
	if !ok || now.After(entry.expireAt) {
		entry = &rateEntry{expireAt: now.Add(window)}
		s.limits[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Health 内存存储总是健康的。
func (s *Store) Health(ctx context.Context) error {
	return nil
}

// Close 释放资源（内存实现无事可做）。
func (s *Store) Close() error {
	return nil
}
