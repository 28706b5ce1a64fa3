package domain

import "time"

// Address 表示一个临时邮箱地址的业务实体。
//
// ExpirationTime 总是有值：创建时为 now+TTL，升级高级版时被重置为
// now+高级版时长（只会延长生命周期，不会缩短）。到期后地址对新邮件
// 和读取接口均不可用，但记录本身保留，直到被显式删除。
type Address struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address        string    `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	ExpirationTime time.Time `json:"expiration_time" gorm:"not null"`
	IsPremium      bool      `json:"is_premium" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at"`
	// 仅用于 API 序列化，消息本身由仓储按 RecipientID 查询，
	// 实体之间不保留双向引用。
	Messages []Message `json:"messages" gorm:"-"`
}

// Expired 判断地址在给定时刻是否已过期。
func (a *Address) Expired(now time.Time) bool {
	return now.After(a.ExpirationTime)
}
