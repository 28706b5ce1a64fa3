package domain

import "time"

// Message 表示一封已落库的入站邮件。
//
// 通过 RecipientID 单向引用所属地址；只在写入时校验地址有效性，
// 此后即使地址过期，消息记录仍然保留（随地址删除级联删除）。
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Sender      string    `json:"sender" gorm:"type:varchar(255)"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	Body        string    `json:"body" gorm:"type:text"`
	HTMLBody    string    `json:"html_body" gorm:"type:text"`
	ReceivedAt  time.Time `json:"received_at"`
	RecipientID string    `json:"recipient_id" gorm:"type:varchar(36);index;not null"`
}
