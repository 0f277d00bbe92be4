package domain

import "time"

// Message 表示一封投递到一次性收件箱的邮件。
// 入库后不可修改，只支持插入、读取、删除与过期清理。
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Recipient  string    `json:"recipient" gorm:"type:varchar(255);index;not null"`
	Sender     string    `json:"sender" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	BodyText   string    `json:"bodyText" gorm:"type:text"`
	BodyHTML   string    `json:"bodyHtml" gorm:"type:text"`
	Truncated  bool      `json:"truncated" gorm:"default:false"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
}
