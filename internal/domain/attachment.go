package domain

// Attachment 表示邮件附件的描述信息。
// 一次性收件箱只保留描述（文件名、类型、大小），不保留附件内容。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"` // 附件唯一标识
	MessageID   int64  `json:"-" gorm:"index;not null"`               // 所属邮件ID
	Filename    string `json:"filename" gorm:"type:varchar(255)"`     // 文件名
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`  // MIME类型
	Size        int64  `json:"size"`                                  // 大小（字节）
}
