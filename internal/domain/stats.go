package domain

// StoreStats 存储层统计信息。
type StoreStats struct {
	TotalMessages      int64 `json:"totalMessages"`       // 当前存储的邮件总数
	DistinctRecipients int64 `json:"distinctRecipients"`  // 收件地址去重数量
	ReceivedLastHour   int64 `json:"receivedLastHour"`    // 最近一小时收到的邮件数
	ReceivedLast24h    int64 `json:"receivedLast24Hours"` // 最近24小时收到的邮件数
}
