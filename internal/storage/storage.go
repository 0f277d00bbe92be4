package storage

import (
	"errors"
	"time"

	"tempinbox/backend/internal/domain"
)

var (
	// ErrMessageNotFound 邮件不存在。查询未命中用它表达，而不是异常路径。
	ErrMessageNotFound = errors.New("message not found")
)

// DefaultListLimit 按收件地址查询时的默认返回上限。
const DefaultListLimit = 50

// MessageRepository 定义邮件数据存取操作。
// 邮件只追加不修改：插入、读取、删除与按年龄批量清理。
type MessageRepository interface {
	// InsertMessage 分配下一个递增 ID 并追加记录，返回该 ID。
	// ID 在插入顺序上严格递增，与收件地址无关。
	InsertMessage(message *domain.Message) (int64, error)

	// ListMessagesByRecipient 返回收件地址精确匹配的邮件，
	// 按接收时间倒序，最多 limit 条。limit 非正时使用 DefaultListLimit。
	ListMessagesByRecipient(address string, limit int) ([]domain.Message, error)

	// GetMessage 根据 ID 获取单封邮件，未命中返回 ErrMessageNotFound。
	GetMessage(id int64) (*domain.Message, error)

	// DeleteMessage 删除指定邮件，未命中返回 ErrMessageNotFound。
	DeleteMessage(id int64) error

	// DeleteMessagesOlderThan 删除接收时间早于 cutoff 的全部邮件，
	// 返回删除数量。
	DeleteMessagesOlderThan(cutoff time.Time) (int, error)
}

// StatsRepository 定义统计查询操作。
type StatsRepository interface {
	GetStats() (*domain.StoreStats, error)
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	// IncrementRateLimit 在滑动窗口内递增计数，返回递增后的值。
	IncrementRateLimit(key string, window time.Duration) (int64, error)
}

// Store 聚合消息存储的全部能力。
type Store interface {
	MessageRepository
	StatsRepository

	// Health 存储健康检查。
	Health() error
	// Close 关闭底层连接。
	Close() error
}
