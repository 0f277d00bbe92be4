package memory

import (
	"sort"
	"sync"
	"time"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// Store 内存存储实现，适用于开发调试与单实例部署。
// 进程重启后数据丢失。
type Store struct {
	mu sync.RWMutex

	nextID   int64
	messages map[int64]*domain.Message

	// recipientIndex 收件地址到邮件 ID 列表的索引，ID 按插入顺序递增。
	recipientIndex map[string][]int64
}

// NewStore 创建内存存储实例。
func NewStore() *Store {
	return &Store{
		nextID:         1,
		messages:       make(map[int64]*domain.Message),
		recipientIndex: make(map[string][]int64),
	}
}

var _ storage.Store = (*Store)(nil)

// InsertMessage 分配递增 ID 并保存邮件。
func (s *Store) InsertMessage(message *domain.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := *message
	stored.ID = id
	for i := range stored.Attachments {
		stored.Attachments[i].MessageID = id
	}

	s.messages[id] = &stored
	s.recipientIndex[stored.Recipient] = append(s.recipientIndex[stored.Recipient], id)

	message.ID = id
	return id, nil
}

// ListMessagesByRecipient 按收件地址倒序返回邮件。
func (s *Store) ListMessagesByRecipient(address string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.recipientIndex[address]
	result := make([]domain.Message, 0, min(limit, len(ids)))

	// 索引按插入顺序排列，倒着取即为最新在前。
	for i := len(ids) - 1; i >= 0 && len(result) < limit; i-- {
		if msg, ok := s.messages[ids[i]]; ok {
			result = append(result, *msg)
		}
	}
	return result, nil
}

// GetMessage 根据 ID 获取邮件。
func (s *Store) GetMessage(id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// DeleteMessage 删除指定邮件。
func (s *Store) DeleteMessage(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotFound
	}

	delete(s.messages, id)
	s.removeFromIndex(msg.Recipient, id)
	return nil
}

// DeleteMessagesOlderThan 清理接收时间早于 cutoff 的邮件。
func (s *Store) DeleteMessagesOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, msg := range s.messages {
		if msg.ReceivedAt.Before(cutoff) {
			delete(s.messages, id)
			s.removeFromIndex(msg.Recipient, id)
			removed++
		}
	}
	return removed, nil
}

// GetStats 返回存储统计。
func (s *Store) GetStats() (*domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := &domain.StoreStats{
		TotalMessages:      int64(len(s.messages)),
		DistinctRecipients: int64(len(s.recipientIndex)),
	}
	for _, msg := range s.messages {
		age := now.Sub(msg.ReceivedAt)
		if age <= time.Hour {
			stats.ReceivedLastHour++
		}
		if age <= 24*time.Hour {
			stats.ReceivedLast24h++
		}
	}
	return stats, nil
}

// Health 内存存储始终健康。
func (s *Store) Health() error {
	return nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// removeFromIndex 从收件地址索引中移除 ID，索引为空时删除该地址条目。
// 调用方必须持有写锁。
func (s *Store) removeFromIndex(recipient string, id int64) {
	ids := s.recipientIndex[recipient]
	pos := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if pos < len(ids) && ids[pos] == id {
		ids = append(ids[:pos], ids[pos+1:]...)
	}
	if len(ids) == 0 {
		delete(s.recipientIndex, recipient)
	} else {
		s.recipientIndex[recipient] = ids
	}
}
