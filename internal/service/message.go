package service

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/ingest"
	"tempinbox/backend/internal/storage"
)

var (
	// ErrRecipientRequired 模拟投递缺少收件地址。
	ErrRecipientRequired = errors.New("recipient address is required")
)

// Notifier 新邮件到达通知接口，由 WebSocket Hub 实现。
type Notifier interface {
	NotifyNewMail(recipient string, message *domain.Message)
}

// IngestMetrics 入站处理指标接口。
type IngestMetrics interface {
	ObserveIngest(shape string, status string)
	ObserveTruncation()
	ObserveEviction(count int)
}

// MessageService 封装邮件接收与查询逻辑。
type MessageService struct {
	repo       storage.MessageRepository
	stats      storage.StatsRepository
	normalizer *ingest.Normalizer
	notifier   Notifier      // 可选
	metrics    IngestMetrics // 可选
	listLimit  int           // 查询未指定 limit 时的默认上限
	log        *zap.Logger
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(
	repo storage.MessageRepository,
	stats storage.StatsRepository,
	normalizer *ingest.Normalizer,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		repo:       repo,
		stats:      stats,
		normalizer: normalizer,
		log:        log,
	}
}

// SetNotifier 设置新邮件通知器
func (s *MessageService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetMetrics 设置指标采集器
func (s *MessageService) SetMetrics(metrics IngestMetrics) {
	s.metrics = metrics
}

// SetListLimit 设置默认查询条数上限，覆盖 storage.DefaultListLimit。
func (s *MessageService) SetListLimit(limit int) {
	s.listLimit = limit
}

// SimulateInput 模拟投递的输入。
type SimulateInput struct {
	ToEmail   string
	FromEmail string
	Subject   string
	Body      string
}

// Simulate 模拟一封入站邮件，用于开发调试。
// 缺少收件地址时返回 ErrRecipientRequired。
func (s *MessageService) Simulate(input SimulateInput) (*domain.Message, error) {
	recipient := strings.TrimSpace(input.ToEmail)
	if recipient == "" {
		return nil, ErrRecipientRequired
	}

	email := ingest.Email{
		Recipient: recipient,
		Sender:    input.FromEmail,
		Subject:   input.Subject,
		Text:      input.Body,
	}
	s.normalizer.Finalize(&email)

	return s.store(&email, "simulate")
}

// IngestResult 入站处理结果。
type IngestResult struct {
	Status  ingest.Status
	Shape   ingest.Shape
	Message *domain.Message // Status 为 Recognized 且入库成功时非空
}

// Ingest 处理一个入站投递载荷：归一化后入库。
// 归一化失败不视为错误，结果通过 Status 表达。
func (s *MessageService) Ingest(body []byte, contentType string) (*IngestResult, error) {
	result := s.normalizer.Normalize(body, contentType)
	if s.metrics != nil {
		s.metrics.ObserveIngest(string(result.Shape), result.Status.String())
	}

	out := &IngestResult{Status: result.Status, Shape: result.Shape}
	if result.Status != ingest.StatusRecognized {
		s.log.Warn("inbound payload not stored",
			zap.String("status", result.Status.String()),
			zap.String("content_type", contentType),
			zap.Int("size", len(body)),
		)
		return out, nil
	}

	msg, err := s.store(result.Email, string(result.Shape))
	if err != nil {
		return nil, err
	}
	out.Message = msg
	return out, nil
}

// IngestSMTP 处理经 SMTP 收到的原始邮件，对每个收件地址各存一份。
func (s *MessageService) IngestSMTP(from string, recipients []string, raw []byte) error {
	for _, rcpt := range recipients {
		result := s.normalizer.NormalizeRawMIME(raw)
		if s.metrics != nil {
			s.metrics.ObserveIngest(string(ingest.ShapeRawMIME), result.Status.String())
		}
		if result.Status != ingest.StatusRecognized {
			s.log.Warn("smtp message rejected by parser",
				zap.String("from", from),
				zap.String("rcpt", rcpt),
			)
			continue
		}

		// SMTP 信封收件人优先于邮件头。
		result.Email.Recipient = strings.ToLower(strings.TrimSpace(rcpt))
		if result.Email.Sender == "" || result.Email.Sender == ingest.UnknownSender {
			result.Email.Sender = strings.ToLower(from)
		}

		if _, err := s.store(result.Email, "smtp"); err != nil {
			return err
		}
	}
	return nil
}

// store 将归一化结果写入存储并发出通知。
func (s *MessageService) store(email *ingest.Email, source string) (*domain.Message, error) {
	message := &domain.Message{
		Recipient:   email.Recipient,
		Sender:      email.Sender,
		Subject:     email.Subject,
		BodyText:    email.Text,
		BodyHTML:    email.HTML,
		Truncated:   email.Truncated,
		ReceivedAt:  time.Now().UTC(),
		Attachments: email.Attachments,
	}

	id, err := s.repo.InsertMessage(message)
	if err != nil {
		s.log.Error("failed to store message",
			zap.String("recipient", message.Recipient),
			zap.Error(err),
		)
		return nil, err
	}

	if email.Truncated && s.metrics != nil {
		s.metrics.ObserveTruncation()
	}

	s.log.Info("message stored",
		zap.Int64("id", id),
		zap.String("recipient", message.Recipient),
		zap.String("source", source),
		zap.Bool("truncated", message.Truncated),
	)

	if s.notifier != nil {
		s.notifier.NotifyNewMail(message.Recipient, message)
	}
	return message, nil
}

// ListByRecipient 按收件地址查询邮件，地址匹配不区分大小写。
// limit 非正时使用配置的默认上限。
func (s *MessageService) ListByRecipient(address string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	return s.repo.ListMessagesByRecipient(strings.ToLower(strings.TrimSpace(address)), limit)
}

// Get 获取单封邮件详情。
func (s *MessageService) Get(id int64) (*domain.Message, error) {
	return s.repo.GetMessage(id)
}

// Delete 删除单封邮件。
func (s *MessageService) Delete(id int64) error {
	return s.repo.DeleteMessage(id)
}

// Cleanup 清理早于保留期的邮件，返回删除数量。
func (s *MessageService) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	removed, err := s.repo.DeleteMessagesOlderThan(cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.log.Info("expired messages removed",
			zap.Int("count", removed),
			zap.Time("cutoff", cutoff),
		)
		if s.metrics != nil {
			s.metrics.ObserveEviction(removed)
		}
	}
	return removed, nil
}

// Stats 返回存储统计。
func (s *MessageService) Stats() (*domain.StoreStats, error) {
	return s.stats.GetStats()
}
