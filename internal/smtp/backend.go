package smtp

import (
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempinbox/backend/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 【安全说明】
// 这是一个只接收邮件的 SMTP 服务器（Receiving-Only SMTP Server）。
// - 只接收发送到托管域名的邮件
// - 不支持对外发送邮件（无邮件中继功能）
// - 外部域名的收件地址一律返回 550 拒绝
//
// 一次性收件箱无需预先创建：任意托管域名下的地址都可直接收信。
type Backend struct {
	messages       *service.MessageService
	allowedDomains []string // 空表示接受所有域名
	maxMessageSize int64
	limiter        *ConnectionLimiter // 可选
	log            *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(messages *service.MessageService, allowedDomains []string, maxMessageSize int64, log *zap.Logger) *Backend {
	if maxMessageSize <= 0 {
		maxMessageSize = 10 << 20
	}
	return &Backend{
		messages:       messages,
		allowedDomains: allowedDomains,
		maxMessageSize: maxMessageSize,
		log:            log,
	}
}

// SetConnectionLimiter 设置连接限流器。
func (b *Backend) SetConnectionLimiter(limiter *ConnectionLimiter) {
	b.limiter = limiter
}

// NewSession 创建新的 SMTP 会话。
// 超出连接配额时返回 421，提示对端稍后重试。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	acquired := false
	if b.limiter != nil {
		if !b.limiter.Acquire() {
			b.log.Warn("smtp connection rejected by limiter",
				zap.Int("current", b.limiter.Current()))
			return nil, &gosmtp.SMTPError{
				Code:         421,
				EnhancedCode: gosmtp.EnhancedCode{4, 4, 5},
				Message:      "too many connections, try again later",
			}
		}
		acquired = true
	}
	return &session{backend: b, acquired: acquired}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
	acquired    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 【安全关键】此方法是防止邮件中继的核心：
// 只接受托管域名下的收件地址，其余一律 550 拒绝，
// 确保服务器不会被用作垃圾邮件中继。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if !s.backend.domainAllowed(parts[1]) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxMessageSize))
	if err != nil {
		return err
	}

	if err := s.backend.messages.IngestSMTP(s.fromAddress, s.recipients, raw); err != nil {
		s.backend.log.Error("failed to ingest smtp message",
			zap.String("from", s.fromAddress),
			zap.Int("recipients", len(s.recipients)),
			zap.Error(err),
		)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure, try again later",
		}
	}
	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接配额。
func (s *session) Logout() error {
	if s.acquired {
		s.backend.limiter.Release()
		s.acquired = false
	}
	return nil
}

// domainAllowed 检查收件域名是否被托管。
func (b *Backend) domainAllowed(domain string) bool {
	if len(b.allowedDomains) == 0 {
		return true
	}
	for _, d := range b.allowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
