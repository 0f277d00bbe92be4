package ingest

import (
	"net/mail"
	"strings"

	"tempinbox/backend/internal/domain"
)

// Shape 标识入站载荷匹配到的已知格式。
type Shape string

const (
	ShapeEventJSON   Shape = "event_json"   // 事件包裹型 JSON（投递事件通知，不含正文）
	ShapeFormFields  Shape = "form_fields"  // 扁平表单字段（含 recipient 字段）
	ShapeRawMIME     Shape = "raw_mime"     // 原始 MIME 文本
	ShapeGenericJSON Shape = "generic_json" // 通用 JSON（to/from 同义字段）
)

// Status 表示一次规范化的结果类别。
// 无法识别的载荷是合法的可上报结果，不是错误。
type Status int

const (
	// StatusRecognized 载荷匹配到某个已知格式并成功提取出规范记录。
	StatusRecognized Status = iota
	// StatusUnrecognized 没有匹配到任何已知格式，或匹配后缺少收件地址。
	StatusUnrecognized
	// StatusParseFailed 匹配到格式但解析失败（如损坏的 MIME）。
	StatusParseFailed
)

// String 返回状态的可读名称，用于日志与指标标签。
func (s Status) String() string {
	switch s {
	case StatusRecognized:
		return "recognized"
	case StatusUnrecognized:
		return "unrecognized"
	case StatusParseFailed:
		return "parse_failed"
	default:
		return "unknown"
	}
}

// Email 是规范化之后的邮件记录，与来源 webhook 格式无关。
type Email struct {
	Recipient   string
	Sender      string
	Subject     string
	Text        string
	HTML        string
	Truncated   bool
	Attachments []domain.Attachment
}

// Result 是规范化的带标签结果。
// Email 仅在 Status 为 StatusRecognized 时非空。
type Result struct {
	Status Status
	Shape  Shape
	Email  *Email
}

const (
	// DefaultMaxFieldLength 文本字段默认截断上限（字节）。
	DefaultMaxFieldLength = 64 * 1024

	// UnknownSender 发件地址缺失时的占位值。
	UnknownSender = "unknown@unknown"
	// DefaultSubject 主题缺失时的占位值。
	DefaultSubject = "(no subject)"
)

// Policy 文本字段的截断策略，在格式提取之后统一应用。
type Policy struct {
	MaxFieldLength int // 正文与 HTML 各自的最大保留长度（字节）
}

// Normalizer 将任意入站 webhook 载荷规范化为统一的邮件记录。
// 纯函数式组件：无副作用，不访问存储。
type Normalizer struct {
	policy Policy
}

// NewNormalizer 创建规范化器。MaxFieldLength 非正时使用默认值。
func NewNormalizer(policy Policy) *Normalizer {
	if policy.MaxFieldLength <= 0 {
		policy.MaxFieldLength = DefaultMaxFieldLength
	}
	return &Normalizer{policy: policy}
}

// Normalize 对原始请求体做格式识别与字段提取。
//
// 各格式按固定优先级尝试，先匹配者生效。顺序是设计决策而非巧合：
// 同一载荷可能同时满足多个格式的判定条件（如事件 JSON 也是合法的
// 通用 JSON），优先级保证结果可预测。
func (n *Normalizer) Normalize(body []byte, contentType string) Result {
	p := classify(body, contentType)

	for _, v := range variants {
		if !v.match(p) {
			continue
		}
		email, err := v.extract(p)
		if err != nil {
			if err == errNoRecipient {
				// 匹配到格式但缺少收件地址：规范化失败，按无法识别上报
				return Result{Status: StatusUnrecognized, Shape: v.shape}
			}
			return Result{Status: StatusParseFailed, Shape: v.shape}
		}
		n.Finalize(email)
		return Result{Status: StatusRecognized, Shape: v.shape, Email: email}
	}

	return Result{Status: StatusUnrecognized}
}

// NormalizeRawMIME 跳过格式识别，按原始 MIME 报文直接解析。
// 用于 SMTP 接收路径：报文格式由传输层保证。
func (n *Normalizer) NormalizeRawMIME(raw []byte) Result {
	email, err := extractRawMIME(&payload{raw: raw})
	if err != nil {
		if err == errNoRecipient {
			return Result{Status: StatusUnrecognized, Shape: ShapeRawMIME}
		}
		return Result{Status: StatusParseFailed, Shape: ShapeRawMIME}
	}
	n.Finalize(email)
	return Result{Status: StatusRecognized, Shape: ShapeRawMIME, Email: email}
}

// Finalize 对提取结果做统一收尾：地址提取、占位值、截断。
func (n *Normalizer) Finalize(email *Email) {
	email.Recipient = strings.ToLower(ExtractAddress(email.Recipient))

	if email.Sender == "" {
		email.Sender = UnknownSender
	} else {
		email.Sender = strings.ToLower(ExtractAddress(email.Sender))
	}

	if email.Subject == "" {
		email.Subject = DefaultSubject
	}

	if truncate(&email.Text, n.policy.MaxFieldLength) {
		email.Truncated = true
	}
	if truncate(&email.HTML, n.policy.MaxFieldLength) {
		email.Truncated = true
	}
}

// ExtractAddress 从 "Display Name <addr@domain>" 形式的字段中提取纯地址。
// 不带尖括号包装的值原样返回。
func ExtractAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Address
	}

	// 解析失败时手工剥离尖括号包装
	if i := strings.LastIndex(raw, "<"); i >= 0 {
		if j := strings.Index(raw[i:], ">"); j > 1 {
			return strings.TrimSpace(raw[i+1 : i+j])
		}
	}
	return raw
}

// truncate 将字符串截断到 max 字节，发生截断时返回 true。
func truncate(s *string, max int) bool {
	if len(*s) <= max {
		return false
	}
	*s = (*s)[:max]
	return true
}
