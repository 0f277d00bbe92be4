package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
)

// errNoRecipient 表示匹配到格式但提取不出收件地址。
var errNoRecipient = errors.New("no recipient in payload")

// payload 是对原始请求体的分类视图：
// 表单类载荷解析为扁平 fields，JSON 对象解析为 object，
// 两者都失败时只保留 raw 供 MIME 识别。
type payload struct {
	raw    []byte
	fields map[string]string
	object map[string]any
}

type variant struct {
	shape   Shape
	match   func(p *payload) bool
	extract func(p *payload) (*Email, error)
}

// variants 按固定优先级排列。顺序变更会改变歧义载荷的归属，
// 必须与 Normalize 的文档保持一致。
var variants = []variant{
	{ShapeEventJSON, matchEventJSON, extractEventJSON},
	{ShapeFormFields, matchFormFields, extractFormFields},
	{ShapeRawMIME, matchRawMIME, extractRawMIME},
	{ShapeGenericJSON, matchGenericJSON, extractGenericJSON},
}

// classify 按声明的媒体类型解析请求体。
// 媒体类型缺失或不符时退回到按内容嗅探 JSON 对象。
func classify(body []byte, contentType string) *payload {
	p := &payload{raw: body}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(body)); err == nil {
			p.fields = flattenValues(values)
		}
	case mediaType == "multipart/form-data":
		if boundary := params["boundary"]; boundary != "" {
			p.fields = parseMultipartFields(body, boundary)
		}
	}

	if p.fields == nil {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var obj map[string]any
			if json.Unmarshal(trimmed, &obj) == nil {
				p.object = obj
			}
		}
	}

	return p
}

func flattenValues(values url.Values) map[string]string {
	fields := make(map[string]string, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return fields
}

// parseMultipartFields 只提取 multipart 表单的普通字段，忽略文件部分。
func parseMultipartFields(body []byte, boundary string) map[string]string {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	form, err := reader.ReadForm(32 << 20)
	if err != nil {
		return nil
	}
	defer form.RemoveAll()

	fields := make(map[string]string, len(form.Value))
	for key, values := range form.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields
}

// stringField 按既定顺序查找扁平字段：先查表单字段，再查 JSON
// 对象中的字符串值。
func (p *payload) stringField(keys ...string) string {
	for _, key := range keys {
		if p.fields != nil {
			if value := p.fields[key]; value != "" {
				return value
			}
		}
		if p.object != nil {
			if value, ok := p.object[key].(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}

// ========== 事件包裹型 JSON ==========

func matchEventJSON(p *payload) bool {
	if p.object == nil {
		return false
	}
	_, ok := p.object["event-data"].(map[string]any)
	return ok
}

// extractEventJSON 从投递事件通知中提取邮件元信息。
// 该格式不携带正文，正文合成为一句描述性文本。
func extractEventJSON(p *payload) (*Email, error) {
	eventData := p.object["event-data"].(map[string]any)

	event, _ := eventData["event"].(string)
	recipient, _ := eventData["recipient"].(string)

	var from, subject, to string
	if message, ok := eventData["message"].(map[string]any); ok {
		if headers, ok := message["headers"].(map[string]any); ok {
			from, _ = headers["from"].(string)
			subject, _ = headers["subject"].(string)
			to, _ = headers["to"].(string)
		}
	}

	if recipient == "" {
		recipient = to
	}
	if recipient == "" {
		return nil, errNoRecipient
	}
	if event == "" {
		event = "delivered"
	}

	return &Email{
		Recipient: recipient,
		Sender:    from,
		Subject:   subject,
		Text:      fmt.Sprintf("[%s] delivery event for %s (message content not forwarded by provider)", event, recipient),
	}, nil
}

// ========== 扁平表单字段 ==========

func matchFormFields(p *payload) bool {
	return p.stringField("recipient") != ""
}

func extractFormFields(p *payload) (*Email, error) {
	recipient := p.stringField("recipient")
	if recipient == "" {
		return nil, errNoRecipient
	}

	return &Email{
		Recipient: recipient,
		Sender:    p.stringField("sender", "from"),
		Subject:   p.stringField("subject"),
		Text:      p.stringField("body-plain", "stripped-text"),
		HTML:      p.stringField("body-html", "stripped-html"),
	}, nil
}

// ========== 原始 MIME 文本 ==========

func matchRawMIME(p *payload) bool {
	if p.fields != nil || p.object != nil {
		return false
	}
	return bytes.Contains(p.raw, []byte("From:")) && bytes.Contains(p.raw, []byte("To:"))
}

// ========== 通用 JSON ==========

var (
	genericToKeys   = []string{"to", "To", "recipient"}
	genericFromKeys = []string{"from", "From", "sender"}
	genericTextKeys = []string{"text", "body", "plain"}
	genericHTMLKeys = []string{"html", "bodyHtml", "body_html"}
)

func matchGenericJSON(p *payload) bool {
	if p.object == nil {
		return false
	}
	return p.stringField(genericToKeys...) != ""
}

func extractGenericJSON(p *payload) (*Email, error) {
	recipient := p.stringField(genericToKeys...)
	if recipient == "" {
		return nil, errNoRecipient
	}

	return &Email{
		Recipient: recipient,
		Sender:    p.stringField(genericFromKeys...),
		Subject:   p.stringField("subject"),
		Text:      p.stringField(genericTextKeys...),
		HTML:      p.stringField(genericHTMLKeys...),
	}, nil
}
