package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"tempinbox/backend/internal/domain"
)

// extractRawMIME 将原始 MIME 文本解析为规范记录。
// 头部、纯文本与 HTML 正文、附件描述各自独立提取；
// 解析失败返回错误，由调用方归类为 ParseFailed。
func extractRawMIME(p *payload) (*Email, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(p.raw))
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}
	defer mr.Close()

	header := mr.Header

	email := &Email{}
	if list, err := header.AddressList("To"); err == nil && len(list) > 0 {
		email.Recipient = list[0].Address
	} else {
		email.Recipient = header.Get("To")
	}
	if email.Recipient == "" {
		return nil, errNoRecipient
	}

	email.Sender = header.Get("From")
	if subject, err := header.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = header.Get("Subject")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mail part: %w", err)
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, err := h.ContentType()
			if err != nil {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(contentType, "text/html") {
				if email.HTML == "" {
					email.HTML = string(body)
				}
			} else if email.Text == "" {
				email.Text = string(body)
			}

		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				filename = "unnamed"
			}
			contentType, _, _ := h.ContentType()

			// 只保留附件描述，内容丢弃
			size, _ := io.Copy(io.Discard, part.Body)

			email.Attachments = append(email.Attachments, domain.Attachment{
				ID:          uuid.NewString(),
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}

	return email, nil
}
