package sql

import (
	"database/sql"
	"errors"
	"time"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// ========== Message Repository ==========

// InsertMessage 插入邮件并返回数据库分配的自增 ID
func (s *Store) InsertMessage(message *domain.Message) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	if s.driverName == "postgres" {
		query := s.rebind(`
			INSERT INTO messages (recipient, sender, subject, body_text, body_html, truncated, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`)
		err = tx.QueryRow(query,
			message.Recipient,
			message.Sender,
			message.Subject,
			message.BodyText,
			message.BodyHTML,
			message.Truncated,
			message.ReceivedAt,
		).Scan(&id)
		if err != nil {
			return 0, err
		}
	} else {
		query := `
			INSERT INTO messages (recipient, sender, subject, body_text, body_html, truncated, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		result, execErr := tx.Exec(query,
			message.Recipient,
			message.Sender,
			message.Subject,
			message.BodyText,
			message.BodyHTML,
			message.Truncated,
			message.ReceivedAt,
		)
		if execErr != nil {
			return 0, execErr
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, err
		}
	}

	attachQuery := s.rebind(`
		INSERT INTO attachments (id, message_id, filename, content_type, size)
		VALUES (?, ?, ?, ?, ?)
	`)
	for i := range message.Attachments {
		att := &message.Attachments[i]
		att.MessageID = id
		if _, err := tx.Exec(attachQuery, att.ID, att.MessageID, att.Filename, att.ContentType, att.Size); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	message.ID = id
	return id, nil
}

// ListMessagesByRecipient 按收件地址倒序查询邮件
func (s *Store) ListMessagesByRecipient(address string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := s.rebind(`
		SELECT id, recipient, sender, subject, body_text, body_html, truncated, received_at
		FROM messages
		WHERE recipient = ?
		ORDER BY id DESC
		LIMIT ?
	`)
	rows, err := s.db.Query(query, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Recipient,
			&msg.Sender,
			&msg.Subject,
			&msg.BodyText,
			&msg.BodyHTML,
			&msg.Truncated,
			&msg.ReceivedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		attachments, err := s.listAttachments(messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].Attachments = attachments
	}
	return messages, nil
}

// GetMessage 根据 ID 获取单封邮件
func (s *Store) GetMessage(id int64) (*domain.Message, error) {
	query := s.rebind(`
		SELECT id, recipient, sender, subject, body_text, body_html, truncated, received_at
		FROM messages
		WHERE id = ?
	`)

	var msg domain.Message
	err := s.db.QueryRow(query, id).Scan(
		&msg.ID,
		&msg.Recipient,
		&msg.Sender,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.Truncated,
		&msg.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	attachments, err := s.listAttachments(msg.ID)
	if err != nil {
		return nil, err
	}
	msg.Attachments = attachments
	return &msg, nil
}

// DeleteMessage 删除指定邮件及其附件记录
func (s *Store) DeleteMessage(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.rebind(`DELETE FROM attachments WHERE message_id = ?`), id); err != nil {
		return err
	}

	result, err := tx.Exec(s.rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrMessageNotFound
	}

	return tx.Commit()
}

// DeleteMessagesOlderThan 删除接收时间早于 cutoff 的邮件，返回删除数量
func (s *Store) DeleteMessagesOlderThan(cutoff time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	attachQuery := s.rebind(`
		DELETE FROM attachments
		WHERE message_id IN (SELECT id FROM messages WHERE received_at < ?)
	`)
	if _, err := tx.Exec(attachQuery, cutoff); err != nil {
		return 0, err
	}

	result, err := tx.Exec(s.rebind(`DELETE FROM messages WHERE received_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

// GetStats 返回存储统计
func (s *Store) GetStats() (*domain.StoreStats, error) {
	stats := &domain.StoreStats{}

	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT recipient) FROM messages`).
		Scan(&stats.TotalMessages, &stats.DistinctRecipients)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	query := s.rebind(`SELECT COUNT(*) FROM messages WHERE received_at >= ?`)

	if err := s.db.QueryRow(query, now.Add(-time.Hour)).Scan(&stats.ReceivedLastHour); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(query, now.Add(-24*time.Hour)).Scan(&stats.ReceivedLast24h); err != nil {
		return nil, err
	}
	return stats, nil
}

// listAttachments 查询某封邮件的附件描述
func (s *Store) listAttachments(messageID int64) ([]domain.Attachment, error) {
	query := s.rebind(`
		SELECT id, message_id, filename, content_type, size
		FROM attachments
		WHERE message_id = ?
		ORDER BY id
	`)
	rows, err := s.db.Query(query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Filename, &att.ContentType, &att.Size); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}
