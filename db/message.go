package db

import (
	"fmt"
	"time"
)

const messageColumns = "id, uid, conversation_id, sender, content, model, template, is_error, attachment_count, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner, extra ...any) (*Message, error) {
	var msg Message
	dest := []any{&msg.ID, &msg.UID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.Model, &msg.Template, &msg.IsError, &msg.AttachmentCount, &msg.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateMessage stores a committed message. msg.ID is assigned from the
// database; msg.CreatedAt defaults to now.
func (db *DB) CreateMessage(msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	result, err := db.conn.Exec(
		"INSERT INTO messages (uid, conversation_id, sender, content, model, template, is_error, attachment_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		msg.UID, msg.ConversationID, msg.Sender, msg.Content, msg.Model, msg.Template, msg.IsError, msg.AttachmentCount, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get message ID: %w", err)
	}
	msg.ID = id

	// Update conversation's updated_at timestamp
	return db.TouchConversation(msg.ConversationID)
}

// GetMessage retrieves a message by its chat id
func (db *DB) GetMessage(uid string) (*Message, error) {
	msg, err := scanMessage(db.conn.QueryRow("SELECT "+messageColumns+" FROM messages WHERE uid = ?", uid))
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves all messages in a conversation in order
func (db *DB) ListMessages(conversationID int64) ([]*Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
