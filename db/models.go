package db

import "time"

// Conversation represents a chat session stored in history
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single committed message in a conversation
type Message struct {
	ID              int64     `json:"id"`
	UID             string    `json:"uid"` // chat message id
	ConversationID  int64     `json:"conversation_id"`
	Sender          string    `json:"sender"` // "user" or "assistant"
	Content         string    `json:"content"`
	Model           string    `json:"model"`
	Template        string    `json:"template"`
	IsError         bool      `json:"is_error"`
	AttachmentCount int       `json:"attachment_count"`
	CreatedAt       time.Time `json:"created_at"`
}
