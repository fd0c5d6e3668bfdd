package chat

import (
	"time"

	"github.com/google/uuid"

	"overlay-llm-client/llm"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry of the conversation log. Messages are never modified
// after they are appended.
type Message struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	Sender      Sender           `json:"sender"`
	CreatedAt   time.Time        `json:"created_at"`
	Attachments []llm.Attachment `json:"attachments,omitempty"`
	Model       string           `json:"model,omitempty"`    // assistant only
	Template    string           `json:"template,omitempty"` // user only
	IsError     bool             `json:"is_error,omitempty"`
}

func newMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    sender,
		CreatedAt: time.Now(),
	}
}

// IsUser reports whether the message was written by the user
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}
