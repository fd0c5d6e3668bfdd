package cli

import (
	"fmt"

	"overlay-llm-client/chat"
	"overlay-llm-client/db"
	"overlay-llm-client/utils"
)

// historyRecorder stores committed session messages in the database. The
// conversation row is created with the first message so empty sessions leave
// no trace.
type historyRecorder struct {
	db       *db.DB
	provider string
	convID   int64
}

func newHistoryRecorder(database *db.DB, provider string) *historyRecorder {
	return &historyRecorder{db: database, provider: provider}
}

// RecordMessage implements chat.Recorder
func (h *historyRecorder) RecordMessage(msg chat.Message) error {
	if h.convID == 0 {
		title := truncate(msg.Text, 60)
		if title == "" {
			title = "Image question"
		}
		conv, err := h.db.CreateConversation(title, h.provider)
		if err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
		h.convID = conv.ID
	}

	err := h.db.CreateMessage(&db.Message{
		UID:             msg.ID,
		ConversationID:  h.convID,
		Sender:          string(msg.Sender),
		Content:         msg.Text,
		Model:           msg.Model,
		Template:        msg.Template,
		IsError:         msg.IsError,
		AttachmentCount: len(msg.Attachments),
		CreatedAt:       msg.CreatedAt,
	})
	return utils.WrapError(err, "failed to save message")
}

// ResetConversation implements chat.Recorder; the next message starts a new
// conversation
func (h *historyRecorder) ResetConversation() error {
	h.convID = 0
	return nil
}

// ConversationID returns the current conversation, 0 before the first message
func (h *historyRecorder) ConversationID() int64 {
	return h.convID
}
