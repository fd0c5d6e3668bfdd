package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"overlay-llm-client/db"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// ParseExportFormat parses "json", "markdown" or "md"
func ParseExportFormat(name string) (ExportFormat, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format: %q", name)
}

// ConversationExport represents a conversation export structure
type ConversationExport struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Provider  string            `json:"provider"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []MessageExport   `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageExport represents a message export structure
type MessageExport struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Model       string    `json:"model,omitempty"`
	Template    string    `json:"template,omitempty"`
	IsError     bool      `json:"is_error,omitempty"`
	Attachments int       `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func buildExport(database *db.DB, conv *db.Conversation) (*ConversationExport, error) {
	messages, err := database.ListMessages(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	export := &ConversationExport{
		ID:        conv.ID,
		Title:     conv.Title,
		Provider:  conv.Provider,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]MessageExport, 0, len(messages)),
	}
	for _, msg := range messages {
		export.Messages = append(export.Messages, MessageExport{
			ID:          msg.UID,
			Sender:      msg.Sender,
			Content:     msg.Content,
			Model:       msg.Model,
			Template:    msg.Template,
			IsError:     msg.IsError,
			Attachments: msg.AttachmentCount,
			CreatedAt:   msg.CreatedAt,
		})
	}
	return export, nil
}

func exportMetadata() map[string]string {
	return map[string]string{
		"export_version": "1.0",
		"export_date":    time.Now().Format(time.RFC3339),
		"app_name":       "Overlay LLM Client",
	}
}

// ExportConversationToJSON exports a single conversation to JSON format
func ExportConversationToJSON(database *db.DB, conversationID int64, filepath string) error {
	conv, err := database.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}

	export, err := buildExport(database, conv)
	if err != nil {
		return err
	}
	export.Metadata = exportMetadata()

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ConversationMarkdown renders a conversation as Markdown
func ConversationMarkdown(database *db.DB, conversationID int64) (string, error) {
	conv, err := database.GetConversation(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}
	messages, err := database.ListMessages(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}

	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))
	if conv.Provider != "" {
		sb.WriteString(fmt.Sprintf("**Provider**: %s\n\n", conv.Provider))
	}
	sb.WriteString(fmt.Sprintf("**Created**: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Updated**: %s\n\n", conv.UpdatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString("---\n\n")

	for i, msg := range messages {
		if msg.Sender == "assistant" {
			sb.WriteString("## Assistant\n\n")
			if msg.Model != "" {
				sb.WriteString(fmt.Sprintf("*%s*\n\n", msg.Model))
			}
		} else {
			sb.WriteString("## You\n\n")
			if msg.AttachmentCount > 0 {
				sb.WriteString(fmt.Sprintf("*%d image(s) attached*\n\n", msg.AttachmentCount))
			}
		}

		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		// Separator (except for last message)
		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return sb.String(), nil
}

// ExportConversationToMarkdown exports a single conversation to Markdown format
func ExportConversationToMarkdown(database *db.DB, conversationID int64, filepath string) error {
	content, err := ConversationMarkdown(database, conversationID)
	if err != nil {
		return err
	}

	content += fmt.Sprintf("\n---\n\n*Exported: %s*\n", time.Now().Format("2006-01-02 15:04:05"))

	if err := os.WriteFile(filepath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// allExport is the file layout of ExportAllConversations
type allExport struct {
	Metadata      map[string]string    `json:"metadata"`
	Conversations []ConversationExport `json:"conversations"`
}

// ExportAllConversations exports all conversations to a single JSON file
func ExportAllConversations(database *db.DB, filepath string) error {
	conversations, err := database.ListConversations(-1, 0)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	out := allExport{
		Metadata:      exportMetadata(),
		Conversations: make([]ConversationExport, 0, len(conversations)),
	}
	for _, conv := range conversations {
		export, err := buildExport(database, conv)
		if err != nil {
			return fmt.Errorf("failed to export conversation %d: %w", conv.ID, err)
		}
		out.Conversations = append(out.Conversations, *export)
	}
	out.Metadata["total_count"] = fmt.Sprintf("%d", len(out.Conversations))

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ImportConversations imports a file written by ExportConversationToJSON or
// ExportAllConversations and returns how many conversations were created.
// Message ids are regenerated so an import never collides with history.
func ImportConversations(database *db.DB, filepath string) (int, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var exports []ConversationExport
	var all allExport
	if err := json.Unmarshal(data, &all); err == nil && all.Conversations != nil {
		exports = all.Conversations
	} else {
		var single ConversationExport
		if err := json.Unmarshal(data, &single); err != nil {
			return 0, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
		exports = []ConversationExport{single}
	}

	count := 0
	for _, export := range exports {
		if export.Title == "" || len(export.Messages) == 0 {
			continue
		}

		conv, err := database.CreateConversation(export.Title, export.Provider)
		if err != nil {
			return count, fmt.Errorf("failed to create conversation: %w", err)
		}

		for _, m := range export.Messages {
			err := database.CreateMessage(&db.Message{
				UID:             uuid.New().String(),
				ConversationID:  conv.ID,
				Sender:          m.Sender,
				Content:         m.Content,
				Model:           m.Model,
				Template:        m.Template,
				IsError:         m.IsError,
				AttachmentCount: m.Attachments,
				CreatedAt:       m.CreatedAt,
			})
			if err != nil {
				return count, fmt.Errorf("failed to create message: %w", err)
			}
		}

		count++
	}

	return count, nil
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat) string {
	// Sanitize title for filename
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			return '_'
		}
		return r
	}, title)

	// Truncate if too long
	if runes := []rune(sanitized); len(runes) > 50 {
		sanitized = string(runes[:50])
	}

	timestamp := time.Now().Format("20060102_150405")
	ext := string(format)
	if format == FormatMarkdown {
		ext = "md"
	}

	return fmt.Sprintf("%s_%s.%s", sanitized, timestamp, ext)
}
