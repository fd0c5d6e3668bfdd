package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider identifies a hosted chat-completion API
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// DefaultImageMaxTokens caps vision responses when no explicit limit is set
const DefaultImageMaxTokens = 1000

// ParseProvider parses a provider name (case-insensitive)
func ParseProvider(name string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderOpenAI, "":
		return ProviderOpenAI, nil
	case ProviderGroq:
		return ProviderGroq, nil
	}
	return "", fmt.Errorf("unknown provider: %q", name)
}

// DisplayName returns the provider name for display
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGroq:
		return "Groq"
	default:
		return "OpenAI"
	}
}

// DefaultBaseURL returns the API root for the provider
func (p Provider) DefaultBaseURL() string {
	switch p {
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

// TranscriptionModel returns the fixed speech-to-text model of the provider
func (p Provider) TranscriptionModel() string {
	switch p {
	case ProviderGroq:
		return "whisper-large-v3-turbo"
	default:
		return "whisper-1"
	}
}

// Attachment represents an image attached to a user turn
type Attachment struct {
	Type     string `json:"type"`      // "image"
	MimeType string `json:"mime_type"` // "image/png"
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
}

// Request is a single-turn chat request
type Request struct {
	Model     string
	Prompt    string
	Images    []Attachment
	Stream    bool
	MaxTokens int
}

// Config represents transport configuration. It is passed explicitly so the
// client never reads ambient settings.
type Config struct {
	Provider           Provider
	APIKey             string
	BaseURL            string
	Timeout            time.Duration // whole request, or response headers when streaming; 0 means none
	MaxTokens          int           // 0 lets the API decide
	ImageMaxTokens     int
	TranscriptionModel string
	HTTPClient         *http.Client
}
