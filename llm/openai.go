package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client talks to an OpenAI-compatible chat-completion API (OpenAI or Groq)
type Client struct {
	api     *openai.Client
	http    *http.Client
	stream  *http.Client // no deadline on the body; Timeout bounds the headers
	baseURL string
	config  Config
}

// NewClient creates a new client. A malformed base URL is reported as
// KindInvalidURL.
func NewClient(config Config) (*Client, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.BaseURL == "" {
		config.BaseURL = config.Provider.DefaultBaseURL()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if err := validateBaseURL(config.BaseURL); err != nil {
		return nil, err
	}
	if config.ImageMaxTokens == 0 {
		config.ImageMaxTokens = DefaultImageMaxTokens
	}
	if config.TranscriptionModel == "" {
		config.TranscriptionModel = config.Provider.TranscriptionModel()
	}

	httpClient, streamClient := config.HTTPClient, config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = config.Timeout
		httpClient = &http.Client{Timeout: config.Timeout, Transport: transport}
		streamClient = &http.Client{Transport: transport}
	}

	// Allow empty API key - the server rejects the request at runtime
	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = httpClient

	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		http:    httpClient,
		stream:  streamClient,
		baseURL: config.BaseURL,
		config:  config,
	}, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &Error{Kind: KindInvalidURL, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Kind: KindInvalidURL, Err: fmt.Errorf("unsupported endpoint %q", raw)}
	}
	return nil
}

// Provider returns the configured provider
func (c *Client) Provider() Provider {
	return c.config.Provider
}

// ValidateConfig validates the configuration
func (c *Client) ValidateConfig() error {
	if c.config.APIKey == "" {
		return fmt.Errorf("%s API key is required", c.config.Provider.DisplayName())
	}
	return nil
}

// Send issues the request and returns the final text. In streaming mode
// onPartial receives the full accumulated text after every delta; each call
// replaces the previous one. Cancelling ctx ends a stream without error and
// the text accumulated so far is returned.
func (c *Client) Send(ctx context.Context, req Request, onPartial func(string)) (string, error) {
	if !req.Stream {
		return c.Complete(ctx, req)
	}

	stream, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	for {
		snapshot, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return stream.Text(), nil
		}
		if err != nil {
			return stream.Text(), err
		}
		if onPartial != nil {
			onPartial(snapshot)
		}
	}
}

// completionResponse is the non-streaming reply. Content is a pointer so a
// missing field fails instead of reading as an empty answer.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements non-streaming chat
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.post(ctx, c.http, c.chatRequest(req, false), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", classifyError(ctx, err)
	}

	if len(completion.Choices) == 0 {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New("no choices in response")}
	}
	content := completion.Choices[0].Message.Content
	if content == nil {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New("no message content in response")}
	}

	return strings.TrimSpace(*content), nil
}

// post sends a chat-completion body and returns the response of a 2xx status.
// Other statuses are reported as KindServerError with the body as message.
func (c *Client) post(ctx context.Context, httpClient *http.Client, body wireRequest, accept string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Err: err}
	}
	c.setHeaders(httpReq, accept)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &Error{
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s", strings.TrimSpace(string(msg))),
		}
	}
	return resp, nil
}

// Transcribe converts recorded audio to text using the provider's fixed
// transcription model
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.m4a"
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", classifyError(ctx, err)
	}

	return resp.Text, nil
}

// wireRequest is the chat-completion body. Stream shadows the embedded
// omitempty field so "stream" is always sent.
type wireRequest struct {
	openai.ChatCompletionRequest
	Stream bool `json:"stream"`
}

// chatRequest converts a Request to the OpenAI wire format
func (c *Client) chatRequest(req Request, stream bool) wireRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
		if len(req.Images) > 0 {
			maxTokens = c.config.ImageMaxTokens
		}
	}

	return wireRequest{
		ChatCompletionRequest: openai.ChatCompletionRequest{
			Model:     req.Model,
			Messages:  []openai.ChatCompletionMessage{convertMessage(req)},
			MaxTokens: maxTokens,
		},
		Stream: stream,
	}
}

// convertMessage builds the single user message, multimodal when images are
// attached
func convertMessage(req Request) openai.ChatCompletionMessage {
	if len(req.Images) == 0 {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		},
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: imageDataURL(img),
			},
		})
	}

	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

// imageDataURL encodes an image as a PNG data URL. Data that is not PNG is
// re-encoded; bytes that cannot be decoded are sent with their own type.
func imageDataURL(att Attachment) string {
	mimeType, data := "image/png", att.Data
	if att.MimeType != "" && att.MimeType != "image/png" {
		if img, _, err := image.Decode(bytes.NewReader(att.Data)); err == nil {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err == nil {
				data = buf.Bytes()
			} else {
				mimeType = att.MimeType
			}
		} else {
			mimeType = att.MimeType
		}
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// setHeaders sets the required headers for chat-completion requests
func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", accept)
}
