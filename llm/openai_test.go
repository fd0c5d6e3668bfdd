package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Provider: ProviderOpenAI,
		APIKey:   "sk-test",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)
	return client
}

func deltaFrame(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			io.WriteString(w, f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func TestSend_StreamingSnapshotsArePrefixes(t *testing.T) {
	client := newTestClient(t, sseHandler(
		deltaFrame("Hel"),
		deltaFrame("lo"),
		deltaFrame(" there"),
		"data: [DONE]\n\n",
	))

	var got []string
	final, err := client.Send(context.Background(), Request{Model: "gpt-3.5-turbo", Prompt: "hi", Stream: true}, func(s string) {
		got = append(got, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "Hello", "Hello there"}, got)
	assert.Equal(t, "Hello there", final)

	for i := 1; i < len(got); i++ {
		assert.True(t, strings.HasPrefix(got[i], got[i-1]), "snapshot %d must extend %d", i, i-1)
	}
}

func TestSend_SkipsUnknownLines(t *testing.T) {
	client := newTestClient(t, sseHandler(
		": keep-alive comment\n",
		"event: ping\n",
		deltaFrame("A"),
		"data: {not json}\n",
		`data: {"choices":[]}`+"\n",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n",
		`data: {"type":"unknown"}`+"\n",
		deltaFrame("B"),
		"data: [DONE]\n",
		deltaFrame("ignored after done"),
	))

	var got []string
	final, err := client.Send(context.Background(), Request{Model: "m", Prompt: "p", Stream: true}, func(s string) {
		got = append(got, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "AB"}, got)
	assert.Equal(t, "AB", final)
}

func TestSend_StreamEndsAtEndOfBody(t *testing.T) {
	// Final frame has no trailing newline
	client := newTestClient(t, sseHandler(
		deltaFrame("one"),
		strings.TrimSuffix(deltaFrame(" two"), "\n\n"),
	))

	final, err := client.Send(context.Background(), Request{Model: "m", Prompt: "p", Stream: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "one two", final)
}

func TestSend_RequestShape(t *testing.T) {
	var captured map[string]any
	var auth, contentType, path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		sseHandler("data: [DONE]\n")(w, r)
	})

	_, err := client.Send(context.Background(), Request{Model: "gpt-4-turbo", Prompt: "compiled prompt", Stream: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "gpt-4-turbo", captured["model"])
	assert.Equal(t, true, captured["stream"])
	_, hasMax := captured["max_tokens"]
	assert.False(t, hasMax)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "compiled prompt", msg["content"])
}

func TestSend_ImageRequestUsesMultipartContent(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		sseHandler(deltaFrame("ok"), "data: [DONE]\n")(w, r)
	})

	var photo bytes.Buffer
	require.NoError(t, jpeg.Encode(&photo, image.NewRGBA(image.Rect(0, 0, 4, 3)), nil))

	req := Request{
		Model:  "gpt-4o-mini",
		Prompt: "describe",
		Stream: true,
		Images: []Attachment{
			{Type: "image", MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
			{Type: "image", MimeType: "image/jpeg", Data: photo.Bytes()},
		},
	}
	_, err := client.Send(context.Background(), req, nil)
	require.NoError(t, err)

	assert.EqualValues(t, DefaultImageMaxTokens, captured["max_tokens"])
	msg := captured["messages"].([]any)[0].(map[string]any)
	parts := msg["content"].([]any)
	require.Len(t, parts, 3)

	text := parts[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "describe", text["text"])

	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/png;base64,iVBORw==", url)

	// JPEG input is converted to PNG
	url = parts[2].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width)
	assert.Equal(t, 3, cfg.Height)
}

func TestStream_ServerErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	_, err := client.Send(context.Background(), Request{Model: "m", Prompt: "p", Stream: true}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerError))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindServerError, e.Kind)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
}

func TestStream_CancelStopsWithoutError(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, deltaFrame("Partial respo"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	stream, err := client.Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)

	snapshot, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Partial respo", snapshot)

	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.Cancel()
	}()

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "Partial respo", stream.Text())

	// Finished streams keep returning EOF
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSend_ContextCancelReturnsPartial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, deltaFrame("abc"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	final, err := client.Send(ctx, Request{Model: "m", Prompt: "p", Stream: true}, func(s string) {
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", final)
}

func TestComplete_TrimsContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  final answer \n"}}]}`)
	})

	got, err := client.Send(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "final answer", got)
}

func TestComplete_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"down","type":"server_error"}}`, ErrServerError},
		{"unauthorized plain body", http.StatusUnauthorized, `nope`, ErrServerError},
		{"malformed json", http.StatusOK, `{"choices": [`, ErrInvalidResponse},
		{"missing choices", http.StatusOK, `{"id":"x"}`, ErrInvalidResponse},
		{"missing content", http.StatusOK, `{"choices":[{"message":{"role":"assistant"}}]}`, ErrInvalidResponse},
		{"empty body", http.StatusOK, ``, ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComplete_EmptyContentIsAnAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":""}}]}`)
	})

	got, err := client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSend_StreamOutlivesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, part := range []string{"slow ", "but ", "complete"} {
			io.WriteString(w, deltaFrame(part))
			w.(http.Flusher).Flush()
			time.Sleep(60 * time.Millisecond)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	final, err := client.Send(context.Background(), Request{Model: "m", Prompt: "p", Stream: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "slow but complete", final)
}

func TestStream_TimeoutWaitingForHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestSend_UnreachableHostIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: baseURL})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), Request{Model: "m", Prompt: "p", Stream: true}, nil)
	assert.ErrorIs(t, err, ErrNetwork)

	_, err = client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not a url", "ftp://example.com", "://missing-scheme", "http://"} {
		_, err := NewClient(Config{BaseURL: raw})
		assert.ErrorIs(t, err, ErrInvalidURL, raw)

		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, KindInvalidURL, kind)
	}
}

func TestNewClient_ProviderDefaults(t *testing.T) {
	client, err := NewClient(Config{Provider: ProviderGroq})
	require.NoError(t, err)
	assert.Equal(t, "https://api.groq.com/openai/v1", client.baseURL)
	assert.Equal(t, "whisper-large-v3-turbo", client.config.TranscriptionModel)
	assert.Error(t, client.ValidateConfig())

	client, err = NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, client.Provider())
	assert.Equal(t, "whisper-1", client.config.TranscriptionModel)
}

func TestTranscribe(t *testing.T) {
	var model, filename string
	var audio []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		model = r.FormValue("model")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		filename = header.Filename
		audio, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello world"}`)
	})

	text, err := client.Transcribe(context.Background(), []byte("RIFFdata"), "clip.m4a")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "whisper-1", model)
	assert.Equal(t, "clip.m4a", filename)
	assert.Equal(t, []byte("RIFFdata"), audio)
}

func TestTranscribe_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Transcribe(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, ErrServerError)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("Groq")
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, p)

	p, err = ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	_, err = ParseProvider("anthropic")
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindServerError, StatusCode: 500, Err: fmt.Errorf("API error: down")}
	assert.Equal(t, "server error (status 500): API error: down", err.Error())
	assert.Equal(t, "serverError", err.Kind.String())
}
