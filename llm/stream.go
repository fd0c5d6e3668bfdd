package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// maxErrorBody bounds how much of a failed response body is kept
	maxErrorBody = 4 * 1024
)

// streamChunk is one SSE data frame. Content is a pointer so an absent delta
// can be told apart from an empty one.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream is a lazy sequence of response snapshots. Each value returned by
// Recv is the complete text accumulated so far.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *bufio.Reader
	agg    Aggregator

	cancelled atomic.Bool
	closeOnce sync.Once

	recvMu   sync.Mutex
	finished bool
	finalErr error

	textMu sync.RWMutex
	text   string
}

// Stream opens a streaming chat completion
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := c.post(streamCtx, c.stream, c.chatRequest(req, true), "text/event-stream")
	if err != nil {
		cancel()
		return nil, err
	}

	return newStream(streamCtx, cancel, resp.Body), nil
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser) *Stream {
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next snapshot. It returns io.EOF once the stream ended on
// the [DONE] sentinel, end of body, or cancellation. A read failure returns a
// *StreamError carrying the partial text.
func (s *Stream) Recv() (string, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.finished {
		return "", s.finalErr
	}

	for {
		line, err := s.reader.ReadString('\n')

		// Checked once per received line
		if s.isCancelled() {
			return s.finish(io.EOF)
		}

		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return s.finish(io.EOF)
			}
			return s.finish(&StreamError{
				Partial: s.Text(),
				Err:     &Error{Kind: KindNetwork, Err: err},
			})
		}

		delta, ok, done := parseLine(line)
		if done {
			return s.finish(io.EOF)
		}
		if ok {
			snapshot := s.agg.Fold(delta)
			s.textMu.Lock()
			s.text = snapshot
			s.textMu.Unlock()
			return snapshot, nil
		}
		if err != nil {
			return s.finish(io.EOF)
		}
	}
}

// parseLine decodes one SSE line. Lines that are not data frames, fail to
// decode, or carry no delta are skipped.
func parseLine(line string) (delta string, ok bool, done bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, false
	}

	data := strings.TrimPrefix(line, dataPrefix)
	if data == doneSentinel {
		return "", false, true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return "", false, false
	}
	return *chunk.Choices[0].Delta.Content, true, false
}

func (s *Stream) isCancelled() bool {
	if s.cancelled.Load() {
		return true
	}
	return errors.Is(s.ctx.Err(), context.Canceled)
}

func (s *Stream) finish(err error) (string, error) {
	s.finished = true
	s.finalErr = err
	s.Close()
	return "", err
}

// Text returns the last snapshot
func (s *Stream) Text() string {
	s.textMu.RLock()
	defer s.textMu.RUnlock()
	return s.text
}

// Cancel stops the stream. A blocked Recv returns io.EOF and the text
// accumulated so far stays available through Text.
func (s *Stream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Close releases the response body
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
