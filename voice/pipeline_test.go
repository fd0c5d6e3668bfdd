package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlay-llm-client/llm"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return s.text, s.err
}

type stubCompleter struct {
	reply string
	err   error
	reqs  []llm.Request
}

func (s *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.reply, s.err
}

func TestProcess_Enhanced(t *testing.T) {
	completer := &stubCompleter{reply: " What is a goroutine? "}
	p := NewPipeline(stubTranscriber{text: "what is a go routine"}, completer, true, "gpt-3.5-turbo", nil)

	res, err := p.Process(context.Background(), []byte("audio"), "clip.m4a")
	require.NoError(t, err)
	assert.Equal(t, "what is a go routine", res.Raw)
	assert.Equal(t, "What is a goroutine?", res.Text)
	assert.True(t, res.Enhanced)

	require.Len(t, completer.reqs, 1)
	assert.Equal(t, "gpt-3.5-turbo", completer.reqs[0].Model)
	assert.Contains(t, completer.reqs[0].Prompt, `"what is a go routine"`)
	assert.False(t, completer.reqs[0].Stream)
}

func TestProcess_EnhanceDisabled(t *testing.T) {
	completer := &stubCompleter{reply: "unused"}
	p := NewPipeline(stubTranscriber{text: "raw text"}, completer, false, "m", nil)

	res, err := p.Process(context.Background(), []byte("audio"), "")
	require.NoError(t, err)
	assert.Equal(t, "raw text", res.Text)
	assert.False(t, res.Enhanced)
	assert.Empty(t, completer.reqs)
}

func TestProcess_EnhanceFailureFallsBack(t *testing.T) {
	failure := &llm.Error{Kind: llm.KindServerError, StatusCode: 503}
	p := NewPipeline(stubTranscriber{text: "raw text"}, &stubCompleter{err: failure}, true, "m", nil)

	res, err := p.Process(context.Background(), []byte("audio"), "")
	require.NoError(t, err)
	assert.Equal(t, "raw text", res.Text)
	assert.False(t, res.Enhanced)
	assert.ErrorIs(t, res.EnhanceErr, llm.ErrServerError)
}

func TestProcess_EmptyTranscriptSkipsEnhancement(t *testing.T) {
	completer := &stubCompleter{reply: "x"}
	p := NewPipeline(stubTranscriber{text: "   "}, completer, true, "m", nil)

	res, err := p.Process(context.Background(), []byte("audio"), "")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Empty(t, completer.reqs)
}

func TestProcess_Errors(t *testing.T) {
	p := NewPipeline(stubTranscriber{err: errors.New("network down")}, nil, true, "m", nil)

	_, err := p.Process(context.Background(), []byte("audio"), "")
	assert.ErrorContains(t, err, "network down")

	_, err = p.Process(context.Background(), nil, "")
	assert.Error(t, err)
}
