// Package voice turns recorded speech into chat input: the recording is
// transcribed and, optionally, cleaned up by the model before it is sent.
package voice

import (
	"context"
	"fmt"
	"strings"

	"overlay-llm-client/llm"
	"overlay-llm-client/prompt"
	"overlay-llm-client/utils"
)

// Transcriber converts audio to text. *llm.Client implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Completer answers a single prompt without streaming. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Result is the outcome of processing one recording
type Result struct {
	Raw        string // transcript as returned by the API
	Text       string // text to send as the turn
	Enhanced   bool
	EnhanceErr error // set when enhancement failed and Text fell back to Raw
}

// Pipeline transcribes recordings and optionally corrects the transcript
type Pipeline struct {
	transcriber Transcriber
	completer   Completer
	enhance     bool
	model       string
	logger      *utils.Logger
}

// NewPipeline creates a pipeline. model is used for the correction request;
// completer may be nil when enhance is false.
func NewPipeline(transcriber Transcriber, completer Completer, enhance bool, model string, logger *utils.Logger) *Pipeline {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Pipeline{
		transcriber: transcriber,
		completer:   completer,
		enhance:     enhance && completer != nil,
		model:       model,
		logger:      logger,
	}
}

// Process transcribes audio. An empty transcript yields an empty Result and
// no correction request. A failed correction falls back to the raw transcript.
func (p *Pipeline) Process(ctx context.Context, audio []byte, filename string) (*Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty recording")
	}

	raw, err := p.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}

	raw = strings.TrimSpace(raw)
	result := &Result{Raw: raw, Text: raw}
	if raw == "" || !p.enhance {
		return result, nil
	}

	corrected, err := p.completer.Complete(ctx, llm.Request{
		Model:  p.model,
		Prompt: prompt.Correction(raw),
	})
	if err != nil {
		p.logger.Warn("Transcript enhancement failed, using raw transcript: %v", err)
		result.EnhanceErr = err
		return result, nil
	}

	corrected = strings.TrimSpace(corrected)
	if corrected == "" {
		return result, nil
	}
	result.Text = corrected
	result.Enhanced = true
	p.logger.Debug("Transcript enhanced: %q -> %q", raw, corrected)
	return result, nil
}
