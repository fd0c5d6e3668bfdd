package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptReader replays fixed input lines, then reports EOF
type scriptReader struct {
	lines   []string
	prompts []string
}

func (s *scriptReader) Prompt(p string) (string, error) {
	s.prompts = append(s.prompts, p)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func newTestRepl(t *testing.T, api *fakeAPI, flags *turnFlags, lines ...string) (*repl, *scriptReader, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := &app{configPath: setupCLI(t, api), out: &out, errOut: &out}
	require.NoError(t, a.load())
	t.Cleanup(a.close)

	runner, err := a.newTurnRunner(flags)
	require.NoError(t, err)
	t.Cleanup(runner.close)

	reader := &scriptReader{lines: lines}
	return &repl{runner: runner, reader: reader, out: &out}, reader, &out
}

func TestRepl_Conversation(t *testing.T) {
	api := &fakeAPI{answer: []string{"Hi ", "there."}}
	r, reader, out := newTestRepl(t, api, &turnFlags{noHistory: true},
		"/help",
		"/template long",
		"",
		"hello",
		"/history",
		"/quit",
		"never read",
	)

	require.NoError(t, r.loop(context.Background()))

	assert.Contains(t, out.String(), "/voice <path>")
	assert.Contains(t, out.String(), "Template set to long")
	assert.Contains(t, out.String(), "Hi there.")
	assert.Equal(t, "test-long", api.lastRequest(t)["model"])
	assert.Equal(t, []string{"[short]> ", "[short]> ", "[long]> ", "[long]> ", "[long]> ", "[long]> "}, reader.prompts)
	assert.Equal(t, []string{"never read"}, reader.lines)
	assert.Len(t, r.runner.session.Messages(), 2)
}

func TestRepl_CommandErrors(t *testing.T) {
	r, _, out := newTestRepl(t, &fakeAPI{}, &turnFlags{noHistory: true},
		"/bogus",
		"/template haiku",
		"/image",
		"/image "+filepath.Join(t.TempDir(), "missing.png"),
		"/send",
		"/voice",
	)

	require.NoError(t, r.loop(context.Background()))

	assert.Contains(t, out.String(), "unknown command /bogus")
	assert.Contains(t, out.String(), "usage: /image <path>")
	assert.Contains(t, out.String(), "no images attached")
	assert.Contains(t, out.String(), "usage: /voice <path>")
	assert.Empty(t, r.pending)
}

func TestRepl_ImageAndClear(t *testing.T) {
	api := &fakeAPI{answer: []string{"A red line."}}
	img := filepath.Join(t.TempDir(), "shot.png")
	writeTestPNG(t, img)

	r, _, out := newTestRepl(t, api, &turnFlags{},
		"/image "+img,
		"/send",
		"/clear",
		"/history",
	)

	require.NoError(t, r.loop(context.Background()))

	assert.Contains(t, out.String(), "1 image(s) will be sent")
	assert.Contains(t, out.String(), "A red line.")
	assert.Contains(t, out.String(), "Conversation cleared.")
	assert.Contains(t, out.String(), "No messages yet.")
	assert.Equal(t, "test-solution", api.lastRequest(t)["model"])
	assert.Contains(t, api.lastPrompt(t), "Analyze this image")
	assert.Zero(t, r.runner.history.ConversationID())
}

func TestRepl_Voice(t *testing.T) {
	api := &fakeAPI{answer: []string{"A lock."}}
	audio := filepath.Join(t.TempDir(), "q.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3 fake"), 0600))

	r, _, out := newTestRepl(t, api, &turnFlags{noHistory: true}, "/voice "+audio)
	r.runner.app.cfg.Voice.Enhance = false

	require.NoError(t, r.loop(context.Background()))

	assert.Contains(t, out.String(), "You said:")
	assert.Contains(t, out.String(), "what is a mutex")
	assert.Contains(t, out.String(), "A lock.")
	assert.Contains(t, api.lastPrompt(t), "what is a mutex")
}
