package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"overlay-llm-client/llm"
	"overlay-llm-client/prompt"
	"overlay-llm-client/utils"
)

var (
	// ErrBusy is returned by Send while a turn is in flight
	ErrBusy = errors.New("a turn is already in progress")
	// ErrEmptyTurn is returned by Send when there is neither text nor an attachment
	ErrEmptyTurn = errors.New("nothing to send")
)

// State is the turn state of a Session
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// Outcome is how a turn ended
type Outcome int

const (
	OutcomeFinalized Outcome = iota
	OutcomeErrored
	OutcomeCancelled
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeErrored:
		return "errored"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "finalized"
	}
}

// Transport sends one compiled prompt to the model. onPartial receives the
// full accumulated text after every delta. *llm.Client implements it.
type Transport interface {
	Send(ctx context.Context, req llm.Request, onPartial func(string)) (string, error)
}

// Recorder persists committed messages
type Recorder interface {
	RecordMessage(msg Message) error
	ResetConversation() error
}

// EventType identifies a session notification
type EventType int

const (
	EventMessage EventType = iota
	EventPartial
	EventTurnFinished
)

// Event is delivered to the observer on every state change
type Event struct {
	Type    EventType
	Message Message // EventMessage
	Text    string  // EventPartial: full in-progress text
	Outcome Outcome // EventTurnFinished
	Err     error   // EventTurnFinished with OutcomeErrored
}

// Observer is notified of session events. It runs with the session lock held
// and must not call back into the Session.
type Observer func(Event)

// Turn is one user request
type Turn struct {
	Text        string
	Template    prompt.Template
	Context     string
	Attachments []llm.Attachment
}

// Session owns the conversation log and runs at most one turn at a time
type Session struct {
	transport Transport
	logger    *utils.Logger
	recorder  Recorder
	observer  Observer
	models    map[prompt.Template]string
	streaming bool
	maxTokens int

	mu       sync.Mutex
	messages []Message
	state    State
	buffer   string
	turn     uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(logger *utils.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder persists every committed message
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithObserver sets the event observer
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithModels overrides the model used for each template. Templates missing
// from the map use their preferred model.
func WithModels(models map[prompt.Template]string) Option {
	return func(s *Session) {
		for t, m := range models {
			if m != "" {
				s.models[t] = m
			}
		}
	}
}

// WithStreaming selects streaming or single-shot requests (default streaming)
func WithStreaming(enabled bool) Option {
	return func(s *Session) { s.streaming = enabled }
}

// WithMaxTokens sets max_tokens on every request
func WithMaxTokens(n int) Option {
	return func(s *Session) { s.maxTokens = n }
}

// NewSession creates an idle session with an empty log
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		logger:    utils.NewNopLogger(),
		models:    make(map[prompt.Template]string),
		streaming: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send starts a turn. The user message is appended before Send returns; the
// request runs in the background. While a turn is active Send returns ErrBusy
// and changes nothing.
func (s *Session) Send(ctx context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrBusy
	}
	hasAttachments := len(turn.Attachments) > 0
	if strings.TrimSpace(turn.Text) == "" && !hasAttachments {
		return ErrEmptyTurn
	}

	tmpl, text := prompt.Resolve(turn.Template, turn.Text, hasAttachments)
	req := llm.Request{
		Model:     s.modelFor(tmpl),
		Prompt:    tmpl.Compile(text, turn.Context),
		Images:    turn.Attachments,
		Stream:    s.streaming,
		MaxTokens: s.maxTokens,
	}

	msg := newMessage(SenderUser, turn.Text)
	msg.Attachments = turn.Attachments
	msg.Template = tmpl.String()
	s.appendLocked(msg)

	turnCtx, cancel := context.WithCancel(ctx)
	s.turn++
	token := s.turn
	s.state = StateSending
	s.buffer = ""
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	s.logger.Info("Sending turn: template=%s model=%s images=%d stream=%v", tmpl, req.Model, len(req.Images), req.Stream)

	utils.SafeGo(s.logger, "chat turn", func() {
		defer close(done)
		defer cancel()
		text, err := s.invoke(turnCtx, token, req)
		s.complete(token, text, err)
	})

	return nil
}

func (s *Session) invoke(ctx context.Context, token uint64, req llm.Request) (text string, err error) {
	defer utils.RecoverError(s.logger, "chat turn", &err)
	return s.transport.Send(ctx, req, func(snapshot string) {
		s.partial(token, snapshot)
	})
}

func (s *Session) partial(token uint64, snapshot string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.turn || s.state == StateIdle {
		return
	}
	s.state = StateStreaming
	s.buffer = snapshot
	s.notify(Event{Type: EventPartial, Text: snapshot})
}

func (s *Session) complete(token uint64, text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancelled or cleared while the request was finishing
	if token != s.turn || s.state == StateIdle {
		return
	}

	model := s.lastUserModel()
	outcome := OutcomeFinalized

	switch {
	case err == nil:
		if text == "" {
			text = s.buffer
		}
		s.commitLocked(text, model)
	case errors.Is(err, llm.ErrCancelled):
		outcome = OutcomeCancelled
		s.commitLocked(s.buffer, model)
		err = nil
	default:
		outcome = OutcomeErrored
		partial := s.buffer
		var streamErr *llm.StreamError
		if errors.As(err, &streamErr) && len(streamErr.Partial) > len(partial) {
			partial = streamErr.Partial
		}
		s.commitLocked(partial, model)

		s.logger.Error("Turn failed: %v", err)
		msg := newMessage(SenderAssistant, describeError(err))
		msg.Model = model
		msg.IsError = true
		s.appendLocked(msg)
	}

	s.finishLocked(outcome, err)
}

// Cancel stops the active turn and commits the text received so far. It
// returns false when no turn is active.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return false
	}

	s.cancel()
	s.turn++
	s.commitLocked(s.buffer, s.lastUserModel())
	s.logger.Info("Turn cancelled")
	s.finishLocked(OutcomeCancelled, nil)
	return true
}

// Clear cancels any active turn without committing it and empties the log
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		s.cancel()
		s.turn++
		s.finishLocked(OutcomeCancelled, nil)
	}
	s.messages = nil
	s.buffer = ""

	if s.recorder != nil {
		if err := s.recorder.ResetConversation(); err != nil {
			s.logger.Error("Failed to reset conversation: %v", err)
		}
	}
	s.logger.Info("Conversation cleared")
}

// Messages returns a copy of the log
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the current turn state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a turn is sending or streaming
func (s *Session) Busy() bool {
	return s.State() != StateIdle
}

// InProgress returns the text streamed so far for the active turn
func (s *Session) InProgress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// Done returns a channel closed when the background work of the latest turn
// has exited. With no turn started the channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Session) modelFor(tmpl prompt.Template) string {
	if m, ok := s.models[tmpl]; ok {
		return m
	}
	return tmpl.PreferredModel()
}

// lastUserModel returns the model of the active turn
func (s *Session) lastUserModel() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsUser() {
			tmpl, err := prompt.ParseTemplate(s.messages[i].Template)
			if err != nil {
				return ""
			}
			return s.modelFor(tmpl)
		}
	}
	return ""
}

// commitLocked appends a non-empty assistant reply
func (s *Session) commitLocked(text, model string) {
	if text == "" {
		return
	}
	msg := newMessage(SenderAssistant, text)
	msg.Model = model
	s.appendLocked(msg)
}

func (s *Session) appendLocked(msg Message) {
	s.messages = append(s.messages, msg)
	if s.recorder != nil {
		if err := s.recorder.RecordMessage(msg); err != nil {
			s.logger.Error("Failed to record message: %v", err)
		}
	}
	s.notify(Event{Type: EventMessage, Message: msg})
}

func (s *Session) finishLocked(outcome Outcome, err error) {
	s.state = StateIdle
	s.buffer = ""
	s.notify(Event{Type: EventTurnFinished, Outcome: outcome, Err: err})
}

func (s *Session) notify(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}

// describeError turns a transport error into text for the conversation log
func describeError(err error) string {
	var streamErr *llm.StreamError
	if errors.As(err, &streamErr) {
		err = streamErr.Err
	}
	return fmt.Sprintf("Error: %v", err)
}
