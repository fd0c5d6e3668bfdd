package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"overlay-llm-client/chat"
	"overlay-llm-client/llm"
	"overlay-llm-client/prompt"
)

// turnFlags are shared by every command that sends a turn
type turnFlags struct {
	template  string
	images    []string
	context   string
	noContext bool
	noStream  bool
	plain     bool
	noHistory bool
}

func (f *turnFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "response style: short, long or solution (default from config)")
	cmd.Flags().StringVar(&f.context, "context", "", "background text about you, overrides the configured context")
	cmd.Flags().BoolVar(&f.noContext, "no-context", false, "send no background context")
	cmd.Flags().BoolVar(&f.noStream, "no-stream", false, "wait for the complete answer instead of streaming")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "print raw text without markdown rendering")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "do not save this conversation")
}

func (f *turnFlags) resolveTemplate(a *app) (prompt.Template, error) {
	if f.template == "" {
		return a.defaultTemplate(), nil
	}
	return prompt.ParseTemplate(f.template)
}

// turnRunner owns the session of one command invocation
type turnRunner struct {
	app      *app
	client   *llm.Client
	session  *chat.Session
	history  *historyRecorder
	closeDB  func()
	template prompt.Template
	context  string
}

func (a *app) newTurnRunner(flags *turnFlags) (*turnRunner, error) {
	tmpl, err := flags.resolveTemplate(a)
	if err != nil {
		return nil, err
	}
	bgContext, err := a.context(flags.context, flags.noContext)
	if err != nil {
		return nil, err
	}
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}

	r := &turnRunner{app: a, client: client, template: tmpl, context: bgContext, closeDB: func() {}}

	var recorder chat.Recorder
	if !flags.noHistory {
		database, err := a.openDB()
		if err != nil {
			a.logger.Warn("History disabled: %v", err)
		} else {
			name, _ := a.cfg.ActiveProvider()
			r.history = newHistoryRecorder(database, name)
			r.closeDB = func() { database.Close() }
			recorder = r.history
		}
	}

	markdown := !flags.plain && isTerminal(a.out)
	streaming := a.cfg.Chat.Streaming && !flags.noStream
	r.session = a.newSession(client, recorder, newRenderer(a.out, markdown), streaming)
	return r, nil
}

func (r *turnRunner) close() {
	r.closeDB()
}

// run sends one turn and waits for it. Ctrl-C cancels the turn and keeps the
// text received so far.
func (r *turnRunner) run(ctx context.Context, text string, images []string) error {
	attachments, err := loadImages(images)
	if err != nil {
		return err
	}

	before := len(r.session.Messages())
	err = r.session.Send(ctx, chat.Turn{
		Text:        text,
		Template:    r.template,
		Context:     r.context,
		Attachments: attachments,
	})
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	select {
	case <-r.session.Done():
	case <-interrupts:
		r.session.Cancel()
		<-r.session.Done()
	case <-ctx.Done():
		r.session.Cancel()
		<-r.session.Done()
	}

	msgs := r.session.Messages()
	if len(msgs) > before && msgs[len(msgs)-1].IsError {
		return errTurnFailed
	}
	return nil
}

// errTurnFailed is returned after the error has already been printed
var errTurnFailed = errors.New("request failed")

func newAskCmd(a *app) *cobra.Command {
	flags := &turnFlags{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Long: `Ask a single question and stream the answer.

The question is wrapped in the selected response template. Attaching images
always uses the solution template; an image without a question asks the model
to analyze it.`,
		Example: `  overlay ask "Explain recursion"
  overlay ask -t long "How do channels work?"
  overlay ask --image screenshot.png
  overlay ask -p groq --no-stream "Summarize the CAP theorem"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" && len(flags.images) == 0 {
				return fmt.Errorf("a question or an --image is required")
			}

			runner, err := a.newTurnRunner(flags)
			if err != nil {
				return err
			}
			defer runner.close()

			return runner.run(cmd.Context(), question, flags.images)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&flags.images, "image", "i", nil, "attach an image or screenshot (repeatable)")
	return cmd
}
