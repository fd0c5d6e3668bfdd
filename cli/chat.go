package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"overlay-llm-client/prompt"
	"overlay-llm-client/utils"
	"overlay-llm-client/voice"
)

// lineReader reads one line of user input. *liner.State implements it.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// repl is the interactive chat loop
type repl struct {
	runner  *turnRunner
	reader  lineReader
	out     io.Writer
	pending []string // image paths for the next turn
	onInput func(string)
}

func newChatCmd(a *app) *cobra.Command {
	flags := &turnFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Answers stream as they arrive; press
Ctrl-C while an answer is streaming to stop it and keep what was received.
Type /help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.newTurnRunner(flags)
			if err != nil {
				return err
			}
			defer runner.close()

			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			defer line.Close()

			historyFile := filepath.Join(filepath.Dir(a.cfg.Data.DBPath), "chat_history")
			if f, err := os.Open(historyFile); err == nil {
				line.ReadHistory(f)
				f.Close()
			}
			defer func() {
				if f, err := os.Create(historyFile); err == nil {
					line.WriteHistory(f)
					f.Close()
				}
			}()

			r := &repl{
				runner:  runner,
				reader:  line,
				out:     a.out,
				onInput: line.AppendHistory,
			}
			return r.loop(cmd.Context())
		},
	}
	flags.register(cmd)
	return cmd
}

func (r *repl) loop(ctx context.Context) error {
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands, /quit or Ctrl-C to exit."))

	for {
		input, err := r.reader.Prompt(fmt.Sprintf("[%s]> ", r.runner.template))
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if r.onInput != nil {
			r.onInput(input)
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

func (r *repl) send(ctx context.Context, text string) {
	images := r.pending
	r.pending = nil

	err := r.runner.run(ctx, text, images)
	if err != nil && !errors.Is(err, errTurnFailed) {
		fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
	}
}

const chatHelp = `Commands:
  /template [short|long|solution]  show or change the response style
  /image <path>                    attach an image to the next message
  /send                            send the attached images without text
  /voice <path>                    transcribe a recording and send it
  /history                         show this conversation
  /clear                           start a new conversation
  /quit                            exit`

// command runs a slash command and reports whether the loop should exit
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	session := r.runner.session

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, chatHelp)

	case "/clear":
		session.Clear()
		r.pending = nil
		fmt.Fprintln(r.out, dimStyle.Render("Conversation cleared."))

	case "/template":
		if arg == "" {
			for _, t := range prompt.Templates() {
				marker := " "
				if t == r.runner.template {
					marker = "*"
				}
				fmt.Fprintf(r.out, "%s %-9s %s\n", marker, t, t.Description())
			}
			return false, nil
		}
		tmpl, err := prompt.ParseTemplate(arg)
		if err != nil {
			return false, err
		}
		r.runner.template = tmpl
		fmt.Fprintln(r.out, dimStyle.Render("Template set to "+tmpl.String()))

	case "/image":
		if arg == "" {
			return false, fmt.Errorf("usage: /image <path>")
		}
		if _, err := os.Stat(arg); err != nil {
			return false, err
		}
		if !utils.IsImageFile(arg) {
			return false, fmt.Errorf("not an image: %s", arg)
		}
		r.pending = append(r.pending, arg)
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("%d image(s) will be sent with the next message.", len(r.pending))))

	case "/send":
		if len(r.pending) == 0 {
			return false, fmt.Errorf("no images attached")
		}
		r.send(ctx, "")

	case "/voice":
		if arg == "" {
			return false, fmt.Errorf("usage: /voice <path>")
		}
		text, err := r.runner.transcribe(ctx, arg)
		if err != nil {
			return false, err
		}
		if text == "" {
			return false, fmt.Errorf("no speech detected")
		}
		fmt.Fprintf(r.out, "%s %s\n", userStyle.Render("You said:"), text)
		r.send(ctx, text)

	case "/history":
		msgs := session.Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(r.out, dimStyle.Render("No messages yet."))
		}
		for _, m := range msgs {
			fmt.Fprintf(r.out, "%s %s\n", senderLabel(string(m.Sender)), truncate(m.Text, 100))
		}

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}

	return false, nil
}

// transcribe runs a recording through the voice pipeline
func (r *turnRunner) transcribe(ctx context.Context, path string) (string, error) {
	audio, err := readAudio(path)
	if err != nil {
		return "", err
	}

	a := r.app
	pipeline := voice.NewPipeline(r.client, r.client, a.cfg.Voice.Enhance, a.modelFor(prompt.Short), a.logger)
	res, err := pipeline.Process(ctx, audio, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if res.EnhanceErr != nil {
		fmt.Fprintln(a.errOut, dimStyle.Render("Transcript correction failed, using the raw transcript."))
	}
	return res.Text, nil
}
