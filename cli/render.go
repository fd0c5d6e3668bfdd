package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"overlay-llm-client/chat"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderer prints session events. In plain mode streamed text is written as
// it arrives; in markdown mode each reply is rendered once it is committed.
type renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	printed  int // bytes of the in-progress reply already written
}

func newRenderer(out io.Writer, markdown bool) *renderer {
	r := &renderer{out: out}
	if markdown {
		width := 100
		if f, ok := out.(*os.File); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
				width = w - 4
			}
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

func (r *renderer) observe(e chat.Event) {
	switch e.Type {
	case chat.EventPartial:
		if r.markdown != nil {
			if r.printed == 0 {
				fmt.Fprint(r.out, dimStyle.Render("thinking..."))
				r.printed = 1
			}
			return
		}
		// Snapshots only grow, so the unseen part is a suffix
		if len(e.Text) > r.printed {
			fmt.Fprint(r.out, e.Text[r.printed:])
			r.printed = len(e.Text)
		}

	case chat.EventMessage:
		if e.Message.IsUser() {
			if n := len(e.Message.Attachments); n > 0 {
				fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("[%d image(s) attached, template %s]", n, e.Message.Template)))
			}
			return
		}
		r.printReply(e.Message)

	case chat.EventTurnFinished:
		r.endLine()
		if e.Outcome == chat.OutcomeCancelled {
			fmt.Fprintln(r.out, dimStyle.Render("[cancelled]"))
		}
	}
}

func (r *renderer) printReply(msg chat.Message) {
	if msg.IsError {
		r.endLine()
		fmt.Fprintln(r.out, errorStyle.Render(msg.Text))
		return
	}

	if r.markdown != nil {
		r.endLine()
		fmt.Fprint(r.out, r.renderMarkdown(msg.Text))
		return
	}

	if len(msg.Text) > r.printed {
		fmt.Fprint(r.out, msg.Text[r.printed:])
	}
	r.printed = len(msg.Text)
}

// endLine finishes streamed output or erases the progress marker
func (r *renderer) endLine() {
	if r.printed > 0 {
		if r.markdown != nil {
			fmt.Fprint(r.out, "\r\033[K")
		} else {
			fmt.Fprintln(r.out)
		}
	}
	r.printed = 0
}

// renderMarkdown returns the original content if rendering fails
func (r *renderer) renderMarkdown(content string) string {
	if r.markdown == nil {
		return content
	}
	rendered, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func senderLabel(sender string) string {
	if sender == string(chat.SenderAssistant) {
		return assistantStyle.Render("Assistant")
	}
	return userStyle.Render("You")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
