package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"overlay-llm-client/prompt"
)

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List response templates and the models they use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := a.cfg.ActiveProvider()
			current := a.defaultTemplate()

			fmt.Fprintf(a.out, "Provider: %s\n\n", name)
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tTEMPLATE\tMODEL\tWORDS\tDESCRIPTION")
			for _, t := range prompt.Templates() {
				marker := ""
				if t == current {
					marker = "*"
				}
				words := "-"
				if n := t.WordLimit(); n > 0 {
					words = fmt.Sprintf("%d", n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, t, a.modelFor(t), words, t.Description())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, dimStyle.Render("\nImage questions always use the solution template."))
			return nil
		},
	}
}
