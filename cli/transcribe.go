package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"overlay-llm-client/prompt"
	"overlay-llm-client/voice"
)

func newTranscribeCmd(a *app) *cobra.Command {
	flags := &turnFlags{}
	var raw, send bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio file>",
		Short: "Transcribe a voice recording",
		Long: `Transcribe a voice recording with the provider's speech model.

Unless --raw is given the transcript is cleaned up by a short completion that
fixes recognition mistakes. With --send the transcript is asked as a question.`,
		Example: `  overlay transcribe question.m4a
  overlay transcribe --raw memo.wav
  overlay transcribe --send -t long question.mp3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if send {
				runner, err := a.newTurnRunner(flags)
				if err != nil {
					return err
				}
				defer runner.close()

				if raw {
					a.cfg.Voice.Enhance = false
				}
				text, err := runner.transcribe(cmd.Context(), path)
				if err != nil {
					return err
				}
				if text == "" {
					return fmt.Errorf("no speech detected in %s", path)
				}
				fmt.Fprintf(a.out, "%s %s\n", userStyle.Render("You said:"), text)
				return runner.run(cmd.Context(), text, nil)
			}

			audio, err := readAudio(path)
			if err != nil {
				return err
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}

			pipeline := voice.NewPipeline(client, client, a.cfg.Voice.Enhance && !raw, a.modelFor(prompt.Short), a.logger)
			res, err := pipeline.Process(cmd.Context(), audio, filepath.Base(path))
			if err != nil {
				return err
			}
			if res.EnhanceErr != nil {
				fmt.Fprintln(a.errOut, dimStyle.Render("Transcript correction failed, printing the raw transcript."))
			}
			fmt.Fprintln(a.out, res.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "skip the transcript correction step")
	cmd.Flags().BoolVar(&send, "send", false, "ask the transcript as a question")
	flags.register(cmd)
	return cmd
}
