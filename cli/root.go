// Package cli implements the overlay command line: one-shot questions,
// an interactive chat, voice transcription and conversation history.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// newRootCmd builds the command tree. The caller closes a after execution.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "overlay",
		Short:         "Chat with OpenAI or Groq models from the terminal",
		Long:          `Send typed text, voice recordings and screenshots to a hosted chat-completion API and read streamed, markdown-formatted answers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file, .json or .toml (default is the user config dir)")
	rootCmd.PersistentFlags().StringVarP(&a.provider, "provider", "p", "", "provider to use: openai or groq (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		newAskCmd(a),
		newChatCmd(a),
		newTranscribeCmd(a),
		newHistoryCmd(a),
		newTemplatesCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the CLI
func Execute() {
	a := &app{out: os.Stdout, errOut: os.Stderr}
	rootCmd := newRootCmd(a)
	err := rootCmd.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		// Failed turns were already printed as part of the conversation
		if !errors.Is(err, errTurnFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Annotations: map[string]string{"skipConfig": "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay LLM Client v%s\n", version)
		},
	}
}
