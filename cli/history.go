package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"overlay-llm-client/db"
	"overlay-llm-client/utils"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Browse, search and export saved conversations",
	}

	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistorySearchCmd(a),
		newHistoryExportCmd(a),
		newHistoryImportCmd(a),
		newHistoryDeleteCmd(a),
		newHistoryPruneCmd(a),
		newHistoryStatsCmd(a),
	)
	return cmd
}

// withDB opens the history database for the duration of fn
func (a *app) withDB(fn func(*db.DB) error) error {
	database, err := db.New(a.cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

func parseConversationID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id: %q", arg)
	}
	return id, nil
}

func newHistoryListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(database *db.DB) error {
				convs, err := database.ListConversations(limit, 0)
				if err != nil {
					return err
				}
				if len(convs) == 0 {
					fmt.Fprintln(a.out, "No saved conversations.")
					return nil
				}

				w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tUPDATED\tPROVIDER\tTITLE")
				for _, c := range convs {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Provider, truncate(c.Title, 60))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of conversations to show")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(database *db.DB) error {
				content, err := utils.ConversationMarkdown(database, id)
				if err != nil {
					return err
				}
				r := newRenderer(a.out, !plain && isTerminal(a.out))
				fmt.Fprint(a.out, r.renderMarkdown(content))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown source instead of rendering it")
	return cmd
}

func newHistorySearchCmd(a *app) *cobra.Command {
	var filter db.SearchFilter
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message text",
		Example: `  overlay history search goroutines
  overlay history search --sender assistant --days 7 "race condition"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(database *db.DB) error {
				results, err := database.SearchMessagesWithFilters(args[0], filter)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(a.out, "No matches.")
					return nil
				}
				for _, r := range results {
					fmt.Fprintf(a.out, "%s %s %s\n  %s\n",
						dimStyle.Render(fmt.Sprintf("#%d", r.ConversationID)),
						senderLabel(r.Message.Sender),
						dimStyle.Render(r.Message.CreatedAt.Local().Format("2006-01-02 15:04")),
						truncate(r.Snippet, 120))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.Sender, "sender", "", "only messages from user or assistant")
	cmd.Flags().StringVar(&filter.Model, "model", "", "only answers from this model")
	cmd.Flags().IntVar(&filter.DaysAgo, "days", 0, "only messages from the last N days")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum number of results")
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var (
		all    bool
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export conversations to JSON or Markdown",
		Example: `  overlay history export 12 --format md
  overlay history export --all -o backup.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportFormat, err := utils.ParseExportFormat(format)
			if err != nil {
				return err
			}
			if all == (len(args) == 1) {
				return errors.New("give either a conversation id or --all")
			}

			return a.withDB(func(database *db.DB) error {
				if all {
					if exportFormat != utils.FormatJSON {
						return errors.New("--all only supports the json format")
					}
					path := output
					if path == "" {
						path = utils.GenerateExportFilename("conversations", utils.FormatJSON)
					}
					if err := utils.ExportAllConversations(database, path); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Exported all conversations to %s\n", path)
					return nil
				}

				id, err := parseConversationID(args[0])
				if err != nil {
					return err
				}
				conv, err := database.GetConversation(id)
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = utils.GenerateExportFilename(conv.Title, exportFormat)
				}

				if exportFormat == utils.FormatMarkdown {
					err = utils.ExportConversationToMarkdown(database, id, path)
				} else {
					err = utils.ExportConversationToJSON(database, id, path)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Exported conversation %d to %s\n", id, path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every conversation into one JSON file")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or md")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default derived from the title)")
	return cmd
}

func newHistoryImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import conversations from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			return a.withDB(func(database *db.DB) error {
				n, err := utils.ImportConversations(database, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Imported %d conversation(s) from %s\n", n, filepath.Base(args[0]))
				return nil
			})
		},
	}
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(database *db.DB) error {
				if _, err := database.GetConversation(id); err != nil {
					return err
				}
				if err := database.DeleteConversation(id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted conversation %d\n", id)
				return nil
			})
		},
	}
}

func newHistoryPruneCmd(a *app) *cobra.Command {
	var days, keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old conversations and compact the database",
		Example: `  overlay history prune --days 30
  overlay history prune --keep 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (days > 0) == (keep > 0) {
				return errors.New("give exactly one of --days or --keep")
			}
			return a.withDB(func(database *db.DB) error {
				var removed int64
				var err error
				if days > 0 {
					removed, err = database.DeleteOldConversations(days)
				} else {
					removed, err = database.DeleteOldestConversations(keep)
				}
				if err != nil {
					return err
				}
				if err := database.Vacuum(); err != nil {
					a.logger.Warn("Vacuum failed: %v", err)
				}
				fmt.Fprintf(a.out, "Removed %d conversation(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "delete conversations not updated in N days")
	cmd.Flags().IntVar(&keep, "keep", 0, "keep only the N most recent conversations")
	return cmd
}

func newHistoryStatsCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history and usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(database *db.DB) error {
				stats, err := database.GetStats()
				if err != nil {
					return err
				}
				usage, err := database.GetUsageStats(time.Now().AddDate(0, 0, -days))
				if err != nil {
					return err
				}

				fmt.Fprintf(a.out, "Conversations: %d\n", stats.ConversationCount)
				fmt.Fprintf(a.out, "Messages:      %d (%d errors)\n", stats.MessageCount, stats.ErrorCount)
				fmt.Fprintf(a.out, "Database size: %s\n", utils.FormatFileSize(stats.DBSizeBytes))
				if !database.HasFullTextSearch() {
					fmt.Fprintln(a.out, dimStyle.Render("Full-text search unavailable, using substring search."))
				}

				fmt.Fprintf(a.out, "\nAnswers in the last %d days: %d\n", days, usage.TotalMessages)
				if len(usage.ModelStats) > 0 {
					w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "MODEL\tANSWERS\tERRORS")
					for _, m := range usage.ModelStats {
						fmt.Fprintf(w, "%s\t%d\t%d\n", m.Model, m.MessageCount, m.ErrorCount)
					}
					if err := w.Flush(); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "usage window in days")
	return cmd
}
