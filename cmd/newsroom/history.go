package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/newsroom/internal/history"
	"github.com/fyrsmithlabs/newsroom/internal/report"
)

var (
	histTopic      string
	histLimit      int
	histOutputJSON bool
	histMarkdown   string
	histHTML       string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().BoolVar(&histOutputJSON, "json", false, "Output results as JSON")

	historyListCmd.Flags().StringVar(&histTopic, "topic", "", "Only show runs for this exact topic")
	historyListCmd.Flags().IntVar(&histLimit, "limit", history.DefaultLimit, "Maximum number of runs to return")

	historyShowCmd.Flags().StringVar(&histMarkdown, "markdown", "", "Write the article as Markdown to this file")
	historyShowCmd.Flags().StringVar(&histHTML, "html", "", "Write an HTML report to this file")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse archived results",
	Long: `Browse results archived by submit and watch.

Examples:
  # Recent runs
  newsroom history list

  # Runs for one topic
  newsroom history list --topic "Fusion energy"

  # Full report of run 12
  newsroom history show 12`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func openHistory(a *app) (*history.Store, error) {
	store, err := a.history()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("history is disabled (history.enabled = false)")
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := openHistory(a)
	if err != nil {
		return err
	}
	runs, err := store.List(ctx, histTopic, histLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if histOutputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPLETED\tSTATUS\tITER\tSCORE\tTOPIC")
	for _, r := range runs {
		score := "-"
		if r.Score != nil {
			score = report.FormatScore(*r.Score)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.CompletedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.Iterations,
			score,
			truncate(r.Topic, 48),
		)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := openHistory(a)
	if err != nil {
		return err
	}
	run, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	res, err := run.Result()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if histOutputJSON {
		return printJSON(out, res)
	}
	if err := report.Terminal(out, res); err != nil {
		return err
	}
	return exportReports(res, nil, histMarkdown, histHTML)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
