package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/newsroom/internal/logline"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/render"
	"github.com/fyrsmithlabs/newsroom/internal/report"
)

var (
	resultJSON     bool
	resultWait     bool
	resultMarkdown string
	resultHTML     string

	logsLines int

	healthWatch bool
)

func init() {
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(healthCmd)

	resultCmd.Flags().BoolVar(&resultJSON, "json", false, "Print the result as JSON")
	resultCmd.Flags().BoolVar(&resultWait, "wait", false, "Retry until a result is published (result.retries, result.delay)")
	resultCmd.Flags().StringVar(&resultMarkdown, "markdown", "", "Write the article as Markdown to this file")
	resultCmd.Flags().StringVar(&resultHTML, "html", "", "Write an HTML report to this file")

	logsCmd.Flags().IntVar(&logsLines, "lines", 0, "Number of tail lines to fetch (default poll.lines)")

	healthCmd.Flags().BoolVar(&healthWatch, "watch", false, "Keep probing and report reachability changes")
}

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Show the result of the most recent cycle",
	Args:  cobra.NoArgs,
	RunE:  runResult,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the tail of the server log",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check newsroom server health",
	Long: `Check whether the newsroom server is reachable.

Examples:
  # Probe once
  newsroom health

  # Report every change in reachability until interrupted
  newsroom health --watch`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runResult(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var res *newsroom.PipelineResult
	if resultWait {
		res, err = a.fetcher().Fetch(ctx)
	} else {
		res, err = a.client.LastResult(ctx)
	}
	out := cmd.OutOrStdout()
	if errors.Is(err, newsroom.ErrNoResult) {
		fmt.Fprintln(out, "no result yet")
		return nil
	}
	if err != nil {
		return err
	}
	if resultJSON {
		return printJSON(out, res)
	}
	if err := report.Terminal(out, res); err != nil {
		return err
	}
	return exportReports(res, nil, resultMarkdown, resultHTML)
}

func printJSON(w io.Writer, res *newsroom.PipelineResult) error {
	if len(res.Raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Raw, "", "  "); err == nil {
			buf.WriteByte('\n')
			_, err = buf.WriteTo(w)
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	n := logsLines
	if n <= 0 {
		n = a.cfg.Poll.Lines
	}
	text, err := a.client.Logs(ctx, n)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r := render.New(render.NewTerminalSurface(out, interactive(out)))
	for _, rec := range logline.ParseAll(text) {
		r.Append(rec)
	}
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if !healthWatch {
		st := a.client.Health(ctx)
		printHealth(out, a.cfg.Server.URL, st)
		if !st.Reachable {
			return fmt.Errorf("server %s is unreachable", a.cfg.Server.URL)
		}
		return nil
	}

	monitor := a.healthMonitor()
	if err := monitor.OnChange(func(st newsroom.HealthStatus) {
		printHealth(out, a.cfg.Server.URL, st)
	}); err != nil {
		return err
	}
	monitor.Start(ctx)
	<-ctx.Done()
	monitor.Stop()
	return nil
}

func printHealth(w io.Writer, url string, st newsroom.HealthStatus) {
	stamp := st.CheckedAt.Format("15:04:05")
	if !st.Reachable {
		fmt.Fprintf(w, "%s %s unreachable: %v\n", stamp, url, st.Err)
		return
	}
	detail := st.Status
	if st.Service != "" {
		detail += " (" + st.Service + ")"
	}
	fmt.Fprintf(w, "%s %s %s in %s\n", stamp, url, detail, report.FormatLatency(st.Latency))
}
