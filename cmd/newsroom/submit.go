package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/history"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
	"github.com/fyrsmithlabs/newsroom/internal/report"
	"github.com/fyrsmithlabs/newsroom/internal/tui"
)

var (
	// session flags shared by submit and watch
	sessTUI       bool
	sessHTML      string
	sessMarkdown  string
	sessNoHistory bool

	submitIterations int
	submitScenario   string

	watchRunID string
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(watchCmd)

	for _, c := range []*cobra.Command{submitCmd, watchCmd} {
		c.Flags().BoolVar(&sessTUI, "tui", false, "Follow the session in the full-screen dashboard")
		c.Flags().StringVar(&sessHTML, "html", "", "Write an HTML report with the session log to this file")
		c.Flags().StringVar(&sessMarkdown, "markdown", "", "Write the article as Markdown to this file")
		c.Flags().BoolVar(&sessNoHistory, "no-history", false, "Do not archive the result")
	}

	submitCmd.Flags().IntVar(&submitIterations, "iterations", 0, "Maximum writer/editor iterations (default poll.max_iterations)")
	submitCmd.Flags().StringVar(&submitScenario, "scenario", "", "Scripted outcome on newsroom-sim: approve, revise_approve, reject, reject_retry, max_iterations, error")

	watchCmd.Flags().StringVar(&watchRunID, "run-id", "", "Run id issued by the server when the cycle was started")
}

var submitCmd = &cobra.Command{
	Use:   "submit [topic]",
	Short: "Submit a topic and follow the pipeline to its result",
	Long: `Submit a topic to the newsroom server, stream the pipeline log until the
cycle ends, then fetch and print the result.

Examples:
  # Submit a topic
  newsroom submit "Quantum computing in banking"

  # Allow up to five writer/editor iterations
  newsroom submit --iterations 5 "Fusion energy"

  # Follow in the dashboard and keep an HTML report
  newsroom submit --tui --html report.html "Ocean plastics"`,
	RunE: runSubmit,
}

var watchCmd = &cobra.Command{
	Use:   "watch [topic]",
	Short: "Attach to a cycle that is already running",
	Long: `Follow a cycle started elsewhere until it ends, then fetch the result.
The cycle is identified by --run-id when the server issued one, otherwise
by its topic.

Examples:
  newsroom watch --run-id 3f2b9c1e-...
  newsroom watch "Quantum computing in banking"`,
	RunE: runWatch,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" && !sessTUI {
		return poller.ErrEmptyTopic
	}
	return runSession(cmd, topic, func(ctx context.Context, p *poller.Poller, a *app) (*poller.Outcome, error) {
		return p.Run(ctx, submitRequest(a, topic))
	}, func(a *app, c *tui.PollerController) {
		c.MaxIterations = submitRequest(a, topic).MaxIterations
		c.Scenario = submitScenario
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" && watchRunID == "" {
		return errors.New("a topic or --run-id is required")
	}
	return runSession(cmd, topic, func(ctx context.Context, p *poller.Poller, _ *app) (*poller.Outcome, error) {
		return p.Watch(ctx, topic, watchRunID)
	}, func(_ *app, c *tui.PollerController) {
		c.Watch = true
		c.RunID = watchRunID
	})
}

func submitRequest(a *app, topic string) poller.Request {
	n := submitIterations
	if n == 0 {
		n = a.cfg.Poll.MaxIterations
	}
	return poller.Request{Topic: topic, MaxIterations: n, Scenario: submitScenario}
}

type sessionFunc func(ctx context.Context, p *poller.Poller, a *app) (*poller.Outcome, error)

// runSession wires a poller for one session, streams it to the terminal or
// the dashboard, then prints, exports and archives the result.
func runSession(cmd *cobra.Command, topic string, run sessionFunc, configure func(*app, *tui.PollerController)) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var store *history.Store
	if !sessNoHistory {
		if store, err = a.history(); err != nil {
			return err
		}
	}

	var transcript *render.HTMLSurface
	if sessHTML != "" {
		transcript = render.NewHTMLSurface()
	}

	var (
		out     *poller.Outcome
		runErr  error
		printTo = cmd.OutOrStdout()
	)
	if sessTUI {
		out, runErr = runDashboard(ctx, a, topic, transcript, configure)
	} else {
		surfaces := render.Tee{render.NewTerminalSurface(printTo, interactive(printTo))}
		if transcript != nil {
			surfaces = append(surfaces, transcript)
		}
		p := a.poller(surfaces, observers(&statusPrinter{w: cmd.ErrOrStderr()}, a.notifier(ctx))...)
		out, runErr = run(ctx, p, a)
	}

	if out == nil {
		return runErr
	}
	if res := out.Result; res != nil {
		fmt.Fprintln(printTo)
		if err := report.Terminal(printTo, res); err != nil {
			return err
		}
		if err := exportReports(res, transcript, sessMarkdown, sessHTML); err != nil {
			return err
		}
		if store != nil {
			id, err := store.Save(ctx, out.Session.Topic, res)
			if err != nil {
				a.logger.Warn(ctx, "archiving result", zap.Error(err))
			} else {
				a.logger.Debug(ctx, "result archived", zap.Int64("id", id))
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("fetching result: %w", runErr)
	}
	if out.State == poller.StateFailed {
		return fmt.Errorf("pipeline ended with status %s", out.Status)
	}
	return nil
}

func observers(obs ...poller.Observer) []poller.Observer {
	var out []poller.Observer
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func exportReports(res *newsroom.PipelineResult, transcript *render.HTMLSurface, markdownPath, htmlPath string) error {
	if markdownPath != "" {
		if err := writeFile(markdownPath, func(w io.Writer) error { return report.Markdown(w, res) }); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		if err := writeFile(htmlPath, func(w io.Writer) error { return report.HTML(w, res, transcript) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// runDashboard follows the session in the bubbletea dashboard and returns
// the last outcome the dashboard saw.
func runDashboard(ctx context.Context, a *app, topic string, transcript *render.HTMLSurface, configure func(*app, *tui.PollerController)) (*poller.Outcome, error) {
	bridge := tui.NewBridge()
	defer bridge.Close()

	var surface render.Surface = bridge
	if transcript != nil {
		surface = render.Tee{bridge, transcript}
	}
	recorder := &outcomeRecorder{}
	p := a.poller(surface, observers(bridge, recorder, a.notifier(ctx))...)

	ctrl := &tui.PollerController{Ctx: ctx, Poller: p, Bridge: bridge}
	configure(a, ctrl)

	monitor := a.healthMonitor()
	if err := monitor.OnChange(bridge.OnHealth); err != nil {
		return nil, err
	}
	monitor.Start(ctx)
	defer monitor.Stop()

	opts := []tui.Option{tui.WithServer(a.cfg.Server.URL)}
	display := topic
	if display == "" && ctrl.Watch {
		// A run id alone still scopes detection; show it in place of the topic.
		display = ctrl.RunID
	}
	if display != "" {
		opts = append(opts, tui.WithTopic(display))
	}
	model := tui.NewModel(ctrl, bridge, opts...)
	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	p.Stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}

	out, fetchErr := recorder.outcome()
	if m, ok := final.(tui.Model); ok && out == nil && m.Err() != nil {
		return nil, m.Err()
	}
	return out, fetchErr
}

// outcomeRecorder rebuilds the outcome of the last session from observer
// events, since the dashboard drives the poller asynchronously.
type outcomeRecorder struct {
	poller.BaseObserver
	mu  sync.Mutex
	out *poller.Outcome
	err error
}

func (r *outcomeRecorder) OnState(state poller.State, _ poller.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch state {
	case poller.StateSubmitting, poller.StatePolling:
		r.out, r.err = nil, nil
	case poller.StateCompleted, poller.StateFailed:
		if r.out != nil {
			r.out.State = state
		}
	}
}

func (r *outcomeRecorder) OnComplete(sess poller.Session, status newsroom.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = &poller.Outcome{Session: sess, State: poller.StateCompleted, Status: status}
}

func (r *outcomeRecorder) OnResult(_ poller.Session, res *newsroom.PipelineResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil {
		r.out.Result = res
	}
}

func (r *outcomeRecorder) OnResultError(_ poller.Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *outcomeRecorder) outcome() (*poller.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out, r.err
}

// statusPrinter reports session milestones on stderr so stdout carries only
// the log and the result.
type statusPrinter struct {
	poller.BaseObserver
	w    io.Writer
	last int
}

func (s *statusPrinter) OnState(state poller.State, sess poller.Session) {
	switch state {
	case poller.StatePolling:
		if sess.RunID != "" {
			fmt.Fprintf(s.w, "following %q (run %s)\n", sess.Topic, sess.RunID)
		} else {
			fmt.Fprintf(s.w, "following %q\n", sess.Topic)
		}
	case poller.StateFailed:
		fmt.Fprintln(s.w, "session failed")
	}
}

func (s *statusPrinter) OnProgress(st progress.Stage) {
	if st.Percent == s.last {
		return
	}
	s.last = st.Percent
	fmt.Fprintf(s.w, "[%3d%%] %s\n", st.Percent, st)
}

func (s *statusPrinter) OnResultError(_ poller.Session, err error) {
	fmt.Fprintf(s.w, "result unavailable: %v\n", err)
}
