// Package tui is the interactive watch screen: a topic prompt, a progress
// bar, the live log and the final result.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	stage "github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
	"github.com/fyrsmithlabs/newsroom/internal/report"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 2
	historySize     = 30
	throughputTick  = time.Second
	// chromeHeight is the number of lines outside the log viewport.
	chromeHeight = 12
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	logStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

type tickMsg time.Time

// Option configures a Model.
type Option func(*Model)

// WithTopic pre-fills the prompt and submits it on start.
func WithTopic(topic string) Option {
	return func(m *Model) {
		m.input.SetValue(topic)
		m.autoSubmit = strings.TrimSpace(topic) != ""
	}
}

// WithServer sets the server URL shown in the header.
func WithServer(url string) Option {
	return func(m *Model) { m.server = url }
}

// Model is the bubbletea model of the watch screen.
type Model struct {
	ctrl   Controller
	bridge *Bridge
	server string

	input    textinput.Model
	bar      progress.Model
	logs     viewport.Model
	spinner  spinner.Model
	width    int
	height   int
	quitting bool

	autoSubmit bool
	follow     bool

	lines       []string
	placeholder string
	state       poller.State
	session     poller.Session
	stage       stage.Stage
	completed   newsroom.Status
	result      *newsroom.PipelineResult
	err         error
	pollErrors  int
	health      *newsroom.HealthStatus

	received   int
	throughput []float64
}

// NewModel creates the screen. ctrl starts sessions; bridge delivers
// their events.
func NewModel(ctrl Controller, bridge *Bridge, opts ...Option) Model {
	input := textinput.New()
	input.Prompt = "topic> "
	input.Placeholder = "e.g. AI in local newsrooms"
	input.CharLimit = 500
	input.Width = 60
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	m := Model{
		ctrl:        ctrl,
		bridge:      bridge,
		input:       input,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		logs:        viewport.New(80, 12),
		spinner:     spin,
		follow:      true,
		placeholder: render.Placeholder,
		state:       poller.StateIdle,
		stage:       stage.Stage{Label: "idle"},
		throughput:  make([]float64, 0, historySize),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refreshLogs()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bridge.Wait(), tick(), textinput.Blink}
	if m.autoSubmit {
		cmds = append(cmds, m.submitCmd(m.input.Value()))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(throughputTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) submitCmd(topic string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Submit(topic)
		return nil
	}
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logs.Width = max(20, msg.Width-2)
		m.logs.Height = max(3, msg.Height-chromeHeight)
		m.bar.Width = max(10, min(60, msg.Width-30))
		m.refreshLogs()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.throughput = appendToHistory(m.throughput, float64(m.received))
		m.received = 0
		return m, tick()

	case spinner.TickMsg:
		if !m.state.Active() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventsMsg:
		wasActive := m.state.Active()
		for _, ev := range msg {
			m = m.apply(ev)
		}
		m.refreshLogs()
		cmds := []tea.Cmd{m.bridge.Wait()}
		if !wasActive && m.state.Active() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)
	}

	// Remaining messages (cursor blink, mouse) go to the focused widget.
	var cmd tea.Cmd
	if m.input.Focused() {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.ctrl.Stop()
		m.quitting = true
		return m, tea.Quit
	case "esc":
		if m.state.Active() {
			m.ctrl.Stop()
			return m, nil
		}
		if m.input.Focused() {
			m.input.Blur()
			return m, nil
		}
	case "tab":
		if m.input.Focused() {
			m.input.Blur()
			return m, nil
		}
		return m, m.input.Focus()
	}

	if m.input.Focused() {
		if msg.String() == "enter" {
			topic := strings.TrimSpace(m.input.Value())
			if topic == "" {
				m.err = poller.ErrEmptyTopic
				return m, nil
			}
			if m.state == poller.StateSubmitting {
				return m, nil
			}
			m.err = nil
			return m, m.submitCmd(topic)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.ctrl.Stop()
		m.quitting = true
		return m, tea.Quit
	case "f":
		m.follow = !m.follow
		if m.follow {
			m.logs.GotoBottom()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

// apply folds one bridge event into the model.
func (m Model) apply(ev tea.Msg) Model {
	switch ev := ev.(type) {
	case placeholderMsg:
		m.lines = nil
		m.placeholder = string(ev)
	case clearMsg:
		m.lines = nil
		m.placeholder = ""
	case entryMsg:
		m.lines = append(m.lines, render.FormatLine(render.Entry(ev)))
		m.received++
	case stateMsg:
		m.state = ev.state
		m.session = ev.session
		if ev.state == poller.StateSubmitting {
			m.result = nil
			m.completed = ""
			m.err = nil
			m.pollErrors = 0
		}
	case progressMsg:
		m.stage = stage.Stage(ev)
	case pollErrMsg:
		m.pollErrors++
	case completeMsg:
		m.completed = newsroom.Status(ev)
	case resultMsg:
		m.result = ev.result
	case resultErrMsg:
		m.err = ev.err
	case healthMsg:
		st := newsroom.HealthStatus(ev)
		m.health = &st
	case doneMsg:
		if ev.err != nil && !errors.Is(ev.err, poller.ErrStopped) {
			m.err = ev.err
		}
	}
	return m
}

func (m *Model) refreshLogs() {
	if len(m.lines) == 0 {
		m.logs.SetContent(dimStyle.Italic(true).Render(m.placeholder))
		return
	}
	m.logs.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.logs.GotoBottom()
	}
}

func healthBadge(st *newsroom.HealthStatus) string {
	switch {
	case st == nil:
		return dimStyle.Render("○ checking")
	case !st.Reachable:
		return errorStyle.Render("✗ OFFLINE")
	case st.Latency > 500*time.Millisecond:
		return warningStyle.Render("⚠ SLOW " + report.FormatLatency(st.Latency))
	default:
		return healthyStyle.Render("✓ ONLINE " + report.FormatLatency(st.Latency))
	}
}

func (m Model) stateLine() string {
	switch m.state {
	case poller.StateSubmitting:
		return m.spinner.View() + " " + warningStyle.Render("submitting")
	case poller.StatePolling:
		return m.spinner.View() + " " + warningStyle.Render("polling")
	case poller.StateCompleted:
		return healthyStyle.Render("● " + report.StatusText(m.completed))
	case poller.StateFailed:
		return errorStyle.Render("● FAILED")
	default:
		return dimStyle.Render("● idle")
	}
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	header := headerStyle.Render(" Newsroom ")
	b.WriteString(header + "  " + healthBadge(m.health))
	if m.server != "" {
		b.WriteString("  " + dimStyle.Render(m.server))
	}
	b.WriteString("\n\n")

	b.WriteString(m.input.View() + "\n\n")

	b.WriteString(m.stateLine())
	if m.session.Topic != "" {
		b.WriteString("  " + labelStyle.Render("topic: ") + valueStyle.Render(render.StripControl(m.session.Topic)))
	}
	if m.session.RunID != "" {
		b.WriteString("  " + labelStyle.Render("run: ") + dimStyle.Render(render.StripControl(m.session.RunID)))
	}
	b.WriteString("\n")

	label := m.stage.Label
	if m.stage.Icon != "" {
		label = m.stage.Icon + " " + label
	}
	b.WriteString(m.bar.ViewAs(m.stage.Fraction()) + "  " + valueStyle.Render(label))
	if m.pollErrors > 0 {
		b.WriteString("  " + warningStyle.Render(fmt.Sprintf("%d poll errors", m.pollErrors)))
	}
	b.WriteString("\n")
	if m.stage.Step != "" {
		b.WriteString(dimStyle.Render(m.stage.Step) + "\n")
	}

	b.WriteString(labelStyle.Render("lines/s ") + createSparkline(m.throughput) + "\n")

	b.WriteString(logStyle.Render(m.logs.View()) + "\n")

	if m.result != nil {
		b.WriteString(m.resultLine() + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+render.StripControl(m.err.Error())) + "\n")
	}

	follow := "off"
	if m.follow {
		follow = "on"
	}
	footer := footerKeyStyle.Render("[enter]") + footerStyle.Render(" submit  ") +
		footerKeyStyle.Render("[esc]") + footerStyle.Render(" stop  ") +
		footerKeyStyle.Render("[tab]") + footerStyle.Render(" focus  ") +
		footerKeyStyle.Render("[f]") + footerStyle.Render(" follow "+follow+"  ") +
		footerKeyStyle.Render("[q]") + footerStyle.Render(" quit")
	b.WriteString(footer)
	return b.String()
}

func (m Model) resultLine() string {
	res := m.result
	parts := []string{labelStyle.Render("result: ") + valueStyle.Render(report.StatusText(res.Status))}
	if res.Article != nil && res.Article.Title != "" {
		parts = append(parts, valueStyle.Render(render.StripControl(res.Article.Title)))
	}
	if res.Review != nil {
		parts = append(parts, labelStyle.Render("score ")+valueStyle.Render(report.FormatScore(res.Review.Score)))
	}
	if res.Iterations != nil {
		parts = append(parts, labelStyle.Render("iterations ")+valueStyle.Render(fmt.Sprintf("%d", *res.Iterations)))
	}
	return strings.Join(parts, "  ")
}

// Result returns the last fetched result, if any.
func (m Model) Result() *newsroom.PipelineResult {
	return m.result
}

// Err returns the last error shown on screen.
func (m Model) Err() error {
	return m.err
}
