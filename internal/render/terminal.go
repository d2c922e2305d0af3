package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Styles used by terminal surfaces.
var (
	timeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Italic(true)
	stepStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")).Bold(true)
	iterationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")).Bold(true)
	successStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true)

	levelStyles = map[string]lipgloss.Style{
		"DEBUG":    lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		"INFO":     lipgloss.NewStyle().Foreground(lipgloss.Color("#94E2D5")),
		"WARNING":  lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")),
		"WARN":     lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")),
		"ERROR":    lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true),
		"CRITICAL": lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true),
	}
)

// StripControl removes ANSI escape sequences and control characters other
// than tab, so server text cannot move the cursor or recolor the terminal.
func StripControl(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, s)
}

// FormatLine styles an entry as a single terminal line.
func FormatLine(e Entry) string {
	level := e.Level
	if st, ok := levelStyles[strings.ToUpper(level)]; ok {
		level = st.Render(fmt.Sprintf("%-7s", level))
	} else {
		level = fmt.Sprintf("%-7s", level)
	}

	msg := e.Message
	switch {
	case e.Class.Has(ClassSuccess):
		msg = successStyle.Render(msg)
	case e.Class.Has(ClassIteration):
		msg = iterationStyle.Render(msg)
	case e.Class.Has(ClassStep):
		msg = stepStyle.Render(msg)
	}

	return timeStyle.Render(e.Time) + " " + level + " " + msg
}

// TerminalSurface streams entries to a writer, one line each.
//
// When Interactive is set the placeholder line is erased in place once the
// first entry arrives; otherwise it stays in the stream.
type TerminalSurface struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	placeholder bool
}

// NewTerminalSurface writes to w. interactive enables cursor control.
func NewTerminalSurface(w io.Writer, interactive bool) *TerminalSurface {
	return &TerminalSurface{w: w, interactive: interactive}
}

// Escape implements Surface.
func (s *TerminalSurface) Escape(text string) string {
	return StripControl(text)
}

// ShowPlaceholder implements Surface.
func (s *TerminalSurface) ShowPlaceholder(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, placeholderStyle.Render(text))
	s.placeholder = true
}

// Clear implements Surface.
func (s *TerminalSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeholder && s.interactive {
		fmt.Fprint(s.w, ansi.CursorUp(1)+ansi.EraseEntireLine)
	}
	s.placeholder = false
}

// Append implements Surface.
func (s *TerminalSurface) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, FormatLine(e))
}
