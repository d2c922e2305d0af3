package render

import (
	"fmt"
	"html"
	"html/template"
	"strings"
)

// HTMLSurface accumulates entries as HTML rows for the HTML report.
type HTMLSurface struct {
	rows        []string
	placeholder string
}

// NewHTMLSurface returns an empty surface.
func NewHTMLSurface() *HTMLSurface {
	return &HTMLSurface{}
}

// Escape implements Surface with HTML entity escaping.
func (s *HTMLSurface) Escape(text string) string {
	return html.EscapeString(text)
}

// ShowPlaceholder implements Surface.
func (s *HTMLSurface) ShowPlaceholder(text string) {
	s.placeholder = html.EscapeString(text)
}

// Clear implements Surface.
func (s *HTMLSurface) Clear() {
	s.rows = nil
	s.placeholder = ""
}

// Append implements Surface. Level and Message arrive escaped.
func (s *HTMLSurface) Append(e Entry) {
	classes := append([]string{"log-entry", "level-" + strings.ToLower(e.Level)}, e.Class.Names()...)
	s.rows = append(s.rows, fmt.Sprintf(
		`<div class="%s"><span class="log-time">%s</span> <span class="log-level">%s</span> <span class="log-message">%s</span></div>`,
		strings.Join(classes, " "), html.EscapeString(e.Time), e.Level, e.Message,
	))
}

// Rows returns the rendered rows.
func (s *HTMLSurface) Rows() []string {
	return s.rows
}

// HTML returns the log body, or the placeholder row when empty.
func (s *HTMLSurface) HTML() template.HTML {
	if len(s.rows) == 0 && s.placeholder != "" {
		return template.HTML(`<div class="log-placeholder">` + s.placeholder + `</div>`)
	}
	return template.HTML(strings.Join(s.rows, "\n")) //nolint:gosec // rows are built from escaped parts
}
