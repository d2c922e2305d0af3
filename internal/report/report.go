// Package report renders a finished cycle's result for the terminal, as
// Markdown, or as a standalone HTML page.
//
// Every server-supplied string is treated as untrusted: the terminal
// writer strips control sequences, the HTML writer escapes through
// html/template and converts the article body with raw HTML disabled.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CDD6F4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
	leadStyle   = lipgloss.NewStyle().Italic(true)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	statusStyles = map[newsroom.Status]lipgloss.Style{
		newsroom.StatusSuccess:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1")),
		newsroom.StatusRejected:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8")),
		newsroom.StatusMaxIterations: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9E2AF")),
		newsroom.StatusError:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8")),
	}
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func statusBadge(s newsroom.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		style = labelStyle
	}
	return style.Render(StatusText(s))
}

func row(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-11s", label+":")), valueStyle.Render(value))
}

// Terminal writes a styled summary of res to w.
func Terminal(w io.Writer, res *newsroom.PipelineResult) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}
	clean := render.StripControl

	var b strings.Builder
	b.WriteString(headerStyle.Render("Cycle result") + "  " + statusBadge(res.Status) + "\n\n")

	row(&b, "Topic", clean(res.Topic))
	row(&b, "Run", clean(res.RunID))
	if res.Iterations != nil {
		row(&b, "Iterations", fmt.Sprintf("%d", *res.Iterations))
	}
	if d := Elapsed(res); d > 0 {
		row(&b, "Duration", FormatDuration(d))
	}
	if res.Review != nil {
		row(&b, "Decision", clean(res.Review.Decision))
		row(&b, "Score", FormatScore(res.Review.Score))
	}
	if res.Error != "" {
		b.WriteString("\n" + badStyle.Render("Error: "+clean(res.Error)) + "\n")
	}

	if a := res.Article; a != nil {
		b.WriteString("\n" + titleStyle.Render(clean(a.Title)) + "\n")
		if a.Lead != "" {
			b.WriteString(leadStyle.Render(clean(a.Lead)) + "\n")
		}
		if a.Body != "" {
			b.WriteString("\n" + clean(a.Body) + "\n")
		}
		if len(a.Tags) > 0 {
			tags := make([]string, len(a.Tags))
			for i, t := range a.Tags {
				tags[i] = "#" + clean(t)
			}
			b.WriteString("\n" + labelStyle.Render(strings.Join(tags, " ")) + "\n")
		}
	}

	if r := res.Review; r != nil {
		for _, s := range r.Strengths {
			b.WriteString(goodStyle.Render("+ "+clean(s)) + "\n")
		}
		for _, s := range r.Weaknesses {
			b.WriteString(badStyle.Render("- "+clean(s)) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown writes res as a Markdown document. The article body is
// already Markdown and is copied through.
func Markdown(w io.Writer, res *newsroom.PipelineResult) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}

	var b strings.Builder
	if a := res.Article; a != nil && a.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", oneLine(a.Title))
	} else {
		fmt.Fprintf(&b, "# %s\n\n", oneLine(res.Topic))
	}
	if a := res.Article; a != nil {
		if a.Lead != "" {
			fmt.Fprintf(&b, "_%s_\n\n", oneLine(a.Lead))
		}
		if a.Body != "" {
			b.WriteString(strings.TrimSpace(a.Body) + "\n\n")
		}
		if len(a.Tags) > 0 {
			b.WriteString("Tags: " + strings.Join(a.Tags, ", ") + "\n\n")
		}
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "- **Status:** %s\n", StatusText(res.Status))
	if res.Topic != "" {
		fmt.Fprintf(&b, "- **Topic:** %s\n", oneLine(res.Topic))
	}
	if res.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", res.RunID)
	}
	if res.Iterations != nil {
		fmt.Fprintf(&b, "- **Iterations:** %d\n", *res.Iterations)
	}
	if d := Elapsed(res); d > 0 {
		fmt.Fprintf(&b, "- **Duration:** %s\n", FormatDuration(d))
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", oneLine(res.Error))
	}

	if r := res.Review; r != nil {
		fmt.Fprintf(&b, "\n## Editorial review\n\n**%s** (%s)\n", oneLine(r.Decision), FormatScore(r.Score))
		if len(r.Strengths) > 0 {
			b.WriteString("\n### Strengths\n\n")
			for _, s := range r.Strengths {
				fmt.Fprintf(&b, "- %s\n", oneLine(s))
			}
		}
		if len(r.Weaknesses) > 0 {
			b.WriteString("\n### Weaknesses\n\n")
			for _, s := range r.Weaknesses {
				fmt.Fprintf(&b, "- %s\n", oneLine(s))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Page is the data behind the HTML template.
type Page struct {
	Result      *newsroom.PipelineResult
	StatusText  string
	Body        template.HTML
	Transcript  template.HTML
	Duration    string
	GeneratedAt time.Time
}

// HTML writes res as a standalone page. transcript may be nil; when set
// its escaped rows are embedded as the session log.
func HTML(w io.Writer, res *newsroom.PipelineResult, transcript *render.HTMLSurface) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}

	page := Page{
		Result:      res,
		StatusText:  StatusText(res.Status),
		GeneratedAt: time.Now(),
	}
	if d := Elapsed(res); d > 0 {
		page.Duration = FormatDuration(d)
	}
	if res.Article != nil && res.Article.Body != "" {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(res.Article.Body), &buf); err != nil {
			return fmt.Errorf("report: convert article body: %w", err)
		}
		// goldmark omits raw HTML unless WithUnsafe is set.
		page.Body = template.HTML(buf.String()) //nolint:gosec
	}
	if transcript != nil {
		page.Transcript = transcript.HTML()
	}

	return pageTemplate.Execute(w, page)
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{with .Result.Article}}{{.Title}}{{else}}{{.Result.Topic}}{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; color: #1e1e2e; }
.status { font-weight: bold; padding: .2rem .6rem; border-radius: .3rem; }
.status-success { background: #a6e3a1; }
.status-rejected, .status-error { background: #f38ba8; }
.status-max_iterations { background: #f9e2af; }
.lead { font-style: italic; }
.log { font-family: monospace; font-size: .85rem; background: #11111b; color: #cdd6f4; padding: 1rem; }
.log .step { color: #89b4fa; font-weight: bold; }
.log .iteration { color: #f9e2af; font-weight: bold; }
.log .success { color: #a6e3a1; font-weight: bold; }
</style>
</head>
<body>
<header>
<span class="status status-{{.Result.Status}}">{{.StatusText}}</span>
{{with .Result.Topic}}<p>Topic: {{.}}</p>{{end}}
{{with .Result.RunID}}<p>Run: <code>{{.}}</code></p>{{end}}
{{with .Result.Iterations}}<p>Iterations: {{.}}</p>{{end}}
{{with .Duration}}<p>Duration: {{.}}</p>{{end}}
{{with .Result.Error}}<p class="error">Error: {{.}}</p>{{end}}
</header>
{{with .Result.Article}}<article>
<h1>{{.Title}}</h1>
{{with .Lead}}<p class="lead">{{.}}</p>{{end}}
{{$.Body}}
{{with .Tags}}<p class="tags">{{range .}}<span class="tag">#{{.}}</span> {{end}}</p>{{end}}
</article>{{end}}
{{with .Result.Review}}<section class="review">
<h2>Editorial review</h2>
<p><strong>{{.Decision}}</strong> ({{printf "%.1f" .Score}}/10)</p>
{{with .Strengths}}<h3>Strengths</h3><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{with .Weaknesses}}<h3>Weaknesses</h3><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
</section>{{end}}
{{with .Transcript}}<section>
<h2>Session log</h2>
<div class="log">
{{.}}
</div>
</section>{{end}}
<footer><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</small></footer>
</body>
</html>
`))
