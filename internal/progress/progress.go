// Package progress infers coarse pipeline progress from log messages.
package progress

import (
	"strings"
	"sync"
)

// Stage is a point on the progress bar.
type Stage struct {
	Icon    string
	Label   string
	Percent int
	// Step describes what the pipeline is doing at this stage.
	Step string
}

// Complete is the stage reported once a cycle has finished.
const Complete = 100

type rule struct {
	triggers []string
	stage    Stage
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{[]string{"RESEARCH AGENT", "[STEP 1/4]"}, Stage{"🔍", "collecting facts", 25, "Research agent is gathering sources"}},
	{[]string{"WRITER AGENT", "[STEP 2/4]"}, Stage{"✍️", "drafting article", 50, "Writer agent is drafting the article"}},
	{[]string{"CLICKBAIT", "[STEP 3/4]"}, Stage{"🤖", "ML scoring", 65, "Clickbait detector is scoring the headline"}},
	{[]string{"EDITOR AGENT", "[STEP 4/4]"}, Stage{"📝", "editorial review", 80, "Editor agent is reviewing the draft"}},
	{[]string{"ITERATION 2/"}, Stage{"🔄", "revision iteration 2", 60, "Writer is revising after editor feedback"}},
}

// finishIcons mark the terminal stage by status.
var finishIcons = map[string]string{
	"success":        "✅",
	"rejected":       "❌",
	"max_iterations": "⚠️",
	"error":          "❌",
}

var initial = Stage{Icon: "📨", Label: "submitted"}

// Infer maps a message to a stage. ok is false when no rule matches, in
// which case the displayed progress must not change.
func Infer(msg string) (Stage, bool) {
	for _, r := range rules {
		for _, t := range r.triggers {
			if strings.Contains(msg, t) {
				return r.stage, true
			}
		}
	}
	return Stage{}, false
}

// Tracker holds the current stage of one session.
// Progress is not monotonic: a revision iteration moves it back to 60.
type Tracker struct {
	mu      sync.Mutex
	current Stage
}

// NewTracker starts at zero.
func NewTracker() *Tracker {
	return &Tracker{current: initial}
}

// Observe applies msg and reports whether the stage changed.
func (t *Tracker) Observe(msg string) (Stage, bool) {
	st, ok := Infer(msg)
	if !ok {
		return t.Current(), false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := st != t.current
	t.current = st
	return st, changed
}

// Finish moves to 100% labelled with the terminal status.
func (t *Tracker) Finish(status string) Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	icon, ok := finishIcons[status]
	if !ok {
		icon = "⚠️"
	}
	t.current = Stage{Icon: icon, Label: status, Percent: Complete}
	return t.current
}

// Reset returns to the initial stage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = initial
	t.mu.Unlock()
}

// Current returns the current stage.
func (t *Tracker) Current() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// String formats the stage for a status line.
func (s Stage) String() string {
	var b strings.Builder
	if s.Icon != "" {
		b.WriteString(s.Icon + " ")
	}
	b.WriteString(s.Label)
	if s.Step != "" {
		b.WriteString(": " + s.Step)
	}
	return b.String()
}

// Fraction returns the current stage as 0..1 for progress bars.
func (s Stage) Fraction() float64 {
	return float64(s.Percent) / 100
}
