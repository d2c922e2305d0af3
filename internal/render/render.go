// Package render displays parsed log records on an output surface.
//
// The Renderer owns ordering, classification, the placeholder shown before
// the first record, and the timestamp fallback. Surfaces own presentation
// and escaping, so a message is never displayed without passing through
// the escaper of the surface that shows it.
package render

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/newsroom/internal/logline"
)

// Placeholder is shown until the first record arrives.
const Placeholder = "Waiting for logs…"

// Class is a set of visual emphasis flags. Flags combine.
type Class uint8

const (
	ClassStep Class = 1 << iota
	ClassIteration
	ClassSuccess
)

// Has reports whether c contains flag.
func (c Class) Has(flag Class) bool {
	return c&flag != 0
}

// Names returns the flag names in a stable order.
func (c Class) Names() []string {
	var out []string
	if c.Has(ClassStep) {
		out = append(out, "step")
	}
	if c.Has(ClassIteration) {
		out = append(out, "iteration")
	}
	if c.Has(ClassSuccess) {
		out = append(out, "success")
	}
	return out
}

var stepMarkers = []string{"[STEP 1/4]", "[STEP 2/4]", "[STEP 3/4]", "[STEP 4/4]", "STEP"}

var successMarkers = []string{"APPROVED", "SUCCESS", "ZAAKCEPTOWANY"}

// Classify returns the emphasis flags for a message.
func Classify(msg string) Class {
	var c Class
	for _, m := range stepMarkers {
		if strings.Contains(msg, m) {
			c |= ClassStep
			break
		}
	}
	if strings.Contains(msg, "ITERATION") {
		c |= ClassIteration
	}
	for _, m := range successMarkers {
		if strings.Contains(msg, m) {
			c |= ClassSuccess
			break
		}
	}
	return c
}

// Entry is a record prepared for display. Level and Message are already
// escaped for the surface that received it.
type Entry struct {
	Time    string
	Level   string
	Message string
	Class   Class
	// Synthetic marks a timestamp taken from the local clock.
	Synthetic bool
}

// Surface is an output target for log entries.
type Surface interface {
	// Escape neutralizes markup or control sequences for this surface.
	Escape(s string) string
	// ShowPlaceholder displays the empty-log placeholder.
	ShowPlaceholder(text string)
	// Clear removes everything, including the placeholder.
	Clear()
	// Append shows e after all previous entries and scrolls to it.
	Append(e Entry)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the clock used for records without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// Renderer appends records to a surface in arrival order.
// It is not safe for concurrent use.
type Renderer struct {
	surface Surface
	now     func() time.Time
	count   int
}

// New creates a Renderer and shows the placeholder on s.
func New(s Surface, opts ...Option) *Renderer {
	r := &Renderer{surface: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	s.ShowPlaceholder(Placeholder)
	return r
}

// Append displays rec and returns the entry that was shown.
func (r *Renderer) Append(rec logline.Record) Entry {
	if r.count == 0 {
		r.surface.Clear()
	}
	r.count++

	e := Entry{
		Time:    rec.Timestamp,
		Level:   r.surface.Escape(rec.Level),
		Message: r.surface.Escape(rec.Message),
		Class:   Classify(rec.Message),
	}
	if e.Time == "" {
		e.Time = r.now().Format("15:04:05")
		e.Synthetic = true
	}
	r.surface.Append(e)
	return e
}

// Reset clears the surface and restores the placeholder.
func (r *Renderer) Reset() {
	r.count = 0
	r.surface.Clear()
	r.surface.ShowPlaceholder(Placeholder)
}

// Len returns the number of entries shown since the last reset.
func (r *Renderer) Len() int {
	return r.count
}

// Tee is a Surface that mirrors every call to several surfaces. Each
// surface escapes the raw text itself.
type Tee []Surface

// Escape implements Surface. Text passes through unchanged; Append
// escapes it per surface.
func (t Tee) Escape(s string) string { return s }

// ShowPlaceholder implements Surface.
func (t Tee) ShowPlaceholder(text string) {
	for _, s := range t {
		s.ShowPlaceholder(text)
	}
}

// Clear implements Surface.
func (t Tee) Clear() {
	for _, s := range t {
		s.Clear()
	}
}

// Append implements Surface.
func (t Tee) Append(e Entry) {
	for _, s := range t {
		out := e
		out.Level = s.Escape(e.Level)
		out.Message = s.Escape(e.Message)
		s.Append(out)
	}
}
