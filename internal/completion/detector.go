// Package completion decides when the pipeline cycle of one request has ended.
//
// Detection is scoped: only log text after the last start marker carrying
// the session key is considered, so a previous cycle's outcome never
// completes a new request.
package completion

import (
	"strings"
	"sync"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

// DefaultStartMarkers precede the quoted session key on the line that
// opens a cycle.
var DefaultStartMarkers = []string{"START-OF-CYCLE", "ORCHESTRATOR START"}

type rule struct {
	match  func(scope string) bool
	status newsroom.Status
}

func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// rules are checked in order; the first match decides the status.
var rules = []rule{
	{containsAny("ARTICLE APPROVED"), newsroom.StatusSuccess},
	{containsAny("ARTICLE REJECTED"), newsroom.StatusRejected},
	{func(s string) bool {
		return containsAny("CYCLE COMPLETE", "CYKL ZAKONCZONY")(s) ||
			(strings.Contains(s, "MAX ITERATIONS") && strings.Contains(s, "REACHED"))
	}, newsroom.StatusMaxIterations},
	{containsAny("ORCHESTRATOR ERROR", "PIPELINE ERROR"), newsroom.StatusError},
}

// Scope returns the text after the last start marker for key and the byte
// offset where that scope begins. ok is false when no marker is present.
func Scope(text, key string, markers []string) (scope string, offset int, ok bool) {
	offset = -1
	for _, m := range markers {
		needle := m + ": '" + key + "'"
		if i := strings.LastIndex(text, needle); i >= 0 && i+len(needle) > offset {
			offset = i + len(needle)
		}
	}
	if offset < 0 {
		return "", -1, false
	}
	return text[offset:], offset, true
}

// Classify applies the terminal rules to an already scoped text.
func Classify(scope string) (newsroom.Status, bool) {
	for _, r := range rules {
		if r.match(scope) {
			return r.status, true
		}
	}
	return "", false
}

// Option configures a Detector.
type Option func(*Detector)

// WithStartMarkers replaces DefaultStartMarkers.
func WithStartMarkers(markers ...string) Option {
	return func(d *Detector) {
		if len(markers) > 0 {
			d.markers = markers
		}
	}
}

// Detector reports the terminal status of one session at most once.
type Detector struct {
	key     string
	markers []string

	mu         sync.Mutex
	fired      bool
	status     newsroom.Status
	offset     int
	transcript strings.Builder
}

// New creates a detector for the session identified by key.
func New(key string, opts ...Option) *Detector {
	d := &Detector{key: key, markers: DefaultStartMarkers, offset: -1}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check scans the full log text. fired is true only on the call that first
// detects completion; afterwards the text is no longer scanned and the
// recorded status is returned with fired=false.
func (d *Detector) Check(text string) (status newsroom.Status, fired bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.check(text)
}

// Feed appends lines to the session transcript and checks the whole
// transcript. Callers pass only lines not fed before, so the start marker
// stays in scope after it has left the server's tail window. Offset is
// relative to the transcript.
func (d *Detector) Feed(lines []string) (status newsroom.Status, fired bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return d.status, false
	}
	for _, l := range lines {
		d.transcript.WriteString(l)
		d.transcript.WriteByte('\n')
	}
	return d.check(d.transcript.String())
}

func (d *Detector) check(text string) (newsroom.Status, bool) {
	if d.fired {
		return d.status, false
	}

	scope, offset, ok := Scope(text, d.key, d.markers)
	if !ok {
		return "", false
	}
	d.offset = offset

	st, done := Classify(scope)
	if !done {
		return "", false
	}
	d.fired = true
	d.status = st
	return st, true
}

// Done reports whether completion has been detected.
func (d *Detector) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// Status returns the detected status, or "" before detection.
func (d *Detector) Status() newsroom.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Offset returns where the scope began in the last scanned text, or -1
// when no start marker has been seen.
func (d *Detector) Offset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

// Key returns the session key.
func (d *Detector) Key() string {
	return d.key
}
