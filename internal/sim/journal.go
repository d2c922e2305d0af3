package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// wireTime is the timestamp layout of a journal line.
const wireTime = "2006-01-02 15:04:05.000"

// Journal is a bounded in-memory log in the orchestrator's wire format:
//
//	2024-05-01 10:00:01.250 | INFO     | message
//
// Continuation lines of a multi-line message are stored unprefixed, the
// way the orchestrator's logger writes them.
type Journal struct {
	mu     sync.Mutex
	lines  []string
	max    int
	mirror io.Writer
	now    func() time.Time
}

// NewJournal keeps at most max lines. mirror, when non-nil, receives every
// line as it is appended.
func NewJournal(max int, mirror io.Writer) *Journal {
	if max <= 0 {
		max = 5000
	}
	return &Journal{max: max, mirror: mirror, now: time.Now}
}

// Log appends msg at level.
func (j *Journal) Log(level, msg string) {
	parts := strings.Split(msg, "\n")
	stamp := j.now().Format(wireTime)

	j.mu.Lock()
	defer j.mu.Unlock()
	for i, p := range parts {
		if i == 0 {
			p = fmt.Sprintf("%s | %-8s | %s", stamp, level, p)
		}
		j.appendLocked(p)
	}
}

func (j *Journal) appendLocked(line string) {
	j.lines = append(j.lines, line)
	if j.mirror != nil {
		_, _ = io.WriteString(j.mirror, line+"\n")
	}
	if over := len(j.lines) - j.max; over > 0 {
		j.lines = append(j.lines[:0:0], j.lines[over:]...)
	}
}

// Tail returns the last n lines, newline-terminated.
func (j *Journal) Tail(n int) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n <= 0 || len(j.lines) == 0 {
		return ""
	}
	start := max(0, len(j.lines)-n)
	return strings.Join(j.lines[start:], "\n") + "\n"
}

// Len returns the number of retained lines.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.lines)
}
