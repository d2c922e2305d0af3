// Package logline parses lines of the newsroom server log.
//
// The server writes "YYYY-MM-DD HH:MM:SS | LEVEL | message". Lines that do
// not match (stack traces, blank separators, banners) are kept verbatim as
// INFO records without a timestamp.
package logline

import (
	"regexp"
	"strings"
)

// DefaultLevel is assigned to lines that do not match the wire format.
const DefaultLevel = "INFO"

var linePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})(?:[.,]\d+)?\s*\|\s*(\w+)\s*\|\s?(.*)$`)

// Record is one parsed log line.
type Record struct {
	// Timestamp is HH:MM:SS, or "" when the line carried none.
	Timestamp string
	Level     string
	Message   string
}

// HasTimestamp reports whether the record came from a well-formed line.
func (r Record) HasTimestamp() bool {
	return r.Timestamp != ""
}

// Parse converts one raw line into a Record. It never fails.
func Parse(line string) Record {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Record{Level: DefaultLevel, Message: line}
	}
	return Record{
		Timestamp: m[2],
		Level:     strings.TrimSpace(m[3]),
		Message:   m[4],
	}
}

// SplitLines splits a log tail into lines. A trailing newline does not
// produce an empty final line, and CRLF endings are accepted.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ParseAll parses every line of text.
func ParseAll(text string) []Record {
	lines := SplitLines(text)
	out := make([]Record, 0, len(lines))
	for _, l := range lines {
		out = append(out, Parse(l))
	}
	return out
}
