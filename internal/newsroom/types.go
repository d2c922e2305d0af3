// Package newsroom is the HTTP client for the Autonomous Newsroom server.
package newsroom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal state of a pipeline cycle.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusRejected      Status = "rejected"
	StatusMaxIterations Status = "max_iterations"
	StatusError         Status = "error"
	StatusUnknown       Status = "unknown"
	// StatusNoResult means the server has not published a result yet.
	StatusNoResult Status = "no_result"
)

// UnmarshalText maps unrecognized statuses to StatusUnknown.
func (s *Status) UnmarshalText(text []byte) error {
	switch v := Status(text); v {
	case StatusSuccess, StatusRejected, StatusMaxIterations, StatusError, StatusNoResult:
		*s = v
	default:
		*s = StatusUnknown
	}
	return nil
}

// Terminal reports whether s ends a cycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusRejected, StatusMaxIterations, StatusError:
		return true
	}
	return false
}

// Failed reports whether s is a pipeline failure rather than an editorial outcome.
func (s Status) Failed() bool {
	return s == StatusError
}

// StartRequest is the body of POST /start-cycle.
type StartRequest struct {
	Topic         string `json:"topic"`
	MaxIterations int    `json:"max_iterations"`
	// Scenario selects a scripted outcome on newsroom-sim. Real servers ignore it.
	Scenario string `json:"scenario,omitempty"`
}

// StartAck is the server's acknowledgement of a started cycle.
type StartAck struct {
	Message       string `json:"message"`
	Topic         string `json:"topic"`
	Status        string `json:"status"`
	MaxIterations int    `json:"max_iterations"`
	// RunID is issued by servers that scope cycles; empty otherwise.
	RunID string `json:"run_id,omitempty"`
}

// Article is the generated article.
type Article struct {
	Title     string   `json:"title"`
	Lead      string   `json:"lead"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags"`
	WordCount *int     `json:"word_count,omitempty"`
}

// Review is the editor's verdict.
type Review struct {
	Decision   string   `json:"decision"`
	Score      float64  `json:"score"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// PipelineResult is the outcome of the most recent cycle.
type PipelineResult struct {
	Status     Status    `json:"status"`
	Topic      string    `json:"topic,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Iterations *int      `json:"iterations,omitempty"`
	Article    *Article  `json:"article,omitempty"`
	Review     *Review   `json:"review,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  Timestamp `json:"started_at"`
	FinishedAt Timestamp `json:"finished_at"`

	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}

// HealthStatus is the result of one liveness probe.
type HealthStatus struct {
	Reachable bool          `json:"reachable"`
	Status    string        `json:"status,omitempty"`
	Service   string        `json:"service,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Err       error         `json:"-"`
}

// Timestamp accepts RFC 3339 and the zone-less ISO 8601 form the server
// emits. The zero value encodes as null.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
