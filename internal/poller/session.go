package poller

import (
	"strings"
	"time"
)

// State is the poller lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Active reports whether a session is in flight.
func (s State) Active() bool {
	return s == StateSubmitting || s == StatePolling
}

// Session tracks one in-flight submission.
type Session struct {
	Topic         string
	RunID         string
	MaxIterations int
	StartedAt     time.Time

	// Key scopes completion detection: RunID when the server issued one,
	// otherwise the trimmed topic.
	Key string

	// LastSeenLineCount is the number of tail lines already fed to the renderer.
	LastSeenLineCount int

	// CompletionHandled flips to true once, when completion is detected.
	CompletionHandled bool

	// CycleStartOffset is where the detection scope begins in the session
	// transcript (every line seen so far), or -1 before the start marker is seen.
	CycleStartOffset int
}

func newSession(topic, runID string, maxIterations int, now time.Time) *Session {
	s := &Session{
		Topic:            strings.TrimSpace(topic),
		MaxIterations:    maxIterations,
		CycleStartOffset: -1,
		StartedAt:        now,
	}
	s.setRunID(runID)
	return s
}

func (s *Session) setRunID(runID string) {
	s.RunID = strings.TrimSpace(runID)
	s.Key = s.RunID
	if s.Key == "" {
		s.Key = s.Topic
	}
}

// Request is a topic submission.
type Request struct {
	Topic         string
	MaxIterations int
	// Scenario is forwarded to newsroom-sim to pick a scripted outcome.
	Scenario string
}
