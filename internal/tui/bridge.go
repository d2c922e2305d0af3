package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

// Message types delivered to the model.
type (
	placeholderMsg string
	clearMsg       struct{}
	entryMsg       render.Entry
	stateMsg       struct {
		state   poller.State
		session poller.Session
	}
	progressMsg  progress.Stage
	pollErrMsg   struct{ err error }
	completeMsg  newsroom.Status
	resultMsg    struct{ result *newsroom.PipelineResult }
	resultErrMsg struct{ err error }
	healthMsg    newsroom.HealthStatus
	doneMsg      struct {
		outcome *poller.Outcome
		err     error
	}
	// eventsMsg is one drained batch of queued events.
	eventsMsg []tea.Msg
)

// Bridge carries events from the session goroutine to the bubbletea
// program. It is both the renderer's Surface and the poller's Observer;
// pushes never block.
type Bridge struct {
	poller.BaseObserver

	mu     sync.Mutex
	queue  []tea.Msg
	closed bool
	signal chan struct{}
}

var (
	_ render.Surface  = (*Bridge)(nil)
	_ poller.Observer = (*Bridge)(nil)
)

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{signal: make(chan struct{}, 1)}
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Close wakes a pending Wait, which then returns nil.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Wait returns a command that blocks until events are queued and
// delivers all of them as one batch.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		for {
			b.mu.Lock()
			if len(b.queue) > 0 {
				batch := b.queue
				b.queue = nil
				b.mu.Unlock()
				return eventsMsg(batch)
			}
			if b.closed {
				b.mu.Unlock()
				return nil
			}
			b.mu.Unlock()
			<-b.signal
		}
	}
}

// Escape implements render.Surface.
func (b *Bridge) Escape(s string) string { return render.StripControl(s) }

// ShowPlaceholder implements render.Surface.
func (b *Bridge) ShowPlaceholder(text string) { b.push(placeholderMsg(text)) }

// Clear implements render.Surface.
func (b *Bridge) Clear() { b.push(clearMsg{}) }

// Append implements render.Surface.
func (b *Bridge) Append(e render.Entry) { b.push(entryMsg(e)) }

func (b *Bridge) OnState(state poller.State, sess poller.Session) {
	b.push(stateMsg{state: state, session: sess})
}

func (b *Bridge) OnProgress(st progress.Stage) { b.push(progressMsg(st)) }

func (b *Bridge) OnPollError(err error) { b.push(pollErrMsg{err: err}) }

func (b *Bridge) OnComplete(_ poller.Session, status newsroom.Status) {
	b.push(completeMsg(status))
}

func (b *Bridge) OnResult(_ poller.Session, res *newsroom.PipelineResult) {
	b.push(resultMsg{result: res})
}

func (b *Bridge) OnResultError(_ poller.Session, err error) {
	b.push(resultErrMsg{err: err})
}

// OnHealth forwards a liveness change. Register it with
// health.Monitor.OnChange.
func (b *Bridge) OnHealth(st newsroom.HealthStatus) { b.push(healthMsg(st)) }

// Done reports that a Run or Watch call returned.
func (b *Bridge) Done(out *poller.Outcome, err error) {
	b.push(doneMsg{outcome: out, err: err})
}
