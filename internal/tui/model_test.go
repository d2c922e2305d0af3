package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsroom/internal/logline"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

type fakeController struct {
	mu      sync.Mutex
	submits []string
	stops   int
}

func (f *fakeController) Submit(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, topic)
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestModel_SubmitTopic(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, NewBridge())

	m = typeText(t, m, "AI in newsrooms")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	assert.Equal(t, []string{"AI in newsrooms"}, ctrl.submits)
	assert.NoError(t, m.Err())
}

func TestModel_EmptyTopicIsRejectedLocally(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, NewBridge())

	m = typeText(t, m, "   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.ErrorIs(t, m.Err(), poller.ErrEmptyTopic)
	assert.Empty(t, ctrl.submits)
	assert.Contains(t, m.View(), "topic cannot be empty")
}

func TestModel_AppliesSessionEvents(t *testing.T) {
	m := NewModel(&fakeController{}, NewBridge())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, m.View(), render.Placeholder)

	b := NewBridge()
	r := render.New(b)
	sess := poller.Session{Topic: "AI", RunID: "run-1", Key: "run-1"}
	b.OnState(poller.StateSubmitting, sess)
	b.OnState(poller.StatePolling, sess)
	r.Append(logline.Parse("2024-05-01 10:00:01 | INFO | [STEP 1/4] RESEARCH AGENT"))
	r.Append(logline.Parse("2024-05-01 10:00:09 | INFO | >>> ARTICLE APPROVED! <<<"))
	b.OnProgress(progress.Stage{Icon: "🔍", Label: "collecting facts", Percent: 25, Step: "Research agent is gathering sources"})
	b.OnPollError(errors.New("timeout"))

	batch := b.Wait()()
	events, ok := batch.(eventsMsg)
	require.True(t, ok)

	m, cmd := update(t, m, events)
	assert.NotNil(t, cmd, "waits for the next batch")

	view := m.View()
	assert.Contains(t, view, "RESEARCH AGENT")
	assert.Contains(t, view, "ARTICLE APPROVED")
	assert.NotContains(t, view, render.Placeholder)
	assert.Contains(t, view, "🔍 collecting facts")
	assert.Contains(t, view, "Research agent is gathering sources")
	assert.Contains(t, view, "run-1")
	assert.Contains(t, view, "1 poll errors")
	assert.Equal(t, poller.StatePolling, m.state)
	assert.Equal(t, 2, m.received)

	iterations := 2
	res := &newsroom.PipelineResult{
		Status:     newsroom.StatusSuccess,
		Iterations: &iterations,
		Article:    &newsroom.Article{Title: "Robots at the desk"},
		Review:     &newsroom.Review{Score: 8},
	}
	b.OnComplete(sess, newsroom.StatusSuccess)
	b.OnProgress(progress.Stage{Percent: 100, Label: "success"})
	b.OnResult(sess, res)
	b.OnState(poller.StateCompleted, sess)
	b.Done(&poller.Outcome{State: poller.StateCompleted}, nil)

	m, _ = update(t, m, b.Wait()())
	view = m.View()
	assert.Same(t, res, m.Result())
	assert.Contains(t, view, "APPROVED")
	assert.Contains(t, view, "Robots at the desk")
	assert.Contains(t, view, "8.0/10")
	assert.Contains(t, view, "100%")
	assert.NoError(t, m.Err())
}

func TestModel_ResultErrorAndStoppedDone(t *testing.T) {
	m := NewModel(&fakeController{}, NewBridge())
	failure := errors.New("result fetch failed after 5 attempts")

	m, _ = update(t, m, eventsMsg{resultErrMsg{err: failure}})
	assert.Equal(t, failure, m.Err())

	m, _ = update(t, m, eventsMsg{stateMsg{state: poller.StateSubmitting}})
	assert.NoError(t, m.Err(), "a new submission clears the error")

	m, _ = update(t, m, eventsMsg{doneMsg{err: poller.ErrStopped}})
	assert.NoError(t, m.Err(), "stopping is not an error")

	m, _ = update(t, m, eventsMsg{doneMsg{err: errors.New("submit \"AI\": connection refused")}})
	assert.Error(t, m.Err())
}

func TestModel_EscStopsActiveSession(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, NewBridge())
	m, _ = update(t, m, eventsMsg{stateMsg{state: poller.StatePolling}})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 1, ctrl.stops)
	assert.True(t, m.input.Focused(), "esc while active only stops")

	m, _ = update(t, m, eventsMsg{stateMsg{state: poller.StateIdle}})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.input.Focused())
}

func TestModel_Quit(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, NewBridge())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, 1, ctrl.stops)
	assert.Empty(t, m.View())
}

func TestModel_QOnlyQuitsOutsideInput(t *testing.T) {
	m := NewModel(&fakeController{}, NewBridge())
	m = typeText(t, m, "q")
	assert.Equal(t, "q", m.input.Value())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.False(t, m.input.Focused())
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_ThroughputHistory(t *testing.T) {
	m := NewModel(&fakeController{}, NewBridge())
	m.received = 7
	m, cmd := update(t, m, tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Equal(t, []float64{7}, m.throughput)
	assert.Zero(t, m.received)

	for i := 0; i < historySize+5; i++ {
		m, _ = update(t, m, tickMsg(time.Now()))
	}
	assert.Len(t, m.throughput, historySize)
}

func TestModel_WithTopic(t *testing.T) {
	m := NewModel(&fakeController{}, NewBridge(), WithTopic("Climate"), WithServer("http://localhost:8000"))
	assert.True(t, m.autoSubmit)
	assert.Equal(t, "Climate", m.input.Value())
	assert.Contains(t, m.View(), "http://localhost:8000")

	m = NewModel(&fakeController{}, NewBridge(), WithTopic("  "))
	assert.False(t, m.autoSubmit)
}

func TestHealthBadge(t *testing.T) {
	assert.Contains(t, healthBadge(nil), "checking")
	assert.Contains(t, healthBadge(&newsroom.HealthStatus{}), "OFFLINE")
	assert.Contains(t, healthBadge(&newsroom.HealthStatus{Reachable: true, Latency: 12 * time.Millisecond}), "ONLINE 12.0ms")
	assert.Contains(t, healthBadge(&newsroom.HealthStatus{Reachable: true, Latency: 2 * time.Second}), "SLOW")
}

func TestBridge_BatchesAndCloses(t *testing.T) {
	b := NewBridge()
	b.Clear()
	b.ShowPlaceholder("waiting")
	b.OnHealth(newsroom.HealthStatus{Reachable: true})

	msg := b.Wait()()
	events, ok := msg.(eventsMsg)
	require.True(t, ok)
	assert.Len(t, events, 3)

	done := make(chan tea.Msg, 1)
	go func() { done <- b.Wait()() }()
	b.Close()
	select {
	case got := <-done:
		assert.Nil(t, got)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}

	b.Clear()
	assert.Nil(t, b.Wait()(), "pushes after Close are dropped")
}

func TestBridge_EscapesControlSequences(t *testing.T) {
	b := NewBridge()
	assert.Equal(t, "red", b.Escape("\x1b[31mred\x1b[0m"))
	assert.False(t, strings.ContainsRune(b.Escape("a\x07b"), '\x07'))
}
