// Package poller drives one pipeline request from submission to result.
//
// A Poller submits a topic, polls the server log tail at a fixed interval,
// feeds new lines through the parser, renderer and progress tracker, and
// asks the completion detector after every cycle whether this request has
// finished. On completion it stops polling and fetches the result.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/completion"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/logline"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

const (
	DefaultInterval = time.Second
	DefaultLines    = 100
)

var (
	// ErrEmptyTopic is returned for a blank topic before any network call.
	ErrEmptyTopic = errors.New("topic cannot be empty")
	// ErrInvalidIterations is returned when max iterations is below 1.
	ErrInvalidIterations = errors.New("max iterations must be at least 1")
	// ErrSessionActive is returned while another submission is in progress.
	ErrSessionActive = errors.New("a submission is already in progress")
	// ErrStopped is returned when the session was cancelled by Stop.
	ErrStopped = errors.New("session stopped")
)

// API is the part of the newsroom server the poller needs.
type API interface {
	StartCycle(ctx context.Context, req newsroom.StartRequest) (*newsroom.StartAck, error)
	Logs(ctx context.Context, lines int) (string, error)
}

// ResultFetcher retrieves the final result. *result.Fetcher implements it.
type ResultFetcher interface {
	Fetch(ctx context.Context) (*newsroom.PipelineResult, error)
}

// Outcome is how a session ended.
type Outcome struct {
	Session Session
	State   State
	// Status is the terminal status seen in the log.
	Status newsroom.Status
	Result *newsroom.PipelineResult
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLines sets how many tail lines each poll requests.
func WithLines(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.lines = n
		}
	}
}

// WithStartMarkers overrides the completion detector start markers.
func WithStartMarkers(markers ...string) Option {
	return func(p *Poller) { p.markers = markers }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithTracer sets the tracer used for session and cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Poller) { p.tracer = t }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// Poller runs one session at a time.
type Poller struct {
	api      API
	fetcher  ResultFetcher
	renderer *render.Renderer
	tracker  *progress.Tracker

	interval time.Duration
	lines    int
	markers  []string
	observer Observer
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	now      func() time.Time

	mu      sync.Mutex
	state   State
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
	seq     uint64
}

// New creates a Poller. renderer receives every new log record.
func New(api API, fetcher ResultFetcher, renderer *render.Renderer, opts ...Option) *Poller {
	p := &Poller{
		api:      api,
		fetcher:  fetcher,
		renderer: renderer,
		tracker:  progress.NewTracker(),
		interval: DefaultInterval,
		lines:    DefaultLines,
		markers:  completion.DefaultStartMarkers,
		observer: BaseObserver{},
		logger:   logging.Nop(),
		tracer:   otel.Tracer("github.com/fyrsmithlabs/newsroom/internal/poller"),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Session returns a copy of the current session, if any.
func (p *Poller) Session() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return Session{}, false
	}
	return *p.session, true
}

// Progress returns the current progress stage.
func (p *Poller) Progress() progress.Stage {
	return p.tracker.Current()
}

// Stop cancels the active session. A poll or fetch that resolves
// afterwards is discarded. Stop is a no-op when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run submits req and blocks until the session completes, fails, is
// stopped, or ctx ends.
//
// Validation and submission errors return before polling starts and leave
// the poller idle. A detected completion always yields an Outcome; the
// error is non-nil only when the result could not be fetched.
func (p *Poller) Run(ctx context.Context, req Request) (*Outcome, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if req.MaxIterations < 1 {
		return nil, ErrInvalidIterations
	}

	sess := newSession(topic, "", req.MaxIterations, p.now())
	sessCtx, id, err := p.begin(ctx, sess, StateSubmitting)
	if err != nil {
		return nil, err
	}
	defer p.end(id)

	ack, err := p.api.StartCycle(sessCtx, newsroom.StartRequest{
		Topic:         topic,
		MaxIterations: req.MaxIterations,
		Scenario:      req.Scenario,
	})
	if err != nil {
		p.logger.Error(sessCtx, "submission failed", zap.String("topic", topic), zap.Error(err))
		p.transition(id, StateIdle)
		if ctxErr := p.stopErr(ctx, sessCtx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("submit %q: %w", topic, err)
	}

	p.mu.Lock()
	sess.setRunID(ack.RunID)
	p.mu.Unlock()
	sessCtx = logging.WithRunKey(sessCtx, sess.Key)

	p.logger.Info(sessCtx, "cycle submitted",
		zap.String("topic", topic),
		zap.String("run_id", ack.RunID),
		zap.String("key", sess.Key))

	return p.poll(ctx, sessCtx, id, sess)
}

// Watch attaches to a cycle that is already running on the server.
// runID may be empty, in which case the topic scopes detection.
func (p *Poller) Watch(ctx context.Context, topic, runID string) (*Outcome, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" && strings.TrimSpace(runID) == "" {
		return nil, ErrEmptyTopic
	}

	sess := newSession(topic, runID, 0, p.now())
	sessCtx, id, err := p.begin(ctx, sess, StatePolling)
	if err != nil {
		return nil, err
	}
	defer p.end(id)

	return p.poll(ctx, sessCtx, id, sess)
}

// begin resets any previous session and installs sess.
func (p *Poller) begin(ctx context.Context, sess *Session, initial State) (context.Context, uint64, error) {
	p.mu.Lock()
	if p.state == StateSubmitting {
		p.mu.Unlock()
		return nil, 0, ErrSessionActive
	}
	prevCancel, prevDone := p.cancel, p.done
	p.mu.Unlock()

	// Wait for a previous polling session to release the renderer.
	if prevCancel != nil {
		prevCancel()
		select {
		case <-prevDone:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sessCtx = logging.WithRunKey(sessCtx, sess.Key)

	p.mu.Lock()
	p.seq++
	id := p.seq
	p.session = sess
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = initial
	p.mu.Unlock()

	p.renderer.Reset()
	p.tracker.Reset()
	p.observer.OnState(initial, *sess)
	p.observer.OnProgress(p.tracker.Current())

	return sessCtx, id, nil
}

// end releases the session slot held by id.
func (p *Poller) end(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != id {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)
	p.cancel = nil
	p.done = nil
}

// transition moves session id to state and notifies the observer.
func (p *Poller) transition(id uint64, state State) {
	p.mu.Lock()
	if p.seq != id || p.state == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	sess := *p.session
	p.mu.Unlock()
	p.observer.OnState(state, sess)
}

// stopErr reports why the session context ended, if it did.
func (p *Poller) stopErr(parent, sessCtx context.Context) error {
	if sessCtx.Err() == nil {
		return nil
	}
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrStopped
}

func (p *Poller) snapshot(sess *Session) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *sess
}

func (p *Poller) poll(parent, ctx context.Context, id uint64, sess *Session) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "newsroom.session", trace.WithAttributes(
		attribute.String("newsroom.topic", sess.Topic),
		attribute.String("newsroom.run_id", sess.RunID),
		attribute.String("newsroom.key", sess.Key),
	))
	defer span.End()

	p.transition(id, StatePolling)

	detector := completion.New(sess.Key, completion.WithStartMarkers(p.markers...))
	var seen []string

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var status newsroom.Status
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return p.stopped(parent, ctx, id, span)
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return p.stopped(parent, ctx, id, span)
		}
		status, done, seen = p.cycle(ctx, sess, detector, seen)
	}
	ticker.Stop()

	final := p.snapshot(sess)
	p.observer.OnComplete(final, status)
	p.logger.Info(ctx, "completion detected", zap.String("status", string(status)))
	span.AddEvent("completion", trace.WithAttributes(attribute.String("newsroom.status", string(status))))

	res, err := p.fetcher.Fetch(ctx)
	if ctx.Err() != nil {
		// Stopped while fetching: the late result is discarded.
		return p.stopped(parent, ctx, id, span)
	}

	if err != nil {
		p.logger.Error(ctx, "result fetch failed", zap.Error(err))
		p.observer.OnResultError(final, err)
		p.tracker.Finish("fetch failed")
		p.observer.OnProgress(p.tracker.Current())
		p.finish(ctx, id, StateFailed)
		span.SetStatus(codes.Error, err.Error())
		return &Outcome{Session: final, State: StateFailed, Status: status}, err
	}

	label := string(res.Status)
	if res.Status == newsroom.StatusUnknown || res.Status == "" {
		label = string(status)
	}
	p.tracker.Finish(label)
	p.observer.OnProgress(p.tracker.Current())
	p.observer.OnResult(final, res)

	state := StateCompleted
	if status.Failed() || res.Status.Failed() {
		state = StateFailed
		span.SetStatus(codes.Error, "pipeline error")
	}
	p.finish(ctx, id, state)
	return &Outcome{Session: final, State: state, Status: status, Result: res}, nil
}

func (p *Poller) finish(ctx context.Context, id uint64, state State) {
	p.metrics.session(ctx, state)
	p.transition(id, state)
}

func (p *Poller) stopped(parent, ctx context.Context, id uint64, span trace.Span) (*Outcome, error) {
	p.transition(id, StateIdle)
	p.metrics.session(context.WithoutCancel(ctx), StateIdle)
	err := p.stopErr(parent, ctx)
	if err == nil {
		err = ErrStopped
	}
	span.SetStatus(codes.Error, err.Error())
	p.logger.Info(context.WithoutCancel(ctx), "session stopped", zap.Error(err))
	p.mu.Lock()
	sess := *p.session
	p.mu.Unlock()
	return &Outcome{Session: sess, State: StateIdle}, err
}

// cycle runs one poll. It returns the detected status and whether the
// session is complete, plus the lines now considered seen.
func (p *Poller) cycle(ctx context.Context, sess *Session, det *completion.Detector, seen []string) (newsroom.Status, bool, []string) {
	ctx, span := p.tracer.Start(ctx, "newsroom.poll.cycle")
	defer span.End()

	text, err := p.api.Logs(ctx, p.lines)
	if ctx.Err() != nil {
		return "", false, seen
	}
	if err != nil {
		p.logger.Warn(ctx, "log poll failed", zap.Error(err))
		p.metrics.cycle(ctx, 0, err)
		span.RecordError(err)
		p.observer.OnPollError(err)
		return "", false, seen
	}

	lines := logline.SplitLines(text)
	fresh := newLines(seen, lines)
	for _, line := range fresh {
		rec := logline.Parse(line)
		p.observer.OnEntry(p.renderer.Append(rec))
		if st, changed := p.tracker.Observe(rec.Message); changed {
			p.observer.OnProgress(st)
		}
	}
	p.logger.Trace(ctx, "poll cycle", zap.Int("lines", len(lines)), zap.Int("new", len(fresh)))
	p.metrics.cycle(ctx, len(fresh), nil)
	span.SetAttributes(attribute.Int("lines.new", len(fresh)))

	// The tail window moves; the detector keeps the session transcript.
	status, fired := det.Feed(fresh)

	p.mu.Lock()
	sess.LastSeenLineCount = len(lines)
	sess.CycleStartOffset = det.Offset()
	if fired {
		sess.CompletionHandled = true
	}
	p.mu.Unlock()

	return status, fired, lines
}
