// Package notify publishes session lifecycle events to NATS.
//
// Events are published to:
//
//	{prefix}.{key}.{kind}
//
// where key is the session's run id (or topic) with subject-reserved
// characters replaced, and kind is one of the Kind constants.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "newsroom.runs"

// Kind names an event.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindPolling   Kind = "polling"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindResult    Kind = "result"
	KindFailed    Kind = "failed"
	KindStopped   Kind = "stopped"
)

// Event is the JSON payload of every message.
type Event struct {
	Kind    Kind            `json:"kind"`
	Topic   string          `json:"topic"`
	RunID   string          `json:"run_id,omitempty"`
	Key     string          `json:"key"`
	Percent int             `json:"percent,omitempty"`
	Label   string          `json:"label,omitempty"`
	Icon    string          `json:"icon,omitempty"`
	Step    string          `json:"step,omitempty"`
	Status  newsroom.Status `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`

	Result *newsroom.PipelineResult `json:"result,omitempty"`
}

// Publisher sends one message. *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier is a poller.Observer that publishes lifecycle events.
// Log entries are not published.
type Notifier struct {
	poller.BaseObserver

	pub    Publisher
	prefix string
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	session poller.Session
}

var _ poller.Observer = (*Notifier)(nil)

// New creates a Notifier publishing under prefix.
func New(pub Publisher, prefix string, logger *logging.Logger) *Notifier {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
		now:    time.Now,
	}
}

// Connect dials url and returns a Notifier over the connection. The
// caller closes the returned connection.
func Connect(url, prefix string, logger *logging.Logger) (*Notifier, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("newsroom"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return New(nc, prefix, logger), nc, nil
}

// Subject returns the subject an event of kind for key is published to.
func (n *Notifier) Subject(key string, kind Kind) string {
	return n.prefix + "." + SubjectToken(key) + "." + string(kind)
}

// SubjectToken makes s usable as a single subject token.
func SubjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

func (n *Notifier) OnState(state poller.State, sess poller.Session) {
	n.mu.Lock()
	n.session = sess
	n.mu.Unlock()

	var kind Kind
	switch state {
	case poller.StateSubmitting:
		kind = KindSubmitted
	case poller.StatePolling:
		kind = KindPolling
	case poller.StateFailed:
		kind = KindFailed
	case poller.StateIdle:
		kind = KindStopped
	default:
		// Completed is announced by OnResult with the payload.
		return
	}
	n.publish(sess, Event{Kind: kind})
}

func (n *Notifier) OnProgress(st progress.Stage) {
	n.mu.Lock()
	sess := n.session
	n.mu.Unlock()
	if sess.Key == "" {
		return
	}
	n.publish(sess, Event{Kind: KindProgress, Percent: st.Percent, Label: st.Label, Icon: st.Icon, Step: st.Step})
}

func (n *Notifier) OnComplete(sess poller.Session, status newsroom.Status) {
	n.publish(sess, Event{Kind: KindCompleted, Status: status})
}

func (n *Notifier) OnResult(sess poller.Session, res *newsroom.PipelineResult) {
	n.publish(sess, Event{Kind: KindResult, Status: res.Status, Result: res})
}

func (n *Notifier) OnResultError(sess poller.Session, err error) {
	n.publish(sess, Event{Kind: KindResult, Error: err.Error()})
}

// publish never fails the session; errors are logged.
func (n *Notifier) publish(sess poller.Session, ev Event) {
	ev.Topic = sess.Topic
	ev.RunID = sess.RunID
	ev.Key = sess.Key
	ev.Time = n.now().UTC()

	subject := n.Subject(sess.Key, ev.Kind)
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn(context.Background(), "marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn(context.Background(), "publish event", zap.String("subject", subject), zap.Error(err))
		return
	}
	n.logger.Debug(context.Background(), "event published", zap.String("subject", subject))
}
