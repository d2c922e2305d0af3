package poller

import (
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

// Observer receives session events. Calls come from the session goroutine
// in the order the events happen; implementations must not block.
type Observer interface {
	OnState(state State, sess Session)
	OnEntry(e render.Entry)
	OnProgress(st progress.Stage)
	OnPollError(err error)
	OnComplete(sess Session, status newsroom.Status)
	OnResult(sess Session, res *newsroom.PipelineResult)
	OnResultError(sess Session, err error)
}

// BaseObserver implements Observer with no-ops for embedding.
type BaseObserver struct{}

func (BaseObserver) OnState(State, Session)                     {}
func (BaseObserver) OnEntry(render.Entry)                       {}
func (BaseObserver) OnProgress(progress.Stage)                  {}
func (BaseObserver) OnPollError(error)                          {}
func (BaseObserver) OnComplete(Session, newsroom.Status)        {}
func (BaseObserver) OnResult(Session, *newsroom.PipelineResult) {}
func (BaseObserver) OnResultError(Session, error)               {}

// MultiObserver fans events out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnState(state State, sess Session) {
	for _, o := range m {
		o.OnState(state, sess)
	}
}

func (m MultiObserver) OnEntry(e render.Entry) {
	for _, o := range m {
		o.OnEntry(e)
	}
}

func (m MultiObserver) OnProgress(st progress.Stage) {
	for _, o := range m {
		o.OnProgress(st)
	}
}

func (m MultiObserver) OnPollError(err error) {
	for _, o := range m {
		o.OnPollError(err)
	}
}

func (m MultiObserver) OnComplete(sess Session, status newsroom.Status) {
	for _, o := range m {
		o.OnComplete(sess, status)
	}
}

func (m MultiObserver) OnResult(sess Session, res *newsroom.PipelineResult) {
	for _, o := range m {
		o.OnResult(sess, res)
	}
}

func (m MultiObserver) OnResultError(sess Session, err error) {
	for _, o := range m {
		o.OnResultError(sess, err)
	}
}
