package tui

import (
	"context"

	"github.com/fyrsmithlabs/newsroom/internal/poller"
)

// Controller starts and stops sessions on behalf of the model.
type Controller interface {
	// Submit starts a session for topic without blocking.
	Submit(topic string)
	// Stop cancels the active session.
	Stop()
}

// PollerController drives a poller.Poller and reports each finished call
// to the bridge.
type PollerController struct {
	Ctx           context.Context
	Poller        *poller.Poller
	Bridge        *Bridge
	MaxIterations int
	Scenario      string

	// RunID, when set, makes Submit attach to a running cycle instead of
	// starting one.
	RunID string
	Watch bool
}

// Submit implements Controller.
func (c *PollerController) Submit(topic string) {
	go func() {
		var (
			out *poller.Outcome
			err error
		)
		if c.Watch {
			out, err = c.Poller.Watch(c.Ctx, topic, c.RunID)
		} else {
			out, err = c.Poller.Run(c.Ctx, poller.Request{
				Topic:         topic,
				MaxIterations: c.MaxIterations,
				Scenario:      c.Scenario,
			})
		}
		c.Bridge.Done(out, err)
	}()
}

// Stop implements Controller.
func (c *PollerController) Stop() {
	c.Poller.Stop()
}
