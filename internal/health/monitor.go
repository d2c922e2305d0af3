// Package health polls the newsroom server's liveness endpoint.
//
// The monitor runs independently of any pipeline session: it checks once
// on Start and then every interval until stopped.
package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

// DefaultInterval is the time between liveness checks.
const DefaultInterval = 30 * time.Second

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Checker performs one liveness check. *newsroom.Client implements it.
type Checker interface {
	Health(ctx context.Context) newsroom.HealthStatus
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the check interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor tracks server reachability.
type Monitor struct {
	checker  Checker
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	last    atomic.Pointer[newsroom.HealthStatus]
	checked atomic.Bool

	mu        sync.RWMutex
	callbacks []func(newsroom.HealthStatus)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor creates a monitor. It does not check until Start.
func NewMonitor(checker Checker, opts ...Option) *Monitor {
	m := &Monitor{
		checker:  checker,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers cb to run after every check whose reachability
// differs from the previous one. The first check always notifies.
func (m *Monitor) OnChange(cb func(newsroom.HealthStatus)) error {
	if cb == nil {
		return fmt.Errorf("health: callback cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
	return nil
}

// Start checks immediately and then every interval until ctx ends or
// Stop is called. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(ctx)
	}()
}

// Stop halts the monitor and waits for an in-flight check to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Last returns the most recent status. ok is false before the first check.
func (m *Monitor) Last() (newsroom.HealthStatus, bool) {
	st := m.last.Load()
	if st == nil {
		return newsroom.HealthStatus{}, false
	}
	return *st, true
}

// Check runs one check, records it and notifies on change.
func (m *Monitor) Check(ctx context.Context) newsroom.HealthStatus {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := m.checker.Health(cctx)
	prev := m.last.Swap(&st)
	first := !m.checked.Swap(true)

	if first || prev == nil || prev.Reachable != st.Reachable {
		if st.Reachable {
			m.logger.Info(ctx, "server reachable",
				zap.String("service", st.Service),
				zap.Duration("latency", st.Latency))
		} else {
			m.logger.Warn(ctx, "server unreachable", zap.Error(st.Err))
		}
		m.notify(ctx, st)
	} else {
		m.logger.Debug(ctx, "health check", zap.Bool("reachable", st.Reachable))
	}
	return st
}

func (m *Monitor) run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// notify fires callbacks in registration order. A panicking callback is
// logged and does not stop the others.
func (m *Monitor) notify(ctx context.Context, st newsroom.HealthStatus) {
	m.mu.RLock()
	callbacks := make([]func(newsroom.HealthStatus), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error(ctx, "health callback panic", zap.Any("panic", r))
				}
			}()
			cb(st)
		}()
	}
}
