package poller

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the poller's OpenTelemetry instruments.
type Metrics struct {
	cycles         metric.Int64Counter
	newLines       metric.Int64Counter
	resultAttempts metric.Int64Counter
	sessions       metric.Int64Counter
}

// NewMetrics creates instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	cycles, err := meter.Int64Counter("newsroom.poll.cycles",
		metric.WithDescription("Log polling cycles by outcome"),
		metric.WithUnit("{cycle}"))
	if err != nil {
		return nil, err
	}
	lines, err := meter.Int64Counter("newsroom.poll.lines",
		metric.WithDescription("New log lines rendered"),
		metric.WithUnit("{line}"))
	if err != nil {
		return nil, err
	}
	attempts, err := meter.Int64Counter("newsroom.result.attempts",
		metric.WithDescription("Result fetch attempts by outcome"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64Counter("newsroom.sessions",
		metric.WithDescription("Finished sessions by terminal state"),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{cycles: cycles, newLines: lines, resultAttempts: attempts, sessions: sessions}, nil
}

func outcomeAttr(err error) metric.AddOption {
	if err != nil {
		return metric.WithAttributes(attribute.String("outcome", "error"))
	}
	return metric.WithAttributes(attribute.String("outcome", "ok"))
}

func (m *Metrics) cycle(ctx context.Context, lines int, err error) {
	if m == nil {
		return
	}
	m.cycles.Add(ctx, 1, outcomeAttr(err))
	if lines > 0 {
		m.newLines.Add(ctx, int64(lines))
	}
}

// ResultAttempt records one result fetch attempt. It matches
// result.AttemptFunc so it can be passed to result.WithAttemptHook.
func (m *Metrics) ResultAttempt(_ int, err error) {
	if m == nil {
		return
	}
	m.resultAttempts.Add(context.Background(), 1, outcomeAttr(err))
}

func (m *Metrics) session(ctx context.Context, state State) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}
