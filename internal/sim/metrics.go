package sim

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records request metrics for the simulator's API.
type HTTPMetrics struct {
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on meter.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requests, err := meter.Int64Counter("newsroom.sim.http.requests",
		metric.WithDescription("HTTP requests by method, endpoint and status"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	dur, err := meter.Float64Histogram("newsroom.sim.http.request_duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("newsroom.sim.http.active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{requestsTotal: requests, requestDur: dur, activeRequests: active}, nil
}

// Middleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			m.activeRequests.Add(ctx, 1)

			err := next(c)
			if err != nil {
				// Let the error handler write the status before it is recorded.
				c.Error(err)
				err = nil
			}

			path := c.Path()
			if path == "" {
				path = "/"
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", path),
				attribute.Int("status", c.Response().Status),
			)
			m.requestsTotal.Add(ctx, 1, attrs)
			m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			m.activeRequests.Add(ctx, -1)
			return err
		}
	}
}

// cycleMetrics are the simulator's Prometheus series, scraped from /metrics.
type cycleMetrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	active   prometheus.Gauge
	lines    prometheus.Gauge
}

func newCycleMetrics(reg prometheus.Registerer) *cycleMetrics {
	f := promauto.With(reg)
	return &cycleMetrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "sim",
			Name:      "cycles_started_total",
			Help:      "Pipeline cycles accepted by /start-cycle",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "sim",
			Name:      "cycles_finished_total",
			Help:      "Pipeline cycles finished, by result status",
		}, []string{"status"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsroom",
			Subsystem: "sim",
			Name:      "cycles_active",
			Help:      "Pipeline cycles currently running",
		}),
		lines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsroom",
			Subsystem: "sim",
			Name:      "journal_lines",
			Help:      "Lines retained in the log journal",
		}),
	}
}
