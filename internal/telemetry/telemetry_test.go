package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricAttr(outcome string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate(), "disabled default is valid")

	enabled := func() *Config {
		c := NewDefaultConfig()
		c.Enabled = true
		return c
	}
	require.NoError(t, enabled().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"no service", func(c *Config) { c.ServiceName = "" }},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }},
		{"rate above one", func(c *Config) { c.SampleRate = 1.5 }},
		{"zero export interval", func(c *Config) { c.Metrics.ExportInterval = 0 }},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enabled()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4318"))
	assert.True(t, isLocalEndpoint("http://127.0.0.1:4318"))
	assert.True(t, isLocalEndpoint("[::1]:4317"))
	assert.False(t, isLocalEndpoint("collector.internal:4317"))
	assert.False(t, isLocalEndpoint("10.0.0.8:4317"))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel.example.com:443", stripScheme("https://otel.example.com:443"))
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("newsroom"))
	assert.NotNil(t, tel.Meter("newsroom"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "carrier-pigeon"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestTestTelemetry_RecordsSpansAndCounters(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "poll.cycle")
	span.SetAttributes(attribute.Int("lines.new", 3))
	span.End()

	counter, err := tel.Meter("test").Int64Counter("newsroom.poll.cycles")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttr("ok"))
	counter.Add(ctx, 1, metricAttr("error"))

	tel.AssertSpanExists(t, "poll.cycle")
	tel.AssertSpanAttribute(t, "poll.cycle", "lines.new", int64(3))
	assert.Equal(t, int64(3), tel.CounterValue(t, "newsroom.poll.cycles"))
	assert.Equal(t, int64(1), tel.CounterValueWith(t, "newsroom.poll.cycles", attribute.String("outcome", "error")))
}
