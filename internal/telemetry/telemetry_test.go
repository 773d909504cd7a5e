package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "udp"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NotNil(t, tel.MeterProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.True(t, tel.Health().Degraded)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"no service", func(c *Config) { c.ServiceName = "" }},
		{"protocol", func(c *Config) { c.Protocol = "thrift" }},
		{"insecure remote", func(c *Config) { c.Endpoint = "collector.example.com:4317" }},
		{"sample rate", func(c *Config) { c.SampleRate = -0.1 }},
		{"export interval", func(c *Config) { c.Metrics.ExportInterval = 0 }},
		{"shutdown timeout", func(c *Config) { c.ShutdownAfter = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = false
	cfg.Endpoint = "https://collector.example.com:4318"
	cfg.Protocol = ProtocolHTTP
	assert.NoError(t, cfg.Validate())
}

func TestIsLocalEndpoint(t *testing.T) {
	local := []string{"localhost:4317", "127.0.0.1:4317", "[::1]:4317", "http://localhost:4318", "localhost", "::1"}
	for _, ep := range local {
		assert.True(t, isLocalEndpoint(ep), ep)
	}
	remote := []string{"10.0.0.5:4317", "collector:4317", "https://otel.example.com/v1/traces", "localhost.evil.com:4317"}
	for _, ep := range remote {
		assert.False(t, isLocalEndpoint(ep), ep)
	}
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
	var _ trace.Sampler = newSampler(0.5)
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("agentq").Start(context.Background(), "queue.Enqueue")
	span.SetAttributes(attribute.String("task.type", "IMPLEMENTATION"))
	span.End()

	tt.AssertSpanExists(t, "queue.Enqueue")
	tt.AssertSpanAttribute(t, "queue.Enqueue", "task.type", "IMPLEMENTATION")

	c, err := tt.Meter("agentq").Int64Counter("agentq.test.count")
	require.NoError(t, err)
	c.Add(context.Background(), 2, metricAttr("ok"))
	c.Add(context.Background(), 3, metricAttr("fail"))

	assert.EqualValues(t, 5, tt.CounterValue(t, "agentq.test.count"))
	assert.EqualValues(t, 3, tt.CounterValue(t, "agentq.test.count", attribute.String("result", "fail")))
	assert.True(t, tt.IsEnabled())
}

func metricAttr(result string) metric.AddOption {
	return metric.WithAttributes(attribute.String("result", result))
}
