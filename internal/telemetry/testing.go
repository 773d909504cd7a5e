package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry provides in-memory telemetry for tests.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
	Reader       *sdkmetric.ManualReader
}

// NewTestTelemetry creates telemetry backed by a span recorder and a manual
// metric reader.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	tel := &Telemetry{
		config:         cfg,
		tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(rec)),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	tel.healthy.Store(true)

	return &TestTelemetry{Telemetry: tel, SpanRecorder: rec, Reader: reader}
}

// Spans returns all ended spans.
func (t *TestTelemetry) Spans() []trace.ReadOnlySpan {
	return t.SpanRecorder.Ended()
}

// SpanByName finds an ended span by name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, span := range t.Spans() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanExists verifies a span with the given name was recorded.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) != nil {
		return
	}
	names := make([]string, 0, len(t.Spans()))
	for _, s := range t.Spans() {
		names = append(names, s.Name())
	}
	tb.Errorf("expected span %q not found, got: %v", name, names)
}

// AssertSpanAttribute verifies a span has the expected attribute.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, expected interface{}) {
	tb.Helper()
	span := t.SpanByName(spanName)
	if span == nil {
		tb.Fatalf("span %q not found", spanName)
	}
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			if got := attr.Value.AsInterface(); got != expected {
				tb.Errorf("span %q attribute %q: got %v, want %v", spanName, key, got, expected)
			}
			return
		}
	}
	tb.Errorf("span %q missing attribute %q", spanName, key)
}

// CounterValue sums an int64 counter's data points whose attributes include
// every pair in match.
func (t *TestTelemetry) CounterValue(tb testing.TB, name string, match ...attribute.KeyValue) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collecting metrics: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				tb.Fatalf("metric %q is %T, not an int64 sum", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
