package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentq/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/agentq/internal/orchestrator"

// dispatchMetrics holds the dispatcher's OTEL instruments. Instruments that
// fail to register stay nil and are skipped.
type dispatchMetrics struct {
	processed  metric.Int64Counter
	agentCalls metric.Int64Counter
	guarded    metric.Int64Counter
	violations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newDispatchMetrics(mp metric.MeterProvider, logger *logging.Logger) *dispatchMetrics {
	meter := mp.Meter(instrumentationName)
	m := &dispatchMetrics{}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "failed to create instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	var err error
	m.processed, err = meter.Int64Counter("agentq.dispatch.tasks_total",
		metric.WithDescription("Tasks processed by the dispatcher, labeled by resulting status."),
		metric.WithUnit("{task}"))
	warn("tasks_total", err)

	m.agentCalls, err = meter.Int64Counter("agentq.dispatch.agent_calls_total",
		metric.WithDescription("Agent invocations, labeled by result (ok, retryable, rejected, timeout)."),
		metric.WithUnit("{call}"))
	warn("agent_calls_total", err)

	m.guarded, err = meter.Int64Counter("agentq.dispatch.guard_conversions_total",
		metric.WithDescription("Results converted by the blocked-output guard, labeled by rule and blocked reason."),
		metric.WithUnit("{result}"))
	warn("guard_conversions_total", err)

	m.violations, err = meter.Int64Counter("agentq.dispatch.output_violations_total",
		metric.WithDescription("Supervisor output rule violations on completed tasks, labeled by rule and severity."),
		metric.WithUnit("{violation}"))
	warn("output_violations_total", err)

	m.duration, err = meter.Float64Histogram("agentq.dispatch.duration_seconds",
		metric.WithDescription("Wall time to process one claimed task."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800))
	warn("duration_seconds", err)

	return m
}

func (m *dispatchMetrics) taskDone(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	if m.processed != nil {
		m.processed.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *dispatchMetrics) agentCall(ctx context.Context, result string) {
	if m.agentCalls != nil {
		m.agentCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (m *dispatchMetrics) guardConversion(ctx context.Context, rule, reason string) {
	if m.guarded != nil {
		m.guarded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule", rule),
			attribute.String("blocked_reason", reason),
		))
	}
}

func (m *dispatchMetrics) violation(ctx context.Context, rule, severity string) {
	if m.violations != nil {
		m.violations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule", rule),
			attribute.String("severity", severity),
		))
	}
}
