package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers for the process.
//
// Exporter failures do not fail New; the instance is marked degraded and
// the global no-op providers stay in place.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	healthy  atomic.Bool
	degraded atomic.Bool

	mu      sync.Mutex
	reasons []string
}

// New validates cfg and initializes providers. A disabled config yields a
// no-op instance.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	t.healthy.Store(true)

	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded("tracer provider: %v", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded("meter provider: %v", err)
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope, falling back
// to the global provider.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope, falling back
// to the global provider.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// MeterProvider returns the active meter provider.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return t.meterProvider
}

// LoggerProvider returns the log provider for the zap bridge. May be nil.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider sets the log provider for the zap bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// Shutdown flushes and stops all providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownAfter.Duration())
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthStatus reports provider state.
type HealthStatus struct {
	Healthy  bool     `json:"healthy"`
	Degraded bool     `json:"degraded"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	t.mu.Lock()
	reasons := append([]string(nil), t.reasons...)
	t.mu.Unlock()
	return HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
		Reasons:  reasons,
	}
}

// IsEnabled returns true if telemetry is enabled and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load()
}

func (t *Telemetry) setDegraded(format string, args ...interface{}) {
	t.degraded.Store(true)
	t.mu.Lock()
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}
