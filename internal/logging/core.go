package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// instrumentationScope names the OTEL logger.
const instrumentationScope = "github.com/fyrsmithlabs/agentq"

// newCore creates a core with stdout and/or OTEL outputs, wrapped in the
// sampler.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		var writer zapcore.WriteSyncer = os.Stdout
		if cfg.Output.Writer != nil {
			writer = zapcore.AddSync(cfg.Output.Writer)
		}
		cores = append(cores, zapcore.NewCore(encoder, writer, cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationScope,
			otelzap.WithLoggerProvider(otelProvider),
		))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// newSampledCore samples entries below Error. Error and above always pass.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	high := &levelFilterCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}
	below := &levelFilterCore{Core: core, min: TraceLevel, max: zapcore.WarnLevel}

	sampled := zapcore.NewSamplerWithOptions(below, cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter)
	return zapcore.NewTee(high, sampled)
}

// levelFilterCore passes entries in [min, max].
type levelFilterCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
