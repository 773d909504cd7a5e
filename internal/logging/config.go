package logging

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentq/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level     `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// OutputConfig controls where logs are written. Writer replaces os.Stdout
// when set.
type OutputConfig struct {
	Stdout bool      `koanf:"stdout"`
	OTEL   bool      `koanf:"otel"`
	Writer io.Writer `koanf:"-"`
}

// SamplingConfig controls log volume below Error. Within each Tick the first
// Initial entries with the same message pass, then every Thereafter-th.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

const maxPatternLen = 200

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
		},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "agentqd",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential", "private_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}

	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > maxPatternLen {
				return fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}

	return nil
}
