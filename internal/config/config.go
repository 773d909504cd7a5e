// Package config provides configuration loading for agentqd.
//
// Configuration comes from an optional YAML file overlaid with AGENTQ_*
// environment variables, on top of the values returned by Default.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentq/internal/queue"
)

// Config holds the complete agentqd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Queue      QueueConfig      `koanf:"queue"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Agent      AgentConfig      `koanf:"agent"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Scrub      ScrubConfig      `koanf:"scrub"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QueueConfig holds queue store and dispatcher settings.
type QueueConfig struct {
	Namespace     string   `koanf:"namespace"`
	ReplyPolicy   string   `koanf:"reply_policy"`
	PollInterval  Duration `koanf:"poll_interval"`
	DispatchRate  float64  `koanf:"dispatch_rate"`
	DispatchBurst int      `koanf:"dispatch_burst"`
	Workers       int      `koanf:"workers"`
}

// SupervisorConfig locates supervisor templates and rules.
type SupervisorConfig struct {
	RootDir string `koanf:"root_dir"`
	Watch   bool   `koanf:"watch"`
}

// AgentConfig describes the remote agent endpoint. An empty Endpoint
// disables dispatching; the queue is then driven through the API only.
type AgentConfig struct {
	Endpoint     string   `koanf:"endpoint"`
	Timeout      Duration `koanf:"timeout"`
	Token        Secret   `koanf:"token"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ScrubConfig toggles secret scrubbing of agent output.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Queue: QueueConfig{
			Namespace:     "default",
			ReplyPolicy:   string(queue.ReplyToQueued),
			PollInterval:  Duration(time.Second),
			DispatchRate:  2,
			DispatchBurst: 1,
			Workers:       1,
		},
		Supervisor: SupervisorConfig{
			Watch: true,
		},
		Agent: AgentConfig{
			Timeout:      Duration(10 * time.Minute),
			MaxRetries:   2,
			RetryBackoff: Duration(2 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "agentqd",
			SampleRate:  1.0,
		},
		Scrub: ScrubConfig{
			Enabled: true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Queue.Namespace == "" {
		return errors.New("queue namespace is required")
	}
	if _, err := queue.ParseReplyPolicy(c.Queue.ReplyPolicy); err != nil {
		return fmt.Errorf("queue.reply_policy: %w", err)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1, got %d", c.Queue.Workers)
	}
	if c.Queue.DispatchRate <= 0 {
		return fmt.Errorf("queue.dispatch_rate must be positive, got %v", c.Queue.DispatchRate)
	}
	if c.Queue.DispatchBurst < 1 {
		return fmt.Errorf("queue.dispatch_burst must be at least 1, got %d", c.Queue.DispatchBurst)
	}
	if c.Queue.PollInterval <= 0 {
		return errors.New("queue.poll_interval must be positive")
	}

	if c.Agent.Endpoint != "" && c.Agent.Timeout <= 0 {
		return errors.New("agent.timeout must be positive when an endpoint is set")
	}
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries cannot be negative, got %d", c.Agent.MaxRetries)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}

	return nil
}
