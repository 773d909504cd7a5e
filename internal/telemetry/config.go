// Package telemetry provides OpenTelemetry instrumentation for agentqd.
package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentq/internal/config"
)

// Protocols accepted for OTLP export.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool            `koanf:"enabled"`
	Endpoint       string          `koanf:"endpoint"`
	Protocol       string          `koanf:"protocol"`
	ServiceName    string          `koanf:"service_name"`
	ServiceVersion string          `koanf:"service_version"`
	Insecure       bool            `koanf:"insecure"`
	TLSSkipVerify  bool            `koanf:"tls_skip_verify"`
	SampleRate     float64         `koanf:"sample_rate"`
	Metrics        MetricsConfig   `koanf:"metrics"`
	ShutdownAfter  config.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// NewDefaultConfig returns telemetry defaults. Export is off until a
// collector is configured.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		ServiceName:    "agentqd",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		SampleRate:     1.0,
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		ShutdownAfter: config.Duration(5 * time.Second),
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics enabled")
	}
	if c.ShutdownAfter.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return nil
}

// isLocalEndpoint reports whether endpoint (host, host:port or URL) names
// the loopback interface.
func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https:// from an endpoint URL. The OTLP
// exporters expect host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
