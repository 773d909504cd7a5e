package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AGENTQ_"
)

// DefaultPath returns ~/.config/agentq/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agentq", "config.yaml"), nil
}

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AGENTQ_SERVER_HTTP_PORT, AGENTQ_QUEUE_REPLY_POLICY, etc.)
//  2. YAML config file
//  3. Default()
//
// With an empty configPath the default path is used and a missing file is
// not an error. An explicit path must exist.
//
// Config files must have 0600 or 0400 permissions and be at most 1MB.
//
// Environment variables map the first segment after the prefix to the
// section and keep underscores in the field name:
//
//	AGENTQ_SERVER_HTTP_PORT   -> server.http_port
//	AGENTQ_QUEUE_REPLY_POLICY -> queue.reply_policy
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	content, err := readConfigFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps AGENTQ_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", info.Name())
	}

	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults fills fields a file or env var explicitly blanked.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	if cfg.Queue.Namespace == "" {
		cfg.Queue.Namespace = def.Queue.Namespace
	}
	if cfg.Queue.ReplyPolicy == "" {
		cfg.Queue.ReplyPolicy = def.Queue.ReplyPolicy
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = def.Queue.PollInterval
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = def.Telemetry.Protocol
	}
}
