package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret(" + redacted + ")"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
