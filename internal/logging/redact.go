package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentq/internal/config"
)

const redacted = "[REDACTED]"

// Secret creates a field that logs only the length of a config.Secret.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with redacted value and length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]bool
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	keys := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		keys[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{Encoder: base, keys: keys, patterns: patterns}, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	return e.keys[strings.ToLower(key)]
}

// AddString redacts sensitive keys and values matching a pattern.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	for _, re := range e.patterns {
		if re.MatchString(val) {
			e.Encoder.AddString(key, "[REDACTED:pattern]")
			return
		}
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		keys:     e.keys,
		patterns: e.patterns,
	}
}

// EncodeEntry routes per-entry fields through the redacting methods. The
// wrapped encoder would otherwise add them to its own clone directly.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clone := e.Clone().(*RedactingEncoder)
	for i := range fields {
		fields[i].AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}
