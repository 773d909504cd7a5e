package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger with test observation capabilities.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger that records every entry at Trace and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries matching message substring.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged verifies a log at level containing message was logged.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msgContains).Len() > 0 {
		return
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged verifies no log at level containing message was logged.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if n := t.observed.FilterLevelExact(level).FilterMessageSnippet(msgContains).Len(); n > 0 {
		tb.Errorf("unexpected %d log(s) at %v containing %q", n, level, msgContains)
	}
}

// AssertField verifies an entry whose message contains msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessageSnippet(msg).All() {
		val, ok := entry.ContextMap()[key]
		if !ok {
			continue
		}
		if reflect.DeepEqual(val, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertNoSecrets fails when a sensitive key carries an unredacted string or
// a message or value contains one of the given secret values.
func (t *TestLogger) AssertNoSecrets(tb testing.TB, values ...string) {
	tb.Helper()
	keys := NewDefaultConfig().Redaction.Fields

	for _, entry := range t.observed.All() {
		for _, v := range values {
			if v != "" && strings.Contains(entry.Message, v) {
				tb.Errorf("secret value in message: %q", entry.Message)
			}
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			lower := strings.ToLower(field.Key)
			for _, k := range keys {
				if strings.Contains(lower, k) && field.String != "" && !strings.HasPrefix(field.String, "[REDACTED") {
					tb.Errorf("sensitive field %q not redacted: %q", field.Key, field.String)
				}
			}
			for _, v := range values {
				if v != "" && strings.Contains(field.String, v) {
					tb.Errorf("secret value in field %q", field.Key)
				}
			}
		}
	}
}

// AssertTraceCorrelation verifies trace_id present in message.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessageSnippet(msg).All() {
		if _, ok := entry.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("message %q missing trace_id", msg)
}
