package logging

import (
	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for ultra-verbose logging, such
// as full prompts and agent payloads. Almost always filtered in production.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a string into a zapcore.Level, supporting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// encodeLevel writes "trace" for TraceLevel and zap's lowercase name otherwise.
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
