package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if ns := NamespaceFromContext(ctx); ns != "" {
		fields = append(fields, zap.String("queue.namespace", ns))
	}
	if id := TaskIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("task.id", id))
	}
	if group := TaskGroupIDFromContext(ctx); group != "" {
		fields = append(fields, zap.String("task.group", group))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type (
	taskCtxKey      struct{}
	groupCtxKey     struct{}
	namespaceCtxKey struct{}
	requestCtxKey   struct{}
	loggerCtxKey    struct{}
)

// idPattern bounds every correlation value that ends up in a log line.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]{0,127}$`)

// withID stores id under key. Values that do not match idPattern are
// dropped and ctx is returned unchanged, so client-supplied ids never reach
// the logs verbatim.
func withID(ctx context.Context, key any, id string) context.Context {
	if !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFromContext(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithTaskID adds a task id to context.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withID(ctx, taskCtxKey{}, id)
}

// TaskIDFromContext extracts the task id from context.
func TaskIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, taskCtxKey{})
}

// WithTaskGroupID adds a task group id to context.
func WithTaskGroupID(ctx context.Context, id string) context.Context {
	return withID(ctx, groupCtxKey{}, id)
}

// TaskGroupIDFromContext extracts the task group id from context.
func TaskGroupIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, groupCtxKey{})
}

// WithNamespace adds a queue namespace to context.
func WithNamespace(ctx context.Context, ns string) context.Context {
	return withID(ctx, namespaceCtxKey{}, ns)
}

// NamespaceFromContext extracts the queue namespace from context.
func NamespaceFromContext(ctx context.Context) string {
	return idFromContext(ctx, namespaceCtxKey{})
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext extracts the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, requestCtxKey{})
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
