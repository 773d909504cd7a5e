// Package logging provides structured logging with OpenTelemetry integration.
//
// The Logger wraps Zap with:
//   - a Trace level below Debug
//   - stdout and OpenTelemetry outputs
//   - correlation fields pulled from the context (trace, task, namespace, request)
//   - key and pattern based secret redaction
//   - sampling below Error
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTaskID(ctx, task.ID)
//	ctx = logging.WithNamespace(ctx, "default")
//	logger.Info(ctx, "task claimed", zap.Int("attempt", task.Attempt))
//
// Output:
//
//	{"level":"info","ts":"2025-01-01T12:00:00.000Z","msg":"task claimed",
//	 "service":"agentqd","task.id":"...","queue.namespace":"default","attempt":1}
//
// Packages that only need a *zap.Logger take Underlying().
//
// # Testing
//
//	logger := logging.NewTestLogger()
//	svc := NewService(logger.Logger)
//	svc.DoWork(ctx)
//	logger.AssertLogged(t, zapcore.InfoLevel, "work completed")
//	logger.AssertNoSecrets(t)
package logging
