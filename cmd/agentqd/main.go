// Agentqd is the agentq daemon: the task queue, its HTTP API and, when an
// agent endpoint is configured, the dispatcher that runs queued tasks.
//
// Configuration is read from ~/.config/agentq/config.yaml (or -config) and
// AGENTQ_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	agentqd
//
//	# Point the dispatcher at an agent runner
//	AGENTQ_AGENT_ENDPOINT=http://localhost:9000/run agentqd -config ./agentq.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/agentq/internal/config"
	apihttp "github.com/fyrsmithlabs/agentq/internal/http"
	"github.com/fyrsmithlabs/agentq/internal/logging"
	"github.com/fyrsmithlabs/agentq/internal/orchestrator"
	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/secrets"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
	"github.com/fyrsmithlabs/agentq/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/agentq/config.yaml)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "agentqd: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("agentqd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon and blocks until ctx is cancelled or a component
// fails:
//  1. Loads configuration
//  2. Initializes telemetry and the logger
//  3. Builds the store, supervisor registry and scrubber
//  4. Builds the dispatcher when an agent endpoint is configured
//  5. Runs the HTTP server and dispatcher until shutdown
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := newTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.WithoutCancel(ctx))
	}()

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting agentqd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("namespace", cfg.Queue.Namespace),
		zap.String("reply_policy", cfg.Queue.ReplyPolicy),
		zap.String("supervisor_root", cfg.Supervisor.RootDir),
		zap.Bool("dispatcher", cfg.Agent.Endpoint != ""),
	)
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	c, err := build(cfg, tel, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.registry.Close(); err != nil {
			logger.Warn(ctx, "closing supervisor registry", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.server.Start(gctx)
	})
	if c.dispatcher != nil {
		g.Go(func() error {
			return c.dispatcher.Run(gctx, cfg.Queue.Workers)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "agentqd stopped with error", zap.Error(err))
		return err
	}
	logger.Info(ctx, "agentqd shutdown complete")
	return nil
}

// components are the long-lived parts of the daemon.
type components struct {
	store      *queue.MemoryStore
	registry   *supervisor.Registry
	dispatcher *orchestrator.Dispatcher
	server     *apihttp.Server
}

// build constructs every component from cfg without starting anything.
func build(cfg *config.Config, tel *telemetry.Telemetry, logger *logging.Logger) (*components, error) {
	zl := logger.Underlying()

	policy, err := queue.ParseReplyPolicy(cfg.Queue.ReplyPolicy)
	if err != nil {
		return nil, err
	}
	store, err := queue.NewMemoryStore(cfg.Queue.Namespace,
		queue.WithReplyPolicy(policy),
		queue.WithLogger(zl.Named("queue")),
		queue.WithMetrics(queue.NewMetrics()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating task store: %w", err)
	}

	registry := supervisor.NewRegistry(
		supervisor.WithWatch(cfg.Supervisor.Watch),
		supervisor.WithRegistryLogger(zl.Named("supervisor")),
	)

	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Enabled = cfg.Scrub.Enabled
	scrubber, err := secrets.New(scrubCfg)
	if err != nil {
		return nil, fmt.Errorf("creating secret scrubber: %w", err)
	}

	c := &components{store: store, registry: registry}

	if cfg.Agent.Endpoint != "" {
		agent, err := orchestrator.NewHTTPAgent(cfg.Agent.Endpoint, orchestrator.WithToken(cfg.Agent.Token))
		if err != nil {
			return nil, err
		}
		c.dispatcher, err = orchestrator.New(store, agent,
			orchestrator.WithLogger(logger),
			orchestrator.WithMeterProvider(tel.MeterProvider()),
			orchestrator.WithTracer(tel.Tracer("github.com/fyrsmithlabs/agentq/internal/orchestrator")),
			orchestrator.WithSupervisors(registry, cfg.Supervisor.RootDir),
			orchestrator.WithScrubber(scrubber),
			orchestrator.WithRateLimit(cfg.Queue.DispatchRate, cfg.Queue.DispatchBurst),
			orchestrator.WithPollInterval(cfg.Queue.PollInterval.Duration()),
			orchestrator.WithRetryBackoff(cfg.Agent.RetryBackoff.Duration()),
			orchestrator.WithAgentDefaults(cfg.Agent.Timeout.Duration(), cfg.Agent.MaxRetries),
		)
		if err != nil {
			return nil, fmt.Errorf("creating dispatcher: %w", err)
		}
	}

	opts := []apihttp.Option{
		apihttp.WithSupervisors(registry, cfg.Supervisor.RootDir),
		apihttp.WithScrubber(scrubber),
		apihttp.WithTelemetry(tel),
		apihttp.WithHTTPMetrics(apihttp.NewHTTPMetrics(tel.MeterProvider(), zl.Named("http"))),
		apihttp.WithVersion(version),
	}
	if c.dispatcher != nil {
		opts = append(opts, apihttp.WithDispatcher(c.dispatcher))
	}
	c.server, err = apihttp.NewServer(store, logger, &apihttp.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}
	return c, nil
}

func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Telemetry.SampleRate

	tel, err := telemetry.New(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if cfg.Logging.OTEL {
		tel.SetLoggerProvider(global.GetLoggerProvider())
	}
	return tel, nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = cfg.Logging.OTEL
	lc.Fields["version"] = version

	logger, err := logging.NewLogger(lc, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}
