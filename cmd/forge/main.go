// Package main is the entry point for the Forge automation rule engine.
// Forge binds trigger conditions to actions: events arrive over NATS or
// HTTP, fire enabled rules, and enqueue idempotent action plans for
// dispatch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/forge/companion"
	"github.com/c360/forge/config"
	"github.com/c360/forge/dispatch"
	"github.com/c360/forge/health"
	"github.com/c360/forge/ledger"
	"github.com/c360/forge/metric"
	"github.com/c360/forge/natsclient"
	"github.com/c360/forge/rulestore"
	"github.com/c360/forge/scheduler"
	"github.com/c360/forge/service"
)

// Build information constants.
const (
	Version = "0.1.0"
	appName = "forge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// CLI flags win over the config file for logging.
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid", "config", cliCfg.ConfigPath)
		return nil
	}

	ctx := context.Background()
	return runService(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

func runService(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	registry := metric.NewRegistry()
	monitor := health.NewMonitor()

	natsClient, err := connectNATS(ctx, cfg, logger, monitor)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			logger.Warn("nats close failed", "error", err)
		}
	}()

	rules, err := rulestore.NewStore(ctx, natsClient)
	if err != nil {
		return fmt.Errorf("create rule store: %w", err)
	}

	runs, err := ledger.NewLedger(ctx, natsClient)
	if err != nil {
		return fmt.Errorf("create run ledger: %w", err)
	}

	sched, err := scheduler.New(cfg.Scheduler, natsClient, rules, registry, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	server, err := service.NewServer(cfg.Server, rules, natsClient, monitor, registry, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	executors := dispatch.NewRegistry(dispatch.NewNATSExecutor(natsClient))
	dispatcher, err := dispatch.New(natsClient, runs, executors, registry, logger,
		dispatch.WithExecutedHook(server.Hub().BroadcastPlan))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	gate, err := companion.NewGate(natsClient, registry, logger)
	if err != nil {
		return fmt.Errorf("create companion gate: %w", err)
	}

	monitor.Watch("scheduler", sched)
	monitor.Watch("dispatch", dispatcher)
	monitor.Watch("companion", gate)

	components := []namedComponent{
		{"scheduler", sched},
		{"dispatch", dispatcher},
		{"companion", gate},
		{"service", server},
	}

	started := make([]int, 0, len(components))
	for i, c := range components {
		if err := c.Start(ctx); err != nil {
			stopComponents(components, started, shutdownTimeout, logger)
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		started = append(started, i)
	}

	logger.Info("forge started",
		"nats_url", cfg.NATS.URL,
		"http_addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	stopComponents(components, started, shutdownTimeout, logger)
	return nil
}

// runnable is the lifecycle every long-running component implements.
type runnable interface {
	Start(context.Context) error
	Stop(context.Context) error
}

type namedComponent struct {
	name string
	runnable
}

// stopComponents stops started components in reverse start order.
func stopComponents(components []namedComponent, started []int, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(started) - 1; i >= 0; i-- {
		c := components[started[i]]
		if err := c.Stop(ctx); err != nil {
			logger.Warn("component stop failed", "component", c.name, "error", err)
		}
	}
}

func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, monitor *health.Monitor) (*natsclient.Client, error) {
	opts := []natsclient.Option{
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithLogger(logger),
	}
	if cfg.NATS.CredsFile != "" {
		opts = append(opts, natsclient.WithCredsFile(cfg.NATS.CredsFile))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create nats client: %w", err)
	}

	client.OnHealthChange(func(healthy bool) {
		if healthy {
			monitor.Update("nats", health.NewHealthy("nats", "connected"))
		} else {
			monitor.Update("nats", health.NewUnhealthy("nats", "disconnected"))
		}
	})

	connectCtx, cancel := context.WithTimeout(ctx, cfg.NATS.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.NATS.URL, err)
	}
	monitor.Update("nats", health.NewHealthy("nats", "connected"))

	return client, nil
}
