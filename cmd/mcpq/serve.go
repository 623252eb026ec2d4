package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpq/internal/app"
	"mcpq/internal/infra/config"
	"mcpq/internal/infra/notifications"
	"mcpq/internal/infra/queue"
	"mcpq/internal/infra/registry"
	"mcpq/internal/infra/telemetry"
	"mcpq/internal/infra/transport"

	"mcpq/internal/domain"
)

func newServeCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Supervise an MCP server and serve the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			provider, err := config.NewDynamicProvider(ctx, opts.configPath, logger)
			if err != nil {
				return err
			}
			cfg := provider.Current()
			if len(cfg.Server.Cmd) == 0 {
				return fmt.Errorf("server.cmd is required to serve")
			}

			session, err := transport.ConnectStdio(ctx, version, transport.StdioOptions{
				Cmd:    cfg.Server.Cmd,
				Env:    cfg.Server.Env,
				Cwd:    cfg.Server.Cwd,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			metrics := telemetry.NewPrometheusMetrics(promRegistry)
			hub := notifications.NewHub()

			reg := registry.New(registry.Config{
				DefaultTrustLevel: domain.TrustLevel(cfg.Registry.DefaultTrustLevel),
			}, registry.Options{
				Logger:  logger,
				Metrics: metrics,
				Events:  hub,
			})
			reg.RegisterLoader("mcp", transport.NewLoader(session))

			q := queue.New(session, queueConfig(cfg.Queue), queue.Options{
				Logger:  logger,
				Metrics: metrics,
				Events:  hub,
			})

			manager := app.NewManager(session, q, reg, app.ManagerOptions{
				Logger:   logger,
				Policies: cfg.Tools,
			})
			defer func() { _ = manager.Close() }()

			if err := manager.RefreshToolRegistry(ctx); err != nil {
				return err
			}
			if err := provider.Watch(ctx); err != nil {
				return err
			}
			go manager.WatchConfig(ctx, provider.Subscribe(ctx))

			if cfg.Observability.Enabled {
				return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
					Addr:     cfg.Observability.ListenAddress,
					Registry: promRegistry,
					Ready:    manager.IsReady,
				}, logger)
			}

			<-ctx.Done()
			return nil
		},
	}
}

func queueConfig(cfg config.QueueConfig) queue.Config {
	return queue.Config{
		MaxSize:         cfg.MaxSize,
		MaxConcurrent:   cfg.MaxConcurrent,
		ProcessInterval: cfg.ProcessInterval(),
		EnablePriority:  cfg.EnablePriority,
		EnableRateLimit: cfg.RateLimit.Enabled,
		RateLimit:       cfg.RateLimit.Limit,
		RateLimitWindow: cfg.RateLimit.Window(),
		RequestTimeout:  cfg.RequestTimeout(),
		MaxRetries:      cfg.MaxRetries,
		RetryBaseDelay:  cfg.RetryBaseDelay(),
		RetryMaxDelay:   cfg.RetryMaxDelay(),
		EnableDebugging: cfg.EnableDebugging,
	}
}
