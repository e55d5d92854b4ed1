package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/sqllineage/internal/app"
	"github.com/efebarandurmaz/sqllineage/internal/config"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/server"
	temporalmod "github.com/efebarandurmaz/sqllineage/internal/temporal"
)

const defaultAddr = ":8080"

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	} else if _, err := os.Stat("sqllineage.yaml"); err == nil {
		configPath = "sqllineage.yaml"
	}

	cfg, err := config.LoadAndWarn(configPath)
	if err != nil {
		boot := observability.NewLogger(observability.LogConfig{}, "sqllineage-worker")
		boot.Fatal().Err(err).Msg("config")
	}
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, "sqllineage-worker")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	temporalmod.SetDependencies(&temporalmod.Dependencies{Processor: a.Runner, Observer: a.Progress.Emitter})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		_ = a.Close(ctx)
		return err
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		_ = a.Close(ctx)
		return err
	}
	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Str("workflow", temporalmod.WorkflowName).
		Str("activity", temporalmod.ActivityName).
		Msg("worker started")

	srv := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version, Logger: &logger},
		&server.ShutdownConfig{Logger: &logger},
	)
	registerChecks(srv.Health, a, c)
	srv.Health.Mount("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv.Health.Mount("/api/", a.Progress.Server.Handler())

	srv.Shutdown.Add(server.TemporalWorkerShutdownHook(w.Stop))
	srv.Shutdown.Add(server.StoreShutdownHook("temporal-client", func(context.Context) error {
		c.Close()
		return nil
	}))
	// Closes tracing and every sink in reverse opening order.
	srv.Shutdown.Add(server.StoreShutdownHook("app", a.Close))

	addr := cfg.Metrics.Addr
	if addr == "" {
		addr = defaultAddr
	}
	srv.Start(addr)
	logger.Info().Str("addr", addr).Msg("health, metrics and progress listening")

	err = srv.Wait()
	logger.Info().Msg("worker stopped")
	return err
}

func registerChecks(h *server.HealthServer, a *app.App, c temporalclient.Client) {
	h.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	if a.Store != nil {
		h.RegisterCheck("database", server.DatabaseHealthChecker(a.Store.DB().PingContext))
	}
	if p, ok := a.Graph.(pinger); ok {
		h.RegisterCheck("graph", server.SinkHealthChecker("neo4j", p.Ping))
	}
	if p, ok := a.Vectors.(pinger); ok {
		h.RegisterCheck("vector", server.SinkHealthChecker("qdrant", p.Ping))
	}
	h.RegisterCheck("llm", server.LLMHealthChecker(a.Runner.ProviderName(), nil))
}
