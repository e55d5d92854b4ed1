// Package app assembles the runtime from configuration: classifier, sinks,
// ledger, index, telemetry and the pipeline runner. Both binaries use it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/sqllineage/internal/agents/analyzer"
	"github.com/efebarandurmaz/sqllineage/internal/config"
	"github.com/efebarandurmaz/sqllineage/internal/dashboard"
	"github.com/efebarandurmaz/sqllineage/internal/graph"
	"github.com/efebarandurmaz/sqllineage/internal/graph/neo4j"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/llmutil"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/pipeline"
	"github.com/efebarandurmaz/sqllineage/internal/store"
	"github.com/efebarandurmaz/sqllineage/internal/store/sqlite"
	"github.com/efebarandurmaz/sqllineage/internal/vector"
	"github.com/efebarandurmaz/sqllineage/internal/vector/qdrant"
)

// Version is stamped at build time with -ldflags.
var Version = "0.1.0"

// App is a wired runtime. Optional components are nil when not configured.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Tracing  *observability.TracerProvider

	Provider llm.Provider
	Store    *sqlite.Store
	Graph    graph.Repository
	Vectors  vector.Repository
	Embedder *vector.Embedder
	Runner   *pipeline.Runner
	// Progress tracks runs of this process for the /api/ endpoints.
	Progress *dashboard.Dashboard

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewProvider builds the classifier for agent from cfg, wrapped with retry
// and the configured rate limit. It returns nil for provider "none".
func NewProvider(cfg config.LLMConfig, agent string) (llm.Provider, error) {
	resolved := cfg.ResolveForAgent(agent)
	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	p, err := factory.Create(resolved.ProviderConfig())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if rl := resolved.RateLimit(); rl != nil {
		p = llm.WithRateLimit(p, rl)
	}
	return p, nil
}

// AnalyzerOptions maps the LLM section onto analyzer settings.
func AnalyzerOptions(cfg config.LLMConfig) analyzer.Options {
	resolved := cfg.ResolveForAgent("analyzer")
	return analyzer.Options{
		Model:               resolved.Model,
		Temperature:         resolved.Temperature,
		MaxTokens:           resolved.MaxTokens,
		Variant:             resolved.Variant,
		MaxCompletionTokens: resolved.MaxCompletionTokens,
	}
}

// New wires every configured component. On error, whatever was already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	if err := ResolveSecrets(ctx, cfg); err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.NewMetrics(a.Registry)

	a.Tracing, err = observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "sqllineage",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.addCloser("tracing", a.Tracing.Shutdown)

	a.Provider, err = NewProvider(cfg.LLM, "analyzer")
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if a.Provider == nil {
		logger.Warn().Msg("running without LLM (passthrough mode): no lineage will be extracted")
	} else {
		logger.Info().Str("provider", a.Provider.Name()).Str("model", cfg.LLM.Model).Msg("using LLM provider")
	}

	var sinks store.Multi
	if cfg.Store.DSN != "" {
		a.Store, err = sqlite.Open(ctx, cfg.Store.DSN, sqlite.Options{
			BatchSize:      cfg.Store.BatchSize,
			FlushInterval:  cfg.Store.FlushInterval,
			MaxQueryLength: cfg.Store.MaxQueryLength,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.addCloser("sqlite", a.Store.Close)
		sinks = append(sinks, a.Store)
	}

	if cfg.Graph.URI != "" {
		repo, err := neo4j.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			return nil, fmt.Errorf("connect graph: %w", err)
		}
		a.Graph = repo
		a.addCloser("neo4j", repo.Close)
		sinks = append(sinks, repo)
	}

	if cfg.Vector.Host != "" {
		if err := a.openVectors(ctx); err != nil {
			return nil, err
		}
	}

	var sink store.Sink = store.Discard{}
	switch len(sinks) {
	case 0:
		logger.Warn().Msg("no sink configured: lineage will not be persisted")
	case 1:
		sink = sinks[0]
	default:
		sink = sinks
	}

	a.Progress = dashboard.New(logger)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithObserver(a.Progress.Emitter),
	}
	if a.Store != nil {
		opts = append(opts, pipeline.WithLedger(a.Store))
	}
	if a.Embedder != nil {
		opts = append(opts, pipeline.WithIndexer(a.Embedder))
	}
	a.Runner = pipeline.New(
		analyzer.New(AnalyzerOptions(cfg.LLM)),
		a.Provider,
		sink,
		pipeline.Options{
			Concurrency:   cfg.Run.Concurrency,
			SkipProcessed: cfg.Run.SkipProcessed,
			Model:         cfg.LLM.ResolveForAgent("analyzer").Model,
		},
		opts...,
	)
	return a, nil
}

func (a *App) openVectors(ctx context.Context) error {
	embedProvider, err := NewProvider(a.Config.LLM, "embedder")
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	if embedProvider == nil {
		a.Logger.Warn().Msg("vector host set but no LLM provider: statement indexing disabled")
		return nil
	}
	repo, err := qdrant.NewQdrant(ctx, a.Config.Vector.Host, a.Config.Vector.Port, a.Config.Vector.Collection)
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	a.Vectors = repo
	a.addCloser("qdrant", func(context.Context) error { return repo.Close() })
	a.Embedder = vector.NewEmbedder(embedProvider, repo)
	return nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases components in reverse opening order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
