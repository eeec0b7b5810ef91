// Package app wires the store, embedding provider, memory service and
// context assembler together once per process.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rcliao/agent-context/internal/assembler"
	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/store"
)

// App owns the process-wide components.
type App struct {
	Config    *config.Config
	Store     *store.SQLiteStore
	Embedder  embedding.Provider
	Cache     *embedding.Cache
	Memory    *memory.Service
	Assembler *assembler.Assembler

	logger *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   trace.TracerProvider
	meter    metric.MeterProvider
	embedder embedding.Provider
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the tracer provider for service and assembler spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithMeterProvider sets the meter provider for assembler metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// WithEmbedder replaces the configured provider. It is still cached.
func WithEmbedder(p embedding.Provider) Option {
	return func(o *options) { o.embedder = p }
}

// Open creates every component from cfg.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default(), tracer: noop.NewTracerProvider(), meter: noopmetric.NewMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Memory.DBPath, store.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	base := o.embedder
	if base == nil {
		base = embedding.New(embedding.Config{
			Provider:          cfg.Embedding.Provider,
			Model:             cfg.Embedding.Model,
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Dimensions:        cfg.Embedding.Dimensions,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Burst:             cfg.Embedding.Burst,
		}, o.logger)
	}
	cache := embedding.NewCache(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	embedder := embedding.WithCache(base, cache)

	svc := memory.NewService(st, embedder,
		memory.WithLogger(o.logger),
		memory.WithTracer(o.tracer.Tracer("github.com/rcliao/agent-context/memory")),
		memory.WithAutoInject(cfg.Memory.AutoInjectGlobal, cfg.Memory.AutoInjectProject),
	)
	asm := assembler.New(svc,
		assembler.WithConfig(*cfg),
		assembler.WithLogger(o.logger),
		assembler.WithTracer(o.tracer.Tracer("github.com/rcliao/agent-context/assembler")),
		assembler.WithMeter(o.meter.Meter("github.com/rcliao/agent-context/assembler")),
	)

	o.logger.Debug("app opened", "component", "app", "db", st.Path(), "provider", embedder.Name(), "model", embedder.Model())
	return &App{
		Config:    cfg,
		Store:     st,
		Embedder:  embedder,
		Cache:     cache,
		Memory:    svc,
		Assembler: asm,
		logger:    o.logger,
	}, nil
}

// Reset deletes all stored memories and empties the embedding cache.
func (a *App) Reset(ctx context.Context) error {
	a.Cache.Clear()
	if err := a.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
