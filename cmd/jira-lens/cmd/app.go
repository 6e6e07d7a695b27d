package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
	"github.com/golovatskygroup/jira-lens/internal/config"
	"github.com/golovatskygroup/jira-lens/internal/embedding"
	"github.com/golovatskygroup/jira-lens/internal/jira"
	"github.com/golovatskygroup/jira-lens/internal/logging"
	"github.com/golovatskygroup/jira-lens/internal/resolver"
	"github.com/golovatskygroup/jira-lens/internal/schedule"
	"github.com/golovatskygroup/jira-lens/internal/vectorstore"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	catalog  *catalog.Cache
	resolver *resolver.Resolver
	index    *vectorstore.Store
}

func loadApp(flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return newApp(cfg, logging.New(logOut, cfg.Log.Level))
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	jc, err := jira.New(jira.Options{
		Client:     cfg.Jira.Client,
		BaseURL:    cfg.Jira.BaseURL,
		APIVersion: cfg.Jira.APIVersion,
		Timeout:    cfg.Jira.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("jira: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog.NewCache(jc, cfg.Catalog.TTL, catalog.WithLogger(logger)),
	}

	opts := resolver.Options{
		Catalog:      a.catalog,
		Scheduler:    schedule.New(cfg.Index.RefreshInterval),
		DefaultLimit: cfg.Search.DefaultLimit,
		MinScore:     cfg.Search.MinScore,
		MaxDistance:  cfg.Index.MaxDistance,
		Logger:       logger,
	}
	if embedder, index := a.semanticLayer(); embedder != nil && index != nil {
		opts.Embedder, opts.Index = embedder, index
		a.index = index
	}

	a.resolver, err = resolver.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("jira-lens ready",
		"jira", jc.BaseURL(), "api_version", jc.APIVersion(),
		"semantic", a.resolver.SemanticConfigured(), "catalog_ttl", cfg.Catalog.TTL)
	return a, nil
}

// semanticLayer builds the embedding adapter and the vector index. Any failure leaves the
// resolver lexical-only.
func (a *app) semanticLayer() (*embedding.Adapter, *vectorstore.Store) {
	cfg := a.cfg
	if !cfg.SemanticEnabled() {
		if cfg.Index.Enabled {
			a.logger.Info("semantic search off: no embedding API key configured")
		}
		return nil, nil
	}

	provider, err := embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	if err != nil {
		a.logger.Warn("semantic search off", "error", err)
		return nil, nil
	}
	index, err := vectorstore.Open(cfg.Index.Path, cfg.Embedding.Dimensions, a.logger)
	if err != nil {
		a.logger.Warn("semantic search off: cannot open index", "path", cfg.Index.Path, "error", err)
		return nil, nil
	}
	adapter := embedding.NewAdapter(provider, embedding.AdapterConfig{
		TokenBudget:    cfg.Embedding.TokenBudget,
		MaxBatchInputs: cfg.Embedding.MaxBatchInputs,
		Concurrency:    cfg.Embedding.Concurrency,
		QueryCacheSize: cfg.Embedding.QueryCacheSize,
	}, a.logger)
	return adapter, index
}

// Close waits for background index work and releases the index file.
func (a *app) Close() {
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("close index", "error", err)
		}
	}
}
