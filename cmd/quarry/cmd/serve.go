package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/api"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/docmeta"
	"github.com/quarry-search/quarry/internal/embed"
	qerr "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/index"
	"github.com/quarry-search/quarry/internal/ingest"
	"github.com/quarry-search/quarry/internal/lexical"
	"github.com/quarry-search/quarry/internal/logging"
	"github.com/quarry-search/quarry/internal/metrics"
	"github.com/quarry-search/quarry/internal/search"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the retrieval engine HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	embedder := buildEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	store := buildIndex(cfg)
	defer func() { _ = store.Close() }()

	docs, err := docmeta.Open(cfg.Metadata.Path)
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	m := metrics.New()
	retry := qerr.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}
	coordinator := ingest.NewCoordinator(embedder, store, docs, retry, logger, m)
	engine := search.NewEngine(embedder, store, lexical.NewIndex(store, cfg.Search.ScanLimit), logger, m)
	server := api.NewServer(cfg, coordinator, engine, embedder, store, docs, logger, m)

	if !embedder.Available(ctx) {
		logger.Warn("embedding provider not reachable at startup, ingestion will fail until it is",
			slog.String("provider", cfg.Embedder.Provider))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func buildEmbedder(cfg *config.Config) embed.Embedder {
	var embedder embed.Embedder
	switch cfg.Embedder.Provider {
	case config.ProviderStatic:
		embedder = embed.NewStaticEmbedder()
	default:
		embedder = embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Embedder.Host,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Embedder.Dimensions,
			BatchSize:  cfg.Embedder.BatchSize,
			Timeout:    cfg.Embedder.Timeout,
		})
	}
	return embed.NewCachedEmbedder(embedder, cfg.Embedder.CacheSize)
}

func buildIndex(cfg *config.Config) index.VectorIndex {
	if cfg.Index.Backend == config.BackendMemory {
		return index.NewMemoryIndex()
	}
	return index.NewQdrantIndex(index.QdrantConfig{
		Host:       cfg.Index.Host,
		Port:       cfg.Index.Port,
		Timeout:    cfg.Index.Timeout,
		Collection: cfg.Index.Collection,
	})
}
