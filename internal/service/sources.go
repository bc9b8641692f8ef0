package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"studyrag/internal/aggregator"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/generation"
	"studyrag/internal/index"
	"studyrag/internal/retriever"
	"studyrag/internal/vectorstore"
	"studyrag/internal/vectorstore/qdrant"
)

const collectionCheckTimeout = 10 * time.Second

// Sources loads every configured corpus and returns one aggregator source
// per corpus, in configuration order, followed by the document retriever
// when a document path is set. A corpus that cannot be loaded fails the
// whole call. The returned close function is never nil.
func Sources(ctx context.Context, cfg *config.AppConfig, embedder domain.Embedder, chunker domain.Chunker, logger *slog.Logger) ([]aggregator.Source, func() error, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var closers []func() error
	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	sources := make([]aggregator.Source, 0, len(cfg.Corpora)+1)
	for _, c := range cfg.Corpora {
		store, closer, err := openCorpus(ctx, c, embedder)
		if err != nil {
			_ = closeAll()
			return nil, func() error { return nil }, fmt.Errorf("corpus %s: %w", c.Name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		n, _ := store.Count(ctx)
		logger.Info("loaded corpus", "corpus", c.Name, "records", n)
		sources = append(sources, aggregator.Source{
			Label:     c.Label,
			Scope:     c.Scope,
			Retriever: retriever.New(embedder, store, c.K),
		})
	}
	if cfg.Document.Path != "" {
		sources = append(sources, aggregator.Source{
			Label:     cfg.Document.Label,
			Scope:     cfg.Document.Path,
			Retriever: retriever.NewDocument(cfg.Document.Path, chunker, embedder, cfg.Document.K),
		})
	}
	return sources, closeAll, nil
}

// OpenCorpus returns the store behind a single corpus.
func OpenCorpus(ctx context.Context, c config.CorpusConfig, embedder domain.Embedder) (vectorstore.Storage, func() error, error) {
	store, closer, err := openCorpus(ctx, c, embedder)
	if closer == nil {
		closer = func() error { return nil }
	}
	return store, closer, err
}

func openCorpus(ctx context.Context, c config.CorpusConfig, embedder domain.Embedder) (vectorstore.Storage, func() error, error) {
	if c.Qdrant != nil {
		q, err := qdrant.NewStorage(qdrant.Config{
			Host:       c.Qdrant.Host,
			Port:       c.Qdrant.Port,
			APIKey:     c.Qdrant.APIKey,
			UseTLS:     c.Qdrant.UseTLS,
			Collection: c.Qdrant.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		checkCtx, cancel := context.WithTimeout(ctx, collectionCheckTimeout)
		defer cancel()
		ok, err := q.Exists(checkCtx)
		if err == nil && !ok {
			err = fmt.Errorf("collection %q not found", c.Qdrant.Collection)
		}
		if err != nil {
			_ = q.Close()
			return nil, nil, fmt.Errorf("%w: qdrant %s:%d: %v", domain.ErrConfiguration, c.Qdrant.Host, c.Qdrant.Port, err)
		}
		return q, q.Close, nil
	}
	store, err := index.LoadCorpus(ctx, c.Paths, embedder.Name())
	if err != nil {
		return nil, nil, err
	}
	if dim := embedder.Dimension(); dim > 0 && store.Dimension() > 0 && dim != store.Dimension() {
		return nil, nil, domain.DimensionError(store.Dimension(), dim)
	}
	return store, nil, nil
}

// NewAggregator builds the aggregator described by cfg.
func NewAggregator(sources []aggregator.Source, cfg config.AggregatorConfig, logger *slog.Logger) *aggregator.Aggregator {
	return aggregator.New(sources,
		aggregator.WithMinLength(cfg.MinLength),
		aggregator.WithSeparator(cfg.Separator),
		aggregator.WithParallel(cfg.Parallel),
		aggregator.WithLogger(logger),
	)
}

// NewGenerator builds the chat client described by cfg.
func NewGenerator(cfg config.GeneratorConfig) (*generation.Client, error) {
	return generation.NewClient(generation.Config{
		BaseURL:     cfg.BaseURL,
		APIKeyEnv:   cfg.APIKeyEnv,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	})
}
