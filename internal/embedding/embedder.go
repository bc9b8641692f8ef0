// Package embedding builds the configured text encoder.
package embedding

import (
	"fmt"
	"time"

	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding/cache"
	"studyrag/internal/embedding/hashing"
	"studyrag/internal/embedding/openai"
)

// New returns the encoder selected by cfg. The returned close function
// releases the embedding cache when one is configured and is never nil.
func New(cfg config.EmbedderConfig) (domain.Embedder, func() error, error) {
	noop := func() error { return nil }

	var inner domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		inner = hashing.NewEmbedder(cfg.Dimension)
	case "openai":
		if cfg.OpenAI == nil {
			return nil, noop, fmt.Errorf("%w: embedder.openai section is required", domain.ErrConfiguration)
		}
		oc := cfg.OpenAI
		dim := oc.Dimension
		if dim == 0 {
			dim = cfg.Dimension
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
			Dimension:  dim,
			Images:     oc.Images,
		})
		if err != nil {
			return nil, noop, err
		}
		inner = client
	default:
		return nil, noop, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, cfg.Type)
	}

	if cfg.CachePath == "" {
		return inner, noop, nil
	}
	cached, err := cache.Open(cfg.CachePath, inner)
	if err != nil {
		return nil, noop, err
	}
	return cached, cached.Close, nil
}
