// Package retriever turns vector search hits into provenance-tagged context
// blocks.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const (
	// DefaultK is the hit count for corpus retrievers.
	DefaultK = 15
	// DocumentK is the hit count for the single-document retriever.
	DocumentK = 6

	blockSeparator = "\n\n"
)

// Retriever searches one store with a fixed k.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	k        int
}

func New(embedder domain.Embedder, store vectorstore.Storage, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{embedder: embedder, store: store, k: k}
}

// Retrieve returns the formatted hits for query, highest similarity first,
// or domain.NoRelevantInformation when there are none.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	hits, err := r.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return Format(hits), nil
}

// Search embeds query and returns the raw hits.
func (r *Retriever) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.Search(ctx, vec, r.k)
}

// Format renders hits as blocks headed by their source and page.
func Format(hits []domain.SearchResult) string {
	if len(hits) == 0 {
		return domain.NoRelevantInformation
	}
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[Source: %s | Page: %s]\n%s",
			metaValue(h.Record.Metadata, "source", "unknown"),
			metaValue(h.Record.Metadata, "page", "NA"),
			h.Record.Content)
	}
	return strings.Join(blocks, blockSeparator)
}

func metaValue(meta domain.Metadata, key, fallback string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return fallback
	}
	return fmt.Sprint(v)
}

var _ domain.Retriever = (*Retriever)(nil)
