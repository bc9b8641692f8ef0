package retriever

import (
	"context"

	"studyrag/internal/domain"
	"studyrag/internal/ingest"
	"studyrag/internal/vectorstore/memory"
)

// DocumentRetriever chunks a single text file into a fresh in-memory store
// on every query, so edits to the file are picked up immediately.
type DocumentRetriever struct {
	path     string
	embedder domain.Embedder
	ingester *ingest.Ingester
	k        int
}

func NewDocument(path string, chunker domain.Chunker, embedder domain.Embedder, k int) *DocumentRetriever {
	if k <= 0 {
		k = DocumentK
	}
	return &DocumentRetriever{
		path:     path,
		embedder: embedder,
		ingester: ingest.New(chunker, embedder, nil),
		k:        k,
	}
}

func (d *DocumentRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	store := memory.NewStorage()
	if _, err := d.ingester.IngestFile(ctx, store, d.path); err != nil {
		return "", err
	}
	return New(d.embedder, store, d.k).Retrieve(ctx, query)
}

var _ domain.Retriever = (*DocumentRetriever)(nil)
