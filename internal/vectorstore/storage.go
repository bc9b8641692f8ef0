package vectorstore

import (
	"context"

	"studyrag/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	Add(ctx context.Context, vector []float32, content string, meta domain.Metadata) (int, error)
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
}
