package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// Record IDs are insertion ranks and are never reused.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []domain.Record
	mags      []float64
}

// Option configures a Storage.
type Option func(*Storage)

// WithDimension fixes the embedding length up front instead of taking it
// from the first inserted record.
func WithDimension(dimension int) Option {
	return func(s *Storage) { s.dimension = dimension }
}

func NewStorage(opts ...Option) *Storage {
	s := &Storage{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a record and returns its ID.
func (s *Storage) Add(_ context.Context, vector []float32, content string, meta domain.Metadata) (int, error) {
	if err := vectorstore.Validate(vector); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(vector)
	} else if len(vector) != s.dimension {
		return 0, domain.DimensionError(s.dimension, len(vector))
	}
	id := len(s.records)
	s.records = append(s.records, domain.Record{
		ID:       id,
		Vector:   slices.Clone(vector),
		Content:  content,
		Metadata: maps.Clone(meta),
	})
	s.mags = append(s.mags, vectorstore.Magnitude(vector))
	return id, nil
}

// Search returns the topK most similar records, highest score first.
// Equal scores keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidTopK, topK)
	}
	if err := vectorstore.Validate(vector); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 || topK == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, domain.DimensionError(s.dimension, len(vector))
	}

	qm := vectorstore.Magnitude(vector)
	scores := make([]float64, len(s.records))
	for i, r := range s.records {
		if qm == 0 || s.mags[i] == 0 {
			continue
		}
		scores[i] = vectorstore.ClampScore(dot(vector, r.Vector) / (qm * s.mags[i]))
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{ID: j, Score: scores[j], Record: clone(s.records[j])})
	}
	return results, nil
}

// Count implements vectorstore.Storage.
func (s *Storage) Count(_ context.Context) (int, error) {
	return s.Len(), nil
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimension returns the embedding length of the store, 0 while unset.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Record returns the record with the given ID.
func (s *Storage) Record(id int) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.records) {
		return domain.Record{}, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return clone(s.records[id]), nil
}

// Records returns a copy of all records in ID order.
func (s *Storage) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, len(s.records))
	for i, r := range s.records {
		out[i] = clone(r)
	}
	return out
}

// Merge moves every record of src onto the end of dst, renumbering IDs
// contiguously. src is left empty. Merging the same src twice is a caller
// error. Concurrent merges in opposite directions between two stores are
// not supported.
func Merge(dst, src *Storage) error {
	if dst == src {
		return domain.ErrStoreMerged
	}
	dst.mu.Lock()
	defer dst.mu.Unlock()
	src.mu.Lock()
	defer src.mu.Unlock()

	if dst.dimension != 0 && src.dimension != 0 && dst.dimension != src.dimension {
		return domain.DimensionError(dst.dimension, src.dimension)
	}
	if len(src.records) == 0 {
		return nil
	}
	dst.dimension = src.dimension

	base := len(dst.records)
	for i, r := range src.records {
		r.ID = base + i
		dst.records = append(dst.records, r)
	}
	dst.mags = append(dst.mags, src.mags...)

	src.records = nil
	src.mags = nil
	return nil
}

// clone copies the vector and the top level of the metadata map so callers
// cannot reach the stored record.
func clone(r domain.Record) domain.Record {
	r.Vector = slices.Clone(r.Vector)
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var _ vectorstore.Storage = (*Storage)(nil)
