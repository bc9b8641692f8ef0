package domain

import "context"

// Metadata is the provenance mapping attached to every indexed chunk.
// The keys "source" and "page" are read by the retriever; any other key
// passes through untouched.
type Metadata map[string]any

// Document represents a single source artifact loaded for indexing.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// Record is one stored embedding with its chunk text and metadata.
// ID equals the insertion rank inside the owning store.
type Record struct {
	ID       int
	Vector   []float32
	Content  string
	Metadata Metadata
}

// SearchResult pairs a record ID with its similarity score.
// Record is filled in by stores that hold the payload locally.
type SearchResult struct {
	ID     int
	Score  float64
	Record Record
}

// Embedder converts text into a fixed-length dense vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ImageEmbedder is implemented by encoders that also accept page images.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Retriever answers a query with a formatted, source-attributed context.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}
