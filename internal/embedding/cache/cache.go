// Package cache persists text embeddings in a bbolt file so repeated
// queries and re-indexing skip the encoder.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

// Embedder wraps another embedder with a bbolt-backed lookup table.
// Entries are bucketed by the wrapped encoder's name.
type Embedder struct {
	inner  domain.Embedder
	db     *bbolt.DB
	bucket []byte
}

// Open opens (or creates) the cache file at path.
func Open(path string, inner domain.Embedder) (*Embedder, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}
	return New(db, inner), nil
}

// New wraps inner using an already opened database.
func New(db *bbolt.DB, inner domain.Embedder) *Embedder {
	return &Embedder{inner: inner, db: db, bucket: []byte(inner.Name())}
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

// Embed returns the cached vector for text, computing and storing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	key := sum[:]

	var cached []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(e.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			cached = make([]byte, len(v))
			copy(cached, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return vectorstore.DecodeVector(cached)
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	err = e.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(e.bucket)
		if err != nil {
			return err
		}
		return b.Put(key, vectorstore.EncodeVector(vec))
	})
	if err != nil {
		return nil, fmt.Errorf("store cached embedding: %w", err)
	}
	return vec, nil
}

// EmbedImage forwards to the wrapped encoder; images are not cached.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	ie, ok := e.inner.(domain.ImageEmbedder)
	if !ok {
		return nil, errors.New("embedding cache: wrapped encoder does not accept images")
	}
	return ie.EmbedImage(ctx, image)
}

// Close releases the database file.
func (e *Embedder) Close() error {
	return e.db.Close()
}
