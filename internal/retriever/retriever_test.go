package retriever

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/chunker"
	"studyrag/internal/domain"
	"studyrag/internal/embedding/hashing"
	"studyrag/internal/vectorstore/memory"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Name() string   { return "fixed" }
func (f fixedEmbedder) Dimension() int { return len(f.vec) }
func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func TestRetrieveFormatsHitsInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := store.Add(ctx, []float32{0, 1}, "far", domain.Metadata{"source": "b.pdf", "page": 9})
	require.NoError(t, err)
	_, err = store.Add(ctx, []float32{1, 0}, "near", domain.Metadata{"source": "a.pdf", "page": 2})
	require.NoError(t, err)

	out, err := New(fixedEmbedder{vec: []float32{1, 0.1}}, store, 2).Retrieve(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "[Source: a.pdf | Page: 2]\nnear\n\n[Source: b.pdf | Page: 9]\nfar", out)
}

func TestRetrieveMissingMetadata(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := store.Add(ctx, []float32{1}, "orphan", nil)
	require.NoError(t, err)

	out, err := New(fixedEmbedder{vec: []float32{1}}, store, 0).Retrieve(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "[Source: unknown | Page: NA]\norphan", out)
}

func TestRetrieveEmptyStore(t *testing.T) {
	out, err := New(fixedEmbedder{vec: []float32{1}}, memory.NewStorage(), 3).Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, domain.NoRelevantInformation, out)
}

func TestRetrieveRespectsK(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	for i := 0; i < 20; i++ {
		_, err := store.Add(ctx, []float32{1, float32(i)}, "c", nil)
		require.NoError(t, err)
	}
	out, err := New(fixedEmbedder{vec: []float32{1, 1}}, store, 0).Retrieve(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, DefaultK, strings.Count(out, "[Source:"))
}

func TestRetrieveEmbedError(t *testing.T) {
	boom := errors.New("encoder offline")
	_, err := New(fixedEmbedder{err: boom}, memory.NewStorage(), 1).Retrieve(context.Background(), "q")
	require.ErrorIs(t, err, boom)
}

func TestDocumentRetriever(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syllabus.txt")
	require.NoError(t, os.WriteFile(path, []byte("Newton's second law relates force and acceleration. Ohm's law relates voltage and current."), 0o644))

	r := NewDocument(path, chunker.NewSentenceChunker(1, 0), hashing.NewEmbedder(256), 0)
	out, err := r.Retrieve(context.Background(), "voltage and current")
	require.NoError(t, err)
	blocks := strings.Split(out, "\n\n")
	require.Len(t, blocks, 2)
	assert.Equal(t, "[Source: syllabus.txt | Page: 1]\nOhm's law relates voltage and current.", blocks[0])
}

func TestDocumentRetrieverMissingFile(t *testing.T) {
	r := NewDocument(filepath.Join(t.TempDir(), "gone.txt"), chunker.NewWindowChunker(500, 100), hashing.NewEmbedder(32), 0)
	_, err := r.Retrieve(context.Background(), "q")
	require.ErrorIs(t, err, os.ErrNotExist)
}
