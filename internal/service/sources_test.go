package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/chunker"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding/hashing"
	"studyrag/internal/index"
	"studyrag/internal/ingest"
	"studyrag/internal/vectorstore/memory"
)

func buildIndex(t *testing.T, emb domain.Embedder, dir, name, content string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	store := memory.NewStorage()
	_, err := ingest.New(chunker.NewWindowChunker(500, 100), emb, nil).IngestFile(context.Background(), store, src)
	require.NoError(t, err)
	require.NoError(t, index.Save(context.Background(), dir, store, emb.Name()))
}

func TestSourcesEndToEnd(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(128)
	root := t.TempDir()
	bio := filepath.Join(root, "bio")
	chem := filepath.Join(root, "chem")
	buildIndex(t, emb, bio, "cells.txt", "Mitochondria are the powerhouse of the cell and produce ATP through cellular respiration.")
	buildIndex(t, emb, chem, "bonds.txt", "Covalent bonds share electron pairs between atoms in a molecule such as water.")

	doc := filepath.Join(root, "syllabus.txt")
	require.NoError(t, os.WriteFile(doc, []byte("short"), 0o644))

	cfg, err := config.Parse([]byte(`
corpora:
  - name: year1
    label: Year 1 Retriever
    paths: [` + bio + `, ` + chem + `]
document:
  path: ` + doc + `
`))
	require.NoError(t, err)

	sources, closeFn, err := Sources(ctx, cfg, emb, chunker.NewWindowChunker(500, 100), nil)
	require.NoError(t, err)
	defer closeFn()
	require.Len(t, sources, 2)
	assert.Equal(t, "Year 1 Retriever", sources[0].Label)
	assert.Equal(t, "Document Retriever", sources[1].Label)

	res := NewAggregator(sources, cfg.Aggregator, nil).Aggregate(ctx, "what produces ATP in the cell")
	require.False(t, res.Fallback)
	assert.True(t, strings.HasPrefix(res.Text, "From Year 1 Retriever:\n[Source: cells.txt | Page: 0]"))
	assert.Contains(t, res.Text, "[Source: bonds.txt | Page: 0]")
	assert.False(t, res.Outcomes[1].Kept)
}

func TestSourcesMissingIndexFailsFast(t *testing.T) {
	cfg, err := config.Parse([]byte(`
corpora:
  - name: year4
    paths: [` + filepath.Join(t.TempDir(), "absent") + `]
`))
	require.NoError(t, err)

	_, closeFn, err := Sources(context.Background(), cfg, hashing.NewEmbedder(8), chunker.NewWindowChunker(500, 100), nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())
}

func TestSourcesUnreachableQdrantFailsFast(t *testing.T) {
	cfg, err := config.Parse([]byte(`
corpora:
  - name: remote
    qdrant:
      host: 127.0.0.1
      port: 1
      collection: notes
`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_, closeFn, err := Sources(ctx, cfg, hashing.NewEmbedder(8), chunker.NewWindowChunker(500, 100), nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "corpus remote")
	assert.NoError(t, closeFn())
}

func TestSourcesEncoderMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	buildIndex(t, hashing.NewEmbedder(64), dir, "a.txt", "Enzymes lower activation energy.")

	cfg, err := config.Parse([]byte(`
corpora:
  - name: c
    paths: [` + dir + `]
`))
	require.NoError(t, err)
	_, _, err = Sources(context.Background(), cfg, hashing.NewEmbedder(32), nil, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
