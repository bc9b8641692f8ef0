package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/vectorstore"
)

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(64)
	assert.Equal(t, 64, e.Dimension())
	assert.Equal(t, "hashing-64", e.Name())

	a, err := e.Embed(ctx, "Linked lists store nodes with pointers.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Linked lists store nodes with pointers.")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, vectorstore.Magnitude(a), 1e-5)
}

func TestEmbedStopwordsOnlyIsZero(t *testing.T) {
	v, err := NewEmbedder(0).Embed(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	assert.Equal(t, 0.0, vectorstore.Magnitude(v))
}

func TestEmbedRanksRelatedTextHigher(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(256)
	q, _ := e.Embed(ctx, "semiconductor diode junction")
	related, _ := e.Embed(ctx, "A diode is a semiconductor device with a p-n junction.")
	unrelated, _ := e.Embed(ctx, "Chemistry of polymers and plastics.")
	assert.Greater(t, vectorstore.CosineSimilarity(q, related), vectorstore.CosineSimilarity(q, unrelated))
}
