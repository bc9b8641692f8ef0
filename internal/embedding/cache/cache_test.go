package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Name() string   { return "mock" }
func (m *mockEmbedder) Dimension() int { return 2 }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	v, _ := args.Get(0).([]float32)
	return v, args.Error(1)
}

func TestEmbedCachesAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	inner := &mockEmbedder{}
	inner.On("Embed", ctx, "question").Return([]float32{0.25, -1}, nil).Once()

	c, err := Open(path, inner)
	require.NoError(t, err)
	v, err := c.Embed(ctx, "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1}, v)
	v, err = c.Embed(ctx, "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1}, v)
	require.NoError(t, c.Close())

	c, err = Open(path, inner)
	require.NoError(t, err)
	defer c.Close()
	v, err = c.Embed(ctx, "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1}, v)

	inner.AssertNumberOfCalls(t, "Embed", 1)
	assert.Equal(t, "mock", c.Name())
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbedErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &mockEmbedder{}
	inner.On("Embed", ctx, "q").Return(nil, errors.New("encoder down")).Once()
	inner.On("Embed", ctx, "q").Return([]float32{1, 0}, nil).Once()

	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), inner)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(ctx, "q")
	require.Error(t, err)
	v, err := c.Embed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)

	_, err = c.EmbedImage(ctx, []byte{1})
	require.Error(t, err)
}
