package qdrant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

func TestPayloadRoundTrip(t *testing.T) {
	meta := domain.Metadata{
		"source": "biology/ch1.pdf",
		"page":   json.Number("3"),
		"weight": 0.5,
		"tags":   []string{"cells", "energy"},
		"nested": map[string]any{"ok": true},
		"empty":  nil,
	}
	payload := toPayload("chlorophyll absorbs light", meta)
	require.Contains(t, payload, textKey)

	content, got := fromPayload(payload)
	assert.Equal(t, "chlorophyll absorbs light", content)
	assert.Equal(t, "biology/ch1.pdf", got["source"])
	assert.Equal(t, int64(3), got["page"])
	assert.Equal(t, 0.5, got["weight"])
	assert.Equal(t, []any{"cells", "energy"}, got["tags"])
	assert.Equal(t, map[string]any{"ok": true}, got["nested"])
	assert.Nil(t, got["empty"])
	assert.NotContains(t, got, textKey)
}

func TestToValueFallsBackToJSON(t *testing.T) {
	v := toValue(struct {
		A int `json:"a"`
	}{A: 1})
	assert.Equal(t, `{"a":1}`, v.GetStringValue())

	v = toValue(json.Number("1.25"))
	assert.Equal(t, 1.25, v.GetDoubleValue())
}

func TestSortResultsTieBreak(t *testing.T) {
	results := []domain.SearchResult{
		{ID: 4, Score: 0.5},
		{ID: 1, Score: 0.9},
		{ID: 2, Score: 0.5},
	}
	sortResults(results)
	assert.Equal(t, []int{1, 2, 4}, []int{results[0].ID, results[1].ID, results[2].ID})
}

func TestFromValueNil(t *testing.T) {
	assert.Nil(t, fromValue(nil))
	assert.Nil(t, fromValue(&qdrant.Value{}))
}

func TestNewStorageRequiresCollection(t *testing.T) {
	_, err := NewStorage(Config{Host: "localhost"})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestExistsUnreachableServer(t *testing.T) {
	s, err := NewStorage(Config{Host: "127.0.0.1", Port: 1, Collection: "notes"})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := s.Exists(ctx)
	require.Error(t, err)
	assert.False(t, ok)
}
