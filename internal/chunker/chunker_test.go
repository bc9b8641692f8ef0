package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/config"
	"studyrag/internal/domain"
)

func TestSentenceChunkerOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "One. Two! Three? Four."})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "One. Two!", chunks[0].Text)
	assert.Equal(t, "Two! Three?", chunks[1].Text)
	assert.Equal(t, "Three? Four.", chunks[2].Text)
	assert.Equal(t, "d:2", chunks[2].ChunkID)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestSentenceChunkerNoPunctuation(t *testing.T) {
	chunks, err := NewSentenceChunker(5, 1).Chunk(domain.Document{ID: "d", Content: "  just words  "})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just words", chunks[0].Text)

	chunks, err = NewSentenceChunker(5, 1).Chunk(domain.Document{ID: "d", Content: "   "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestWindowChunker(t *testing.T) {
	text := strings.Repeat("a", 500) + strings.Repeat("b", 500) + strings.Repeat("c", 100)
	chunks, err := NewWindowChunker(500, 100).Chunk(domain.Document{ID: "d", Content: text})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, []rune(chunks[0].Text), 500)
	assert.Equal(t, strings.Repeat("a", 100)+strings.Repeat("b", 400), chunks[1].Text)
	assert.Equal(t, strings.Repeat("b", 200)+strings.Repeat("c", 100), chunks[2].Text)
}

func TestWindowChunkerMultibyte(t *testing.T) {
	chunks, err := NewWindowChunker(3, 1).Chunk(domain.Document{ID: "d", Content: "αβγδε"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "αβγ", chunks[0].Text)
	assert.Equal(t, "γδε", chunks[1].Text)
}

func TestNew(t *testing.T) {
	c, err := New(config.ChunkerConfig{Type: "sentence"})
	require.NoError(t, err)
	assert.IsType(t, &SentenceChunker{}, c)

	c, err = New(config.ChunkerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &WindowChunker{}, c)

	_, err = New(config.ChunkerConfig{Type: "semantic"})
	require.Error(t, err)
}

func TestSplitSentencesKeepsTail(t *testing.T) {
	got := splitSentences("Wait... what?! The end is near")
	assert.Equal(t, []string{"Wait...", "what?!", "The end is near"}, got)
	assert.Empty(t, splitSentences("  "))
}
