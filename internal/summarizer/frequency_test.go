package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retrieved = `From Year 1 Retriever:
[Source: cells.txt | Page: 0]
Mitochondria produce ATP through respiration. The nucleus stores DNA.
Ribosomes build proteins.

---
From Document Retriever:
[Source: notes.txt | Page: 3]
ATP is the energy currency of the cell.
`

func TestSummarizeSkipsHeadersAndKeepsOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	got := s.Summarize(retrieved, "What is ATP?", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Mitochondria produce ATP through respiration.", got[0])
	assert.Equal(t, "ATP is the energy currency of the cell.", got[1])
}

func TestSummarizeAllWhenShort(t *testing.T) {
	got := NewFrequencySummarizer().Summarize("One fact. Another fact!", "", 10)
	assert.Equal(t, []string{"One fact.", "Another fact!"}, got)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, NewFrequencySummarizer().Summarize("---\n\n[Source: x | Page: NA]\n", "q", 3))
}
