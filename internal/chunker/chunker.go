// Package chunker splits documents into the passages that get embedded.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"studyrag/internal/config"
	"studyrag/internal/domain"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// New builds the chunker selected by cfg.
func New(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "window", "":
		return NewWindowChunker(cfg.ChunkSize, cfg.Overlap), nil
	case "sentence":
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// WindowChunker cuts text into fixed-size rune windows that overlap by a
// fixed number of runes.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = 500
	}
	return &WindowChunker{size: size, overlap: clampOverlap(overlap, size)}
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	var chunks []domain.Chunk
	windows(len(runes), c.size, c.overlap, func(start, end int) {
		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			chunks = append(chunks, newChunk(document, len(chunks), text))
		}
	})
	return chunks, nil
}

// SentenceChunker groups consecutive sentences, repeating the last
// overlapSentences of each group at the start of the next.
type SentenceChunker struct {
	perChunk int
	overlap  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	return &SentenceChunker{
		perChunk: sentencesPerChunk,
		overlap:  clampOverlap(overlapSentences, sentencesPerChunk),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := splitSentences(document.Content)
	var chunks []domain.Chunk
	windows(len(sentences), c.perChunk, c.overlap, func(start, end int) {
		chunks = append(chunks, newChunk(document, len(chunks), strings.Join(sentences[start:end], " ")))
	})
	return chunks, nil
}

// splitSentences cuts text after each run of terminal punctuation. A
// trailing fragment without punctuation is kept as its own sentence.
func splitSentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		add(text[prev:loc[1]])
		prev = loc[1]
	}
	add(text[prev:])
	return out
}

// windows calls fn for each [start, end) window of width size over n items,
// stepping by size-overlap. The last window ends at n.
func windows(n, size, overlap int, fn func(start, end int)) {
	for start := 0; start < n; start += size - overlap {
		end := min(start+size, n)
		fn(start, end)
		if end == n {
			return
		}
	}
}

func clampOverlap(overlap, size int) int {
	if overlap < 0 || overlap >= size {
		return 0
	}
	return overlap
}

func newChunk(document domain.Document, idx int, text string) domain.Chunk {
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Text:       text,
		Index:      idx,
	}
}
