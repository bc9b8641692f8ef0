// Package summarizer picks the most informative sentences of retrieved
// study material for a question.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)
	// Lines that only carry provenance or separators.
	headerPattern = regexp.MustCompile(`^(\[Source: .*\]|From .*:|-{3,})$`)
)

// FrequencySummarizer ranks sentences by normalised term frequency, boosted
// by overlap with the question.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	queryWeight  float64
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
		queryWeight:  2,
	}
}

// Summarize returns up to maxSentences sentences of text in their original
// order. Provenance headers are skipped.
func (s *FrequencySummarizer) Summarize(text, query string, maxSentences int) []string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := s.sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}
	query = strings.ToLower(query)
	qset := map[string]struct{}{}
	for _, tok := range s.terms(query) {
		qset[tok] = struct{}{}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		terms := s.terms(sent)
		score := 0.0
		for _, tok := range terms {
			score += freq[tok]
			if _, ok := qset[tok]; ok {
				score += s.queryWeight
			}
		}
		if n := float64(len(terms)); n > 0 {
			score /= math.Sqrt(n)
		}
		scores[i] = scored{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return out
}

func (s *FrequencySummarizer) sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || headerPattern.MatchString(line) {
			continue
		}
		parts := sentencePattern.FindAllString(line+"\n", -1)
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s *FrequencySummarizer) terms(text string) []string {
	toks := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := toks[:0]
	for _, t := range toks {
		if _, ok := s.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
