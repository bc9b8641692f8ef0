package service

import (
	"context"
	"strings"

	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/generation"
	"studyrag/internal/summarizer"
)

// ChatGenerator sends the prompt messages to a chat completions client.
type ChatGenerator struct {
	Client *generation.Client
}

func (g ChatGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	return g.Client.Complete(ctx, p.Messages)
}

func (g ChatGenerator) Stream(ctx context.Context, p Prompt, out chan<- string) error {
	return g.Client.Stream(ctx, p.Messages, out)
}

// ExtractiveGenerator answers without a model by quoting the retrieved
// sentences that best match the question. With nothing retrieved it
// reports NoConfidentAnswer.
type ExtractiveGenerator struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
}

func NewExtractiveGenerator(maxSentences int) *ExtractiveGenerator {
	return &ExtractiveGenerator{summarizer: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

func (g *ExtractiveGenerator) sentences(p Prompt) []string {
	if p.Context == domain.FallbackContext {
		return nil
	}
	return g.summarizer.Summarize(p.Context, p.Question, g.maxSentences)
}

func (g *ExtractiveGenerator) Complete(_ context.Context, p Prompt) (string, error) {
	s := g.sentences(p)
	if len(s) == 0 {
		return NoConfidentAnswer, nil
	}
	return strings.Join(s, " "), nil
}

func (g *ExtractiveGenerator) Stream(ctx context.Context, p Prompt, out chan<- string) error {
	s := g.sentences(p)
	if len(s) == 0 {
		s = []string{NoConfidentAnswer}
	}
	for i, sent := range s {
		if i > 0 {
			sent = " " + sent
		}
		select {
		case out <- sent:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// NewGeneratorFromConfig selects the configured generator.
func NewGeneratorFromConfig(cfg config.GeneratorConfig) (Generator, error) {
	if cfg.Type == "extractive" {
		return NewExtractiveGenerator(cfg.MaxSentences), nil
	}
	c, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return ChatGenerator{Client: c}, nil
}
