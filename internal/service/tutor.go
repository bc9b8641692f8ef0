// Package service answers student questions from the aggregated study
// material.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"studyrag/internal/aggregator"
	"studyrag/internal/config"
	"studyrag/internal/generation"
)

// NoConfidentAnswer is the marker a model emits when it cannot answer
// reliably.
const NoConfidentAnswer = "NO_CONFIDENT_ANSWER"

// NoConfidentAnswerText replaces a flagged answer.
const NoConfidentAnswerText = "No confident answer available."

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Aggregator gathers context for a question.
type Aggregator interface {
	Aggregate(ctx context.Context, query string) aggregator.Result
}

// Prompt carries the chat turns together with the raw question and context
// they were built from.
type Prompt struct {
	Messages []generation.Message
	Question string
	Context  string
}

// Generator produces the answer text for a prompt.
type Generator interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Stream(ctx context.Context, p Prompt, out chan<- string) error
}

type Request struct {
	Question    string
	CurrentYear string
}

type Answer struct {
	Text       string
	Confidence Confidence
	Context    aggregator.Result
}

// Tutor builds the prompt from the agent profile and retrieved context and
// hands it to the generator.
type Tutor struct {
	agg    Aggregator
	gen    Generator
	agent  config.AgentConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewTutor(agg Aggregator, gen Generator, agent config.AgentConfig, logger *slog.Logger) *Tutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tutor{agg: agg, gen: gen, agent: agent, logger: logger, now: time.Now}
}

// Stream sends answer tokens to out as the model produces them and returns
// the assembled answer. out is not closed.
func (t *Tutor) Stream(ctx context.Context, req Request, out chan<- string) (Answer, error) {
	res := t.agg.Aggregate(ctx, req.Question)
	prompt := t.prompt(req, res.Text, false)

	inner := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- t.gen.Stream(ctx, prompt, inner)
		close(inner)
	}()

	var sb strings.Builder
	for tok := range inner {
		sb.WriteString(tok)
		if ctx.Err() != nil {
			continue
		}
		select {
		case out <- tok:
		case <-ctx.Done():
		}
	}
	if err := <-errc; err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	ans := t.answer(sb.String(), res)
	t.logger.Info("answered question", "mode", "stream", "confidence", ans.Confidence, "fallback", res.Fallback)
	return ans, nil
}

// Answer produces the whole answer at once. The model is asked to flag
// answers it cannot support; flagged answers are replaced by
// NoConfidentAnswerText.
func (t *Tutor) Answer(ctx context.Context, req Request) (Answer, error) {
	res := t.agg.Aggregate(ctx, req.Question)
	text, err := t.gen.Complete(ctx, t.prompt(req, res.Text, true))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	ans := t.answer(text, res)
	if strings.Contains(text, NoConfidentAnswer) {
		ans.Text = NoConfidentAnswerText
	}
	t.logger.Info("answered question", "mode", "complete", "confidence", ans.Confidence, "fallback", res.Fallback)
	return ans, nil
}

func (t *Tutor) prompt(req Request, retrieved string, guarded bool) Prompt {
	return Prompt{
		Messages: t.Messages(req, retrieved, guarded),
		Question: req.Question,
		Context:  retrieved,
	}
}

func (t *Tutor) answer(text string, res aggregator.Result) Answer {
	conf := ConfidenceHigh
	if res.Fallback || strings.Contains(text, NoConfidentAnswer) {
		conf = ConfidenceLow
	}
	return Answer{Text: text, Confidence: conf, Context: res}
}

// Messages builds the system and user turns for a question.
func (t *Tutor) Messages(req Request, retrieved string, guarded bool) []generation.Message {
	year := req.CurrentYear
	if year == "" {
		year = strconv.Itoa(t.now().Year())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s.\nGoal: %s\nBackstory: %s\n\n", t.agent.Role, t.agent.Goal, t.agent.Backstory)
	fmt.Fprintf(&sb, "Current Year Context: %s\n\n", year)
	fmt.Fprintf(&sb, "RETRIEVED INFORMATION:\n%s\n\n", retrieved)
	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Use the retrieved information above as your PRIMARY source\n")
	sb.WriteString("2. If the retrieved info is incomplete, supplement with your knowledge\n")
	sb.WriteString("3. Be concise and accurate\n")
	sb.WriteString("4. Format your answer clearly")
	if guarded {
		sb.WriteString("\n5. If your answer would be weak, incomplete, or speculative, respond ONLY with the exact string: " + NoConfidentAnswer)
	}
	return []generation.Message{
		generation.System(sb.String()),
		generation.User("Question: " + req.Question),
	}
}
