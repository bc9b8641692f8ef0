package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studyrag/internal/aggregator"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/generation"
)

type fakeAggregator struct {
	result aggregator.Result
	query  string
}

func (f *fakeAggregator) Aggregate(_ context.Context, q string) aggregator.Result {
	f.query = q
	return f.result
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) Stream(ctx context.Context, p Prompt, out chan<- string) error {
	args := m.Called(ctx, p)
	for _, tok := range args.Get(0).([]string) {
		out <- tok
	}
	return args.Error(1)
}

var agent = config.AgentConfig{Role: "Tutor", Goal: "Help the student.", Backstory: "You are a helpful tutor."}

func TestMessages(t *testing.T) {
	tutor := NewTutor(&fakeAggregator{}, &mockGenerator{}, agent, nil)
	tutor.now = func() time.Time { return time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC) }

	msgs := tutor.Messages(Request{Question: "What is osmosis?"}, "From Year 1:\nwater moves", false)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are a Tutor.\nGoal: Help the student.\nBackstory: You are a helpful tutor.")
	assert.Contains(t, msgs[0].Content, "Current Year Context: 2027")
	assert.Contains(t, msgs[0].Content, "RETRIEVED INFORMATION:\nFrom Year 1:\nwater moves")
	assert.NotContains(t, msgs[0].Content, NoConfidentAnswer)
	assert.Equal(t, generation.User("Question: What is osmosis?"), msgs[1])

	msgs = tutor.Messages(Request{Question: "q", CurrentYear: "2026"}, "c", true)
	assert.Contains(t, msgs[0].Content, "Current Year Context: 2026")
	assert.Contains(t, msgs[0].Content, NoConfidentAnswer)
}

func TestStream(t *testing.T) {
	agg := &fakeAggregator{result: aggregator.Result{Text: "From A:\nctx\n"}}
	gen := &mockGenerator{}
	gen.On("Stream", mock.Anything, mock.Anything).Return([]string{"Osmo", "sis"}, nil)

	out := make(chan string, 4)
	ans, err := NewTutor(agg, gen, agent, nil).Stream(context.Background(), Request{Question: "osmosis?"}, out)
	require.NoError(t, err)
	assert.Equal(t, "osmosis?", agg.query)
	assert.Equal(t, "Osmosis", ans.Text)
	assert.Equal(t, ConfidenceHigh, ans.Confidence)
	assert.Equal(t, "Osmo", <-out)
	assert.Equal(t, "sis", <-out)
}

func TestStreamFallbackIsLowConfidence(t *testing.T) {
	agg := &fakeAggregator{result: aggregator.Result{Text: domain.FallbackContext, Fallback: true}}
	gen := &mockGenerator{}
	gen.On("Stream", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return len(p.Messages) == 2 && p.Context == domain.FallbackContext &&
			strings.Contains(p.Messages[0].Content, domain.FallbackContext)
	})).Return([]string{"general"}, nil)

	ans, err := NewTutor(agg, gen, agent, nil).Stream(context.Background(), Request{Question: "q"}, make(chan string, 1))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, ans.Confidence)
	gen.AssertExpectations(t)
}

func TestStreamError(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Stream", mock.Anything, mock.Anything).Return([]string{"par"}, errors.New("connection reset"))

	_, err := NewTutor(&fakeAggregator{}, gen, agent, nil).Stream(context.Background(), Request{Question: "q"}, make(chan string, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAnswer(t *testing.T) {
	agg := &fakeAggregator{result: aggregator.Result{Text: "From A:\nctx\n"}}
	gen := &mockGenerator{}
	gen.On("Complete", mock.Anything, mock.Anything).Return("Osmosis is diffusion of water.", nil).Once()
	gen.On("Complete", mock.Anything, mock.Anything).Return(NoConfidentAnswer, nil).Once()

	tutor := NewTutor(agg, gen, agent, nil)
	ans, err := tutor.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHigh, ans.Confidence)
	assert.Equal(t, "Osmosis is diffusion of water.", ans.Text)

	ans, err = tutor.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, ans.Confidence)
	assert.Equal(t, NoConfidentAnswerText, ans.Text)
}

func TestExtractiveGenerator(t *testing.T) {
	ctx := context.Background()
	g := NewExtractiveGenerator(1)
	p := Prompt{
		Question: "What is ATP?",
		Context:  "From A:\n[Source: s | Page: 1]\nATP stores energy. Plants are green.\n",
	}
	got, err := g.Complete(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "ATP stores energy.", got)

	got, err = g.Complete(ctx, Prompt{Question: "q", Context: domain.FallbackContext})
	require.NoError(t, err)
	assert.Equal(t, NoConfidentAnswer, got)

	out := make(chan string, 4)
	require.NoError(t, NewExtractiveGenerator(5).Stream(ctx, p, out))
	assert.Equal(t, "ATP stores energy.", <-out)
	assert.Equal(t, " Plants are green.", <-out)
}

func TestTutorWithExtractiveGenerator(t *testing.T) {
	agg := &fakeAggregator{result: aggregator.Result{Text: domain.FallbackContext, Fallback: true}}
	ans, err := NewTutor(agg, NewExtractiveGenerator(3), agent, nil).Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, ans.Confidence)
	assert.Equal(t, NoConfidentAnswerText, ans.Text)
}
