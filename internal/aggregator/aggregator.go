// Package aggregator queries an ordered list of retrieval sources and
// combines their useful output into a single context string.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"studyrag/internal/domain"
)

const (
	DefaultMinLength = 50
	DefaultSeparator = "\n---\n"
)

// Source is one named retriever with the subject matter it covers.
type Source struct {
	Label     string
	Scope     string
	Retriever domain.Retriever
}

// Outcome records what a single source produced.
type Outcome struct {
	Label    string
	Text     string
	Err      error
	Kept     bool
	Duration time.Duration
}

// Result is the combined context plus the per-source outcomes in source
// order. Fallback is set when no source contributed.
type Result struct {
	Text     string
	Fallback bool
	Outcomes []Outcome
}

// Failed returns the outcomes that ended in an error.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

type Option func(*Aggregator)

// WithMinLength sets the trimmed length a source output must exceed to be kept.
func WithMinLength(n int) Option { return func(a *Aggregator) { a.minLength = n } }

func WithSeparator(sep string) Option { return func(a *Aggregator) { a.separator = sep } }

// WithParallel queries all sources concurrently.
func WithParallel(parallel bool) Option { return func(a *Aggregator) { a.parallel = parallel } }

func WithLogger(l *slog.Logger) Option { return func(a *Aggregator) { a.logger = l } }

// Aggregator fans a query out to its sources. A failing source is logged and
// skipped; it never aborts the others.
type Aggregator struct {
	sources   []Source
	minLength int
	separator string
	parallel  bool
	logger    *slog.Logger
}

func New(sources []Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:   sources,
		minLength: DefaultMinLength,
		separator: DefaultSeparator,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

func (a *Aggregator) Sources() []Source { return a.sources }

// Aggregate queries every source and joins the kept outputs in source order.
func (a *Aggregator) Aggregate(ctx context.Context, query string) Result {
	outcomes := make([]Outcome, len(a.sources))
	if a.parallel && len(a.sources) > 1 {
		var g errgroup.Group
		for i, src := range a.sources {
			g.Go(func() error {
				outcomes[i] = a.query(ctx, src, query)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, src := range a.sources {
			outcomes[i] = a.query(ctx, src, query)
		}
	}

	var kept []string
	for _, o := range outcomes {
		if o.Err != nil {
			a.logger.Warn("retrieval source failed", "source", o.Label, "error", o.Err)
			continue
		}
		if o.Kept {
			kept = append(kept, fmt.Sprintf("From %s:\n%s\n", o.Label, o.Text))
		}
	}
	if len(kept) == 0 {
		return Result{Text: domain.FallbackContext, Fallback: true, Outcomes: outcomes}
	}
	return Result{Text: strings.Join(kept, a.separator), Outcomes: outcomes}
}

// Retrieve exposes the aggregate as a single retriever.
func (a *Aggregator) Retrieve(ctx context.Context, query string) (string, error) {
	return a.Aggregate(ctx, query).Text, nil
}

func (a *Aggregator) query(ctx context.Context, src Source, query string) (o Outcome) {
	o.Label = src.Label
	start := time.Now()
	defer func() {
		o.Duration = time.Since(start)
		if r := recover(); r != nil {
			o.Err = &domain.SourceError{Source: src.Label, Err: fmt.Errorf("panic: %v", r)}
			o.Kept = false
		}
	}()

	text, err := src.Retriever.Retrieve(ctx, query)
	if err != nil {
		o.Err = &domain.SourceError{Source: src.Label, Err: err}
		return o
	}
	o.Text = text
	o.Kept = utf8.RuneCountInString(strings.TrimSpace(text)) > a.minLength
	a.logger.Debug("retrieval source done", "source", src.Label, "kept", o.Kept, "chars", len(text))
	return o
}
