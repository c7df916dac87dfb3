// Package knowledge holds the example library, feedback loop, retrieval,
// pattern mining and analytics components. All of them share one injected
// store; none of them schedule work in the background.
package knowledge

import (
	"context"
	"time"

	"kbengine/internal/domain"
)

type ExampleStore interface {
	UpsertExample(ctx context.Context, ex domain.Example) (int64, bool, error)
	GetExample(ctx context.Context, id int64) (domain.Example, error)
	SetExampleActive(ctx context.Context, id int64, active bool) error
	CandidateExamples(ctx context.Context, q domain.ExampleQuery) ([]domain.Example, error)
	IncrementUsage(ctx context.Context, ids []int64) (map[int64]int64, error)
}

type FeedbackStore interface {
	InsertFeedback(ctx context.Context, rec domain.FeedbackRecord) (int64, error)
	CorrectionCounts(ctx context.Context, module string, since time.Time, minExclusive, limit int) ([]domain.CorrectionCount, error)
	CountIncorrectFeedback(ctx context.Context, module string, since time.Time) (int, error)
}

type PatternStore interface {
	InsertPatterns(ctx context.Context, patterns []domain.Pattern) error
}

type MetricStore interface {
	MetricRollup(ctx context.Context, module string, since time.Time) (domain.Summary, error)
}

// Store is everything the engine needs from persistence; *sqlite.Store satisfies it.
type Store interface {
	ExampleStore
	FeedbackStore
	PatternStore
	MetricStore
}

// Emitter receives metric samples. *telemetry.Recorder satisfies it.
type Emitter interface {
	Emit(ctx context.Context, module, name string, value float64, metadata domain.Metadata)
}

type Engine struct {
	Library   *Library
	Feedback  *FeedbackLoop
	Retriever *Retriever
	Patterns  *PatternMiner
	Analytics *Aggregator
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to compute trailing windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func NewEngine(store Store, emitter Emitter, opts ...Option) *Engine {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Engine{
		Library:   NewLibrary(store, emitter),
		Feedback:  NewFeedbackLoop(store, emitter),
		Retriever: NewRetriever(store, emitter),
		Patterns:  NewPatternMiner(store, o.now),
		Analytics: NewAggregator(store, o.now),
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, string, float64, domain.Metadata) {}

func windowStart(now func() time.Time, windowDays int) (time.Time, error) {
	if windowDays < 1 {
		return time.Time{}, &domain.ValidationError{Field: "window_days", Reason: "must be >= 1"}
	}
	return now().UTC().AddDate(0, 0, -windowDays), nil
}
