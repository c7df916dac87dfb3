package knowledge

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"kbengine/internal/domain"
)

type Retriever struct {
	store   ExampleStore
	emitter Emitter
}

func NewRetriever(store ExampleStore, emitter Emitter) *Retriever {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Retriever{store: store, emitter: emitter}
}

func normalizeQuery(q domain.ExampleQuery) domain.ExampleQuery {
	q.Module = strings.TrimSpace(q.Module)
	q.Category = strings.TrimSpace(q.Category)
	q.Specialty = strings.TrimSpace(q.Specialty)
	return q
}

// Candidates ranks matching active examples without recording usage.
// Specialty matches rows with that specialty or with none.
func (r *Retriever) Candidates(ctx context.Context, q domain.ExampleQuery) ([]domain.Example, error) {
	return r.store.CandidateExamples(ctx, normalizeQuery(q))
}

// RecordUsage bumps usage_count on each example with one atomic statement
// and returns the examples with their post-increment counts.
func (r *Retriever) RecordUsage(ctx context.Context, examples []domain.Example) ([]domain.Example, error) {
	if len(examples) == 0 {
		return examples, nil
	}
	ids := make([]int64, len(examples))
	for i, ex := range examples {
		ids[i] = ex.ID
	}
	counts, err := r.store.IncrementUsage(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Example, len(examples))
	for i, ex := range examples {
		if n, ok := counts[ex.ID]; ok {
			ex.UsageCount = n
		}
		out[i] = ex
	}
	return out, nil
}

// Retrieve returns at most q.Limit ranked examples and records their usage.
// No match is an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, q domain.ExampleQuery) ([]domain.Example, error) {
	q = normalizeQuery(q)
	candidates, err := r.store.CandidateExamples(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		log.Printf("examples retrieve module=%s category=%s specialty=%s hits=0", q.Module, q.Category, q.Specialty)
		return candidates, nil
	}
	out, err := r.RecordUsage(ctx, candidates)
	if err != nil {
		return nil, err
	}
	log.Printf("examples retrieve module=%s category=%s specialty=%s hits=%d", q.Module, q.Category, q.Specialty, len(out))
	r.emitter.Emit(ctx, q.Module, domain.MetricExamplesRetrieved, float64(len(out)), domain.Metadata{
		"category": q.Category,
	})
	return out, nil
}

// BuildContextBlock renders examples for embedding in a generation prompt.
// The result never exceeds maxChars runes; examples that would not fit are
// left out, and a single oversized first example is cut with "...".
func BuildContextBlock(examples []domain.Example, maxChars int) string {
	if len(examples) == 0 || maxChars <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for i, ex := range examples {
		var labels []string
		for _, l := range []string{ex.Category, ex.ScenarioType, ex.Specialty} {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		entry := fmt.Sprintf("Example %d", i+1)
		if len(labels) > 0 {
			entry += " (" + strings.Join(labels, "/") + ")"
		}
		entry += ":\nInput: " + strings.TrimSpace(ex.AnonymizedInput) +
			"\nOutput: " + strings.TrimSpace(ex.ValidatedOutput) + "\n\n"

		n := len([]rune(entry))
		if used+n > maxChars {
			if used == 0 {
				b.WriteString(truncateRunes(entry, maxChars))
			}
			break
		}
		b.WriteString(entry)
		used += n
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// ExampleIDs joins example ids for log lines and metadata.
func ExampleIDs(examples []domain.Example) string {
	parts := make([]string, len(examples))
	for i, ex := range examples {
		parts[i] = strconv.FormatInt(ex.ID, 10)
	}
	return strings.Join(parts, ",")
}
