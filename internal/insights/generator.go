// Package insights turns metric rollups and recurring corrections into
// reviewable insight rows and a plain-text digest.
package insights

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"kbengine/internal/domain"
	"kbengine/internal/knowledge"
)

const InsightTypeAccuracy = "accuracy"

type InsightStore interface {
	InsertInsights(ctx context.Context, insights []domain.Insight) error
}

type Report struct {
	WindowDays int
	Insights   []domain.Insight
	Digest     string
}

type Generator struct {
	engine    *knowledge.Engine
	store     InsightStore
	threshold int
	now       func() time.Time
}

func NewGenerator(engine *knowledge.Engine, store InsightStore, threshold int, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{engine: engine, store: store, threshold: threshold, now: now}
}

// Generate builds insights for modules over the trailing window and persists
// them. No modules means every module that emitted a sample in the window.
func (g *Generator) Generate(ctx context.Context, modules []string, windowDays int) (Report, error) {
	summary, err := g.engine.Analytics.Summarize(ctx, "", windowDays)
	if err != nil {
		return Report{}, err
	}
	if len(modules) == 0 {
		for m := range summary {
			modules = append(modules, m)
		}
	}
	sort.Strings(modules)

	generatedAt := g.now().UTC()
	var out []domain.Insight
	for _, module := range modules {
		if in, ok := accuracyInsight(module, summary, windowDays); ok {
			in.GeneratedAt = generatedAt
			out = append(out, in)
		}
		patterns, err := g.engine.Patterns.DetectPatterns(ctx, module, windowDays, g.threshold)
		if err != nil {
			return Report{}, fmt.Errorf("detecting patterns for %s: %w", module, err)
		}
		for _, p := range patterns {
			out = append(out, domain.Insight{
				Module:      module,
				InsightType: domain.PatternTypeRecurringCorrection,
				Title:       fmt.Sprintf("Recurring correction (%dx)", p.Frequency),
				Body:        p.Description,
				Metadata: domain.Metadata{
					"frequency":  fmt.Sprint(p.Frequency),
					"confidence": fmt.Sprintf("%.2f", p.ConfidenceScore),
				},
				GeneratedAt: generatedAt,
			})
		}
	}

	if len(out) > 0 {
		if err := g.store.InsertInsights(ctx, out); err != nil {
			return Report{}, err
		}
	}
	log.Printf("insights generate modules=%d window_days=%d insights=%d", len(modules), windowDays, len(out))
	return Report{WindowDays: windowDays, Insights: out, Digest: FormatDigest(out, windowDays)}, nil
}

func accuracyInsight(module string, summary domain.Summary, windowDays int) (domain.Insight, bool) {
	correct := summary.Stat(module, domain.MetricValidationsCorrect).Count
	incorrect := summary.Stat(module, domain.MetricCorrectionsNeeded).Count
	total := correct + incorrect
	if total == 0 {
		return domain.Insight{}, false
	}
	rate := float64(correct) / float64(total)
	return domain.Insight{
		Module:      module,
		InsightType: InsightTypeAccuracy,
		Title:       fmt.Sprintf("%.0f%% of suggestions accepted", rate*100),
		Body:        fmt.Sprintf("%d correct, %d corrected in the last %d days", correct, incorrect, windowDays),
		Metadata: domain.Metadata{
			"correct":   fmt.Sprint(correct),
			"incorrect": fmt.Sprint(incorrect),
			"accuracy":  fmt.Sprintf("%.3f", rate),
		},
	}, true
}

// FormatDigest renders insights grouped by module, in input order.
func FormatDigest(insights []domain.Insight, windowDays int) string {
	if len(insights) == 0 {
		return fmt.Sprintf("No insights for the last %d days.", windowDays)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Insights for the last %d days\n", windowDays)
	current := ""
	for _, in := range insights {
		if in.Module != current {
			current = in.Module
			fmt.Fprintf(&b, "\n*%s*\n", current)
		}
		fmt.Fprintf(&b, "- %s: %s\n", in.Title, in.Body)
	}
	return strings.TrimRight(b.String(), "\n")
}
