package knowledge

import (
	"context"
	"strings"
	"time"

	"kbengine/internal/domain"
)

// Aggregator rolls up metric samples. It reports count/average/sum only;
// ratios are left to consumers.
type Aggregator struct {
	store MetricStore
	now   func() time.Time
}

func NewAggregator(store MetricStore, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

// Summarize groups samples from the trailing window by module and metric
// name. An empty module covers every module; no samples yields an empty map.
func (a *Aggregator) Summarize(ctx context.Context, module string, windowDays int) (domain.Summary, error) {
	since, err := windowStart(a.now, windowDays)
	if err != nil {
		return nil, err
	}
	summary, err := a.store.MetricRollup(ctx, strings.TrimSpace(module), since)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = domain.Summary{}
	}
	return summary, nil
}
