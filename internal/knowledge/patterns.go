package knowledge

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"kbengine/internal/domain"
)

const (
	DefaultPatternThreshold = 2
	maxPatterns             = 10
)

// PatternMiner surfaces corrections that keep recurring. Every call rescans
// the window; nothing is maintained incrementally.
type PatternMiner struct {
	store interface {
		FeedbackStore
		PatternStore
	}
	now func() time.Time
}

func NewPatternMiner(store interface {
	FeedbackStore
	PatternStore
}, now func() time.Time) *PatternMiner {
	if now == nil {
		now = time.Now
	}
	return &PatternMiner{store: store, now: now}
}

// DetectPatterns groups incorrect feedback in the trailing window by exact
// correction text and returns groups seen more than threshold times, most
// frequent first, at most ten.
func (m *PatternMiner) DetectPatterns(ctx context.Context, module string, windowDays, threshold int) ([]domain.Pattern, error) {
	module = strings.TrimSpace(module)
	since, err := windowStart(m.now, windowDays)
	if err != nil {
		return nil, err
	}
	groups, err := m.store.CorrectionCounts(ctx, module, since, threshold, maxPatterns)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []domain.Pattern{}, nil
	}
	total, err := m.store.CountIncorrectFeedback(ctx, module, since)
	if err != nil {
		return nil, err
	}

	detectedAt := m.now().UTC()
	out := make([]domain.Pattern, 0, len(groups))
	for _, g := range groups {
		confidence := 0.0
		if total > 0 {
			confidence = float64(g.Frequency) / float64(total)
		}
		out = append(out, domain.Pattern{
			Module:          module,
			PatternType:     domain.PatternTypeRecurringCorrection,
			Description:     g.Correction,
			Frequency:       g.Frequency,
			ConfidenceScore: confidence,
			Metadata: domain.Metadata{
				"first_seen":  g.FirstSeen.Format(time.RFC3339),
				"last_seen":   g.LastSeen.Format(time.RFC3339),
				"window_days": strconv.Itoa(windowDays),
			},
			DetectedAt: detectedAt,
		})
	}
	log.Printf("patterns detect module=%s window_days=%d threshold=%d found=%d incorrect=%d", module, windowDays, threshold, len(out), total)
	return out, nil
}

// Snapshot persists a detected set so it can be reviewed later.
func (m *PatternMiner) Snapshot(ctx context.Context, patterns []domain.Pattern) error {
	return m.store.InsertPatterns(ctx, patterns)
}
