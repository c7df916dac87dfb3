package insights

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kbengine/internal/domain"
	"kbengine/internal/knowledge"
	"kbengine/internal/storage/sqlite"
	"kbengine/internal/telemetry"
)

func TestGenerateAccuracyAndRecurringCorrections(t *testing.T) {
	store, err := sqlite.InitDB(filepath.Join(t.TempDir(), "insights-test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer store.Close()
	now := func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	store.SetClock(now)
	engine := knowledge.NewEngine(store, telemetry.NewRecorder(store), knowledge.WithClock(now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.Feedback.Record(ctx, knowledge.RecordParams{
			Module: "letters", AISuggestion: "code 10", UserCorrection: "use code 11 not 10", IsCorrect: domain.BoolPtr(false),
		}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if _, err := engine.Feedback.Record(ctx, knowledge.RecordParams{
		Module: "letters", AISuggestion: "fine", IsCorrect: domain.BoolPtr(true),
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	g := NewGenerator(engine, store, 2, now)
	report, err := g.Generate(ctx, nil, 7)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.Insights) != 2 {
		t.Fatalf("expected accuracy + 1 pattern insight, got %+v", report.Insights)
	}
	acc := report.Insights[0]
	if acc.InsightType != InsightTypeAccuracy || acc.Metadata["correct"] != "1" || acc.Metadata["incorrect"] != "3" {
		t.Fatalf("unexpected accuracy insight: %+v", acc)
	}
	if report.Insights[1].Body != "use code 11 not 10" {
		t.Fatalf("unexpected pattern insight: %+v", report.Insights[1])
	}
	if !strings.Contains(report.Digest, "*letters*") || !strings.Contains(report.Digest, "25% of suggestions accepted") {
		t.Fatalf("unexpected digest:\n%s", report.Digest)
	}

	stored, err := store.RecentInsights(ctx, "letters", 10)
	if err != nil {
		t.Fatalf("RecentInsights failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted insights, got %d", len(stored))
	}
}

func TestGenerateEmptyWindow(t *testing.T) {
	store, err := sqlite.InitDB(filepath.Join(t.TempDir(), "insights-empty.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer store.Close()
	g := NewGenerator(knowledge.NewEngine(store, nil), store, 2, nil)

	report, err := g.Generate(context.Background(), nil, 7)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.Insights) != 0 || !strings.HasPrefix(report.Digest, "No insights") {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := g.Generate(context.Background(), nil, 0); err == nil {
		t.Fatal("expected error for zero-day window")
	}
}
