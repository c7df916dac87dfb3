package knowledge

import (
	"context"
	"testing"

	"kbengine/internal/domain"
	"kbengine/internal/telemetry"
)

func TestSummarizeEmptyWindow(t *testing.T) {
	env := newTestEnv(t)
	got, err := env.engine.Analytics.Summarize(context.Background(), "", 7)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil mapping, got %#v", got)
	}

	unknown, err := env.engine.Analytics.Summarize(context.Background(), "unknown-module", 7)
	if err != nil {
		t.Fatalf("Summarize unknown failed: %v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("expected empty mapping for unknown module, got %#v", unknown)
	}
}

func TestSummarizeRollsUpEngineEmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Wire the real recorder so samples land in the metrics table.
	engine := NewEngine(env.store, telemetry.NewRecorder(env.store), WithClock(env.clock.Now))

	for _, in := range []string{"a", "b", "c"} {
		if _, err := engine.Library.Add(ctx, AddParams{Module: "letters", Input: in, Output: in + "!"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if _, err := engine.Library.Add(ctx, AddParams{Module: "letters", Input: "a", Output: "a!"}); err != nil {
		t.Fatalf("duplicate Add failed: %v", err)
	}
	if _, err := engine.Retriever.Retrieve(ctx, domain.ExampleQuery{Module: "letters", Limit: 2}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	for _, ok := range []bool{true, true, false} {
		if _, err := engine.Feedback.Record(ctx, RecordParams{
			Module: "letters", AISuggestion: "draft", UserCorrection: "fix", IsCorrect: domain.BoolPtr(ok),
		}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if _, err := engine.Library.Add(ctx, AddParams{Module: "exam", Input: "q", Output: "a"}); err != nil {
		t.Fatalf("Add exam failed: %v", err)
	}

	got, err := engine.Analytics.Summarize(ctx, "letters", 7)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if _, ok := got["exam"]; ok {
		t.Fatal("module filter leaked exam metrics")
	}
	if s := got.Stat("letters", domain.MetricExamplesAdded); s.Count != 3 || s.Sum != 3 {
		t.Fatalf("unexpected examples_added: %+v", s)
	}
	if s := got.Stat("letters", domain.MetricExamplesRetrieved); s.Count != 1 || s.Sum != 2 || s.Average != 2 {
		t.Fatalf("unexpected examples_retrieved: %+v", s)
	}
	if s := got.Stat("letters", domain.MetricValidationsCorrect); s.Count != 2 {
		t.Fatalf("unexpected ai_validations_correct: %+v", s)
	}
	if s := got.Stat("letters", domain.MetricCorrectionsNeeded); s.Count != 1 {
		t.Fatalf("unexpected ai_corrections_needed: %+v", s)
	}

	all, err := engine.Analytics.Summarize(ctx, "", 7)
	if err != nil {
		t.Fatalf("Summarize all failed: %v", err)
	}
	if all.Stat("exam", domain.MetricExamplesAdded).Count != 1 {
		t.Fatalf("expected exam module in unfiltered summary: %#v", all)
	}

	// Move the clock past the window: everything ages out.
	env.clock.Set(env.clock.Now().AddDate(0, 0, 8))
	aged, err := engine.Analytics.Summarize(ctx, "", 7)
	if err != nil {
		t.Fatalf("Summarize aged failed: %v", err)
	}
	if len(aged) != 0 {
		t.Fatalf("expected empty summary after window, got %#v", aged)
	}
}
