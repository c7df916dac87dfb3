package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"kbengine/internal/domain"
)

func TestRetrieveScenarioTopTwoByUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, mustAdd(t, env.engine.Library, AddParams{
			Module: "letters", Category: "referral",
			Input: fmt.Sprintf("case %d", i), Output: fmt.Sprintf("letter %d", i),
		}))
	}

	q := domain.ExampleQuery{Module: "letters", Category: "referral", Limit: 2}
	first, err := env.engine.Retriever.Retrieve(ctx, q)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("unexpected first retrieval: %+v", first)
	}

	second, err := env.engine.Retriever.Retrieve(ctx, q)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 results, got %d", len(second))
	}
	for i, ex := range second {
		if ex.ID != ids[i] {
			t.Fatalf("result %d id=%d, want %d", i, ex.ID, ids[i])
		}
		if ex.UsageCount != 2 {
			t.Fatalf("result %d usage_count=%d, want 2", i, ex.UsageCount)
		}
	}

	third, err := env.engine.Library.Get(ctx, ids[2])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if third.UsageCount != 0 {
		t.Fatalf("unreturned example usage_count=%d, want 0", third.UsageCount)
	}
	if n := env.emitter.count(domain.MetricExamplesRetrieved); n != 2 {
		t.Fatalf("expected 2 retrieval samples, got %d", n)
	}
}

func TestRetrieveFilterAndRankingProperties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	modules := []string{"letters", "interview", "exam"}
	categories := []string{"referral", "discharge", ""}
	specialties := []string{"cardiology", "neurology", ""}
	n := 0
	for _, m := range modules {
		for _, c := range categories {
			for _, s := range specialties {
				for k := 0; k < 2; k++ {
					mustAdd(t, env.engine.Library, AddParams{
						Module: m, Category: c, Specialty: s,
						Input: fmt.Sprintf("in-%d", n), Output: fmt.Sprintf("out-%d", n),
					})
					n++
				}
			}
		}
	}
	// Skew usage so ranking has something to order.
	for i := 0; i < 3; i++ {
		if _, err := env.engine.Retriever.Retrieve(ctx, domain.ExampleQuery{Module: "letters", Limit: 4}); err != nil {
			t.Fatalf("warmup Retrieve failed: %v", err)
		}
	}

	for _, m := range modules {
		for _, c := range categories {
			for _, s := range specialties {
				for _, limit := range []int{1, 3, 50} {
					q := domain.ExampleQuery{Module: m, Category: c, Specialty: s, Limit: limit}
					got, err := env.engine.Retriever.Candidates(ctx, q)
					if err != nil {
						t.Fatalf("Candidates(%+v) failed: %v", q, err)
					}
					if len(got) > limit {
						t.Fatalf("Candidates(%+v) returned %d rows", q, len(got))
					}
					for i, ex := range got {
						if ex.Module != m {
							t.Fatalf("module leak: got %q for %+v", ex.Module, q)
						}
						if c != "" && ex.Category != c {
							t.Fatalf("category leak: got %q for %+v", ex.Category, q)
						}
						if s != "" && ex.Specialty != s && ex.Specialty != "" {
							t.Fatalf("specialty leak: got %q for %+v", ex.Specialty, q)
						}
						if i > 0 {
							prev := got[i-1]
							if prev.QualityScore < ex.QualityScore ||
								(prev.QualityScore == ex.QualityScore && prev.UsageCount < ex.UsageCount) {
								t.Fatalf("ranking not monotone at %d for %+v", i, q)
							}
						}
					}
				}
			}
		}
	}
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	got, err := env.engine.Retriever.Retrieve(context.Background(), domain.ExampleQuery{Module: "nothing", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCandidatesDoNotRecordUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := mustAdd(t, env.engine.Library, AddParams{Module: "letters", Input: "a", Output: "b"})

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Retriever.Candidates(ctx, domain.ExampleQuery{Module: "letters", Limit: 5}); err != nil {
			t.Fatalf("Candidates failed: %v", err)
		}
	}
	ex, err := env.engine.Library.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ex.UsageCount != 0 {
		t.Fatalf("dry-run reads changed usage_count to %d", ex.UsageCount)
	}
}

func TestRetrieveConcurrentIncrementsAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := mustAdd(t, env.engine.Library, AddParams{Module: "letters", Input: "a", Output: "b"})

	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.Retriever.Retrieve(ctx, domain.ExampleQuery{Module: "letters", Limit: 1}); err != nil {
				t.Errorf("Retrieve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	ex, err := env.engine.Library.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ex.UsageCount != workers {
		t.Fatalf("expected usage_count=%d, got %d", workers, ex.UsageCount)
	}
}

func TestBuildContextBlock(t *testing.T) {
	examples := []domain.Example{
		{ID: 1, Category: "referral", AnonymizedInput: "first input", ValidatedOutput: "first output"},
		{ID: 2, Category: "referral", ScenarioType: "urgent", AnonymizedInput: "second input", ValidatedOutput: "second output"},
	}

	full := BuildContextBlock(examples, 10000)
	if !strings.Contains(full, "Example 1 (referral):") || !strings.Contains(full, "Example 2 (referral/urgent):") {
		t.Fatalf("unexpected block:\n%s", full)
	}
	if !strings.Contains(full, "Output: second output") {
		t.Fatalf("missing output line:\n%s", full)
	}

	oneOnly := BuildContextBlock(examples, 70)
	if strings.Contains(oneOnly, "Example 2") {
		t.Fatalf("expected second example to be dropped:\n%s", oneOnly)
	}

	tiny := BuildContextBlock(examples, 20)
	if len([]rune(tiny)) > 20 || !strings.HasSuffix(tiny, "...") {
		t.Fatalf("expected truncated first example, got %q", tiny)
	}

	if BuildContextBlock(nil, 100) != "" {
		t.Fatal("expected empty block for no examples")
	}
}

func TestExampleIDs(t *testing.T) {
	got := ExampleIDs([]domain.Example{{ID: 3}, {ID: 9}})
	if got != "3,9" {
		t.Fatalf("ExampleIDs = %q", got)
	}
}
