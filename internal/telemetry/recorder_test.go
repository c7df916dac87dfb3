package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kbengine/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeWriter struct {
	samples []domain.MetricSample
	err     error
}

func (f *fakeWriter) InsertMetric(_ context.Context, m domain.MetricSample) error {
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, m)
	return nil
}

func TestRecorderEmitPersistsAndCounts(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	before := testutil.ToFloat64(metricSamples.WithLabelValues("rec-test", "examples_added"))
	r.Emit(context.Background(), "rec-test", "examples_added", 1, domain.Metadata{"id": "7"})
	r.Emit(context.Background(), "rec-test", "examples_added", 2, nil)

	if len(w.samples) != 2 {
		t.Fatalf("expected 2 persisted samples, got %d", len(w.samples))
	}
	if w.samples[0].Metadata["id"] != "7" {
		t.Fatalf("metadata not forwarded: %v", w.samples[0].Metadata)
	}
	after := testutil.ToFloat64(metricSamples.WithLabelValues("rec-test", "examples_added"))
	if after-before != 2 {
		t.Fatalf("expected counter to grow by 2, grew by %f", after-before)
	}
	if got := testutil.ToFloat64(metricValues.WithLabelValues("rec-test", "examples_added")); got != 3 {
		t.Fatalf("expected value sum 3, got %f", got)
	}
}

func TestRecorderEmitSwallowsStoreErrors(t *testing.T) {
	r := NewRecorder(&fakeWriter{err: errors.New("disk full")})
	before := testutil.ToFloat64(emitFailures.WithLabelValues("rec-fail"))
	samplesBefore := testutil.ToFloat64(metricSamples.WithLabelValues("letters", "rec-fail"))
	r.Emit(context.Background(), "letters", "rec-fail", 1, nil)
	if got := testutil.ToFloat64(emitFailures.WithLabelValues("rec-fail")); got-before != 1 {
		t.Fatalf("expected one recorded failure, got %f", got-before)
	}
	if got := testutil.ToFloat64(metricSamples.WithLabelValues("letters", "rec-fail")); got != samplesBefore {
		t.Fatalf("failed write must not count as an emitted sample, counter moved %f -> %f", samplesBefore, got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Emit(context.Background(), "letters", "x", 1, nil)
}

type fakeRollup struct {
	summary domain.Summary
	err     error
	since   time.Time
}

func (f *fakeRollup) MetricRollup(_ context.Context, _ string, since time.Time) (domain.Summary, error) {
	f.since = since
	return f.summary, f.err
}

func TestRollupCollectorExportsStoredSamples(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeRollup{summary: domain.Summary{
		"letters": {"examples_added": {Count: 3, Average: 1, Sum: 3}},
	}}
	c := NewRollupCollector(store, 7, func() time.Time { return now })

	want := `
# HELP kbengine_store_metric_samples Metric samples stored within the rollup window
# TYPE kbengine_store_metric_samples gauge
kbengine_store_metric_samples{metric="examples_added",module="letters"} 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "kbengine_store_metric_samples"); err != nil {
		t.Fatalf("unexpected collected metrics: %v", err)
	}
	if !store.since.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("unexpected rollup window start %v", store.since)
	}
	if n := testutil.CollectAndCount(c, "kbengine_store_metric_value_sum"); n != 1 {
		t.Fatalf("expected one value sum series, got %d", n)
	}
}
