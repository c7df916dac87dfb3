package telemetry

import (
	"context"
	"log"

	"kbengine/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricSamples counts every sample appended to the metrics table.
	// Labels: module, metric
	metricSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kbengine",
		Subsystem: "engine",
		Name:      "metric_samples_total",
		Help:      "Total metric samples emitted by engine components",
	}, []string{"module", "metric"})

	// metricValues accumulates non-negative sample values.
	// Labels: module, metric
	metricValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kbengine",
		Subsystem: "engine",
		Name:      "metric_value_sum",
		Help:      "Sum of non-negative metric sample values",
	}, []string{"module", "metric"})

	// emitFailures counts samples that could not be persisted.
	// Labels: metric
	emitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kbengine",
		Subsystem: "engine",
		Name:      "metric_emit_failures_total",
		Help:      "Metric samples dropped because the store write failed",
	}, []string{"metric"})
)

type MetricWriter interface {
	InsertMetric(ctx context.Context, m domain.MetricSample) error
}

// Recorder appends metric samples to the store and mirrors them into the
// process Prometheus registry. Emission never fails the caller's operation.
type Recorder struct {
	store MetricWriter
}

func NewRecorder(store MetricWriter) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Emit(ctx context.Context, module, name string, value float64, metadata domain.Metadata) {
	if r == nil || r.store == nil {
		return
	}
	err := r.store.InsertMetric(ctx, domain.MetricSample{
		Module:      module,
		MetricName:  name,
		MetricValue: value,
		Metadata:    metadata,
	})
	if err != nil {
		emitFailures.WithLabelValues(name).Inc()
		log.Printf("telemetry emit error module=%s metric=%s: %v", module, name, err)
		return
	}
	metricSamples.WithLabelValues(module, name).Inc()
	if value >= 0 {
		metricValues.WithLabelValues(module, name).Add(value)
	}
}
