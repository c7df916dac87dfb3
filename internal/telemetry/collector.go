package telemetry

import (
	"context"
	"log"
	"time"

	"kbengine/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const rollupTimeout = 5 * time.Second

type RollupReader interface {
	MetricRollup(ctx context.Context, module string, since time.Time) (domain.Summary, error)
}

var (
	rollupCountDesc = prometheus.NewDesc(
		prometheus.BuildFQName("kbengine", "store", "metric_samples"),
		"Metric samples stored within the rollup window",
		[]string{"module", "metric"}, nil,
	)
	rollupSumDesc = prometheus.NewDesc(
		prometheus.BuildFQName("kbengine", "store", "metric_value_sum"),
		"Sum of metric sample values stored within the rollup window",
		[]string{"module", "metric"}, nil,
	)
)

// RollupCollector exports the stored metric rollup on every scrape, so a
// long-running exporter reports samples written by other processes.
type RollupCollector struct {
	store  RollupReader
	window time.Duration
	now    func() time.Time
}

func NewRollupCollector(store RollupReader, windowDays int, now func() time.Time) *RollupCollector {
	if windowDays < 1 {
		windowDays = 1
	}
	if now == nil {
		now = time.Now
	}
	return &RollupCollector{store: store, window: time.Duration(windowDays) * 24 * time.Hour, now: now}
}

func (c *RollupCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- rollupCountDesc
	ch <- rollupSumDesc
}

func (c *RollupCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), rollupTimeout)
	defer cancel()

	summary, err := c.store.MetricRollup(ctx, "", c.now().UTC().Add(-c.window))
	if err != nil {
		log.Printf("telemetry rollup collect error: %v", err)
		ch <- prometheus.NewInvalidMetric(rollupCountDesc, err)
		return
	}
	for module, metrics := range summary {
		for name, stat := range metrics {
			ch <- prometheus.MustNewConstMetric(rollupCountDesc, prometheus.GaugeValue, float64(stat.Count), module, name)
			ch <- prometheus.MustNewConstMetric(rollupSumDesc, prometheus.GaugeValue, stat.Sum, module, name)
		}
	}
}
