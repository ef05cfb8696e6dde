// Package metrics exposes the engine's Prometheus instrumentation. Metric
// handles are lazily initialised singletons so any package can record without
// threading registries through constructors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineMetrics aggregates the counters and histograms recorded by the tier
// engine's read paths.
type EngineMetrics struct {
	LedgerReads    *prometheus.CounterVec
	RefreshTotal   *prometheus.CounterVec
	RefreshTiers   *prometheus.GaugeVec
	ResolveTotal   *prometheus.CounterVec
	ResolveLatency prometheus.Histogram
}

var (
	engineOnce sync.Once
	engineReg  *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineReg = &EngineMetrics{
			LedgerReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiercore",
				Subsystem: "ledger",
				Name:      "reads_total",
				Help:      "Ledger reads segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiercore",
				Subsystem: "catalog",
				Name:      "refresh_total",
				Help:      "Catalog refresh batches segmented by resulting snapshot status.",
			}, []string{"status"}),
			RefreshTiers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "tiercore",
				Subsystem: "catalog",
				Name:      "tiers",
				Help:      "Tier counts observed by the most recent refresh.",
			}, []string{"state"}),
			ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiercore",
				Subsystem: "ownership",
				Name:      "resolve_total",
				Help:      "Ownership resolutions segmented by outcome.",
			}, []string{"outcome"}),
			ResolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "tiercore",
				Subsystem: "ownership",
				Name:      "resolve_duration_seconds",
				Help:      "Latency distribution for ownership resolution.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			engineReg.LedgerReads,
			engineReg.RefreshTotal,
			engineReg.RefreshTiers,
			engineReg.ResolveTotal,
			engineReg.ResolveLatency,
		)
	})
	return engineReg
}

// Handler exposes the default Prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
