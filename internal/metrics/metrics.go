// Package metrics exposes Prometheus instrumentation for the ingestion and ranking pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reviewranker"

// Metrics holds every collector the pipeline updates. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal        *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	ImportRecords    *prometheus.CounterVec
	ImportBatches    *prometheus.CounterVec
	SourceRequests   *prometheus.CounterVec
	RankingDuration  prometheus.Histogram
	RankedBusinesses prometheus.Counter
	CycleDuration    prometheus.Histogram
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}
	initQueueMetrics(m, factory)
	initImportMetrics(m, factory)
	initSourceMetrics(m, factory)
	initRankingMetrics(m, factory)
	return m
}

func initQueueMetrics(m *Metrics, f promauto.Factory) {
	m.JobsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Ingestion jobs by outcome (claimed, completed, retried, failed, reset)",
	}, []string{"outcome"})
	m.QueueDepth = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Ingestion jobs by status at the last status query",
	}, []string{"status"})
}

func initImportMetrics(m *Metrics, f promauto.Factory) {
	m.ImportRecords = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_records_total",
		Help:      "Imported review records by outcome",
	}, []string{"outcome"})
	m.ImportBatches = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_batches_total",
		Help:      "Import batches by result (ok, needs_inspection)",
	}, []string{"result"})
}

func initSourceMetrics(m *Metrics, f promauto.Factory) {
	m.SourceRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_requests_total",
		Help:      "Scrape provider calls by result (ok, error, rejected)",
	}, []string{"result"})
}

func initRankingMetrics(m *Metrics, f promauto.Factory) {
	m.RankingDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ranking_recompute_seconds",
		Help:      "Duration of ranking recomputation runs",
		Buckets:   prometheus.DefBuckets,
	})
	m.RankedBusinesses = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ranked_businesses_total",
		Help:      "Businesses rescored by the ranking engine",
	})
	m.CycleDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_seconds",
		Help:      "Duration of full refresh cycles",
		Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetQueueDepth(status string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(status).Set(float64(n))
}

func (m *Metrics) ImportOutcome(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ImportRecords.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ImportBatch(needsInspection bool) {
	if m == nil {
		return
	}
	result := "ok"
	if needsInspection {
		result = "needs_inspection"
	}
	m.ImportBatches.WithLabelValues(result).Inc()
}

func (m *Metrics) SourceRequest(result string) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRanking(started time.Time, businesses int) {
	if m == nil {
		return
	}
	m.RankingDuration.Observe(time.Since(started).Seconds())
	m.RankedBusinesses.Add(float64(businesses))
}

func (m *Metrics) ObserveCycle(started time.Time) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(time.Since(started).Seconds())
}
