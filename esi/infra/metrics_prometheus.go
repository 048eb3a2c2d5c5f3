package infra

import (
	"time"

	"killboard-gateway/esi/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implementa domain.Metrics.
type PrometheusMetrics struct {
	cache        *prometheus.CounterVec
	calls        *prometheus.CounterVec
	throttles    *prometheus.CounterVec
	throttleWait *prometheus.HistogramVec
	splits       prometheus.Counter
	jobs         *prometheus.CounterVec
}

// NewPrometheusMetrics cria e registra as métricas em reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by operation and result",
		}, []string{"op", "result"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "upstream_calls_total",
			Help:      "Upstream calls by operation and outcome",
		}, []string{"op", "outcome"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "throttles_total",
			Help:      "Sleeps imposed on callers by reason",
		}, []string{"reason"}),
		throttleWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "throttle_seconds",
			Help:      "Duration of sleeps imposed on callers",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"reason"}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "affiliation_splits_total",
			Help:      "Affiliation batches split in half after a failure",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killboard",
			Subsystem: "esi",
			Name:      "jobs_enqueued_total",
			Help:      "Follow-up jobs enqueued by type",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{m.cache, m.calls, m.throttles, m.throttleWait, m.splits, m.jobs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) CacheHit(op string)  { m.cache.WithLabelValues(op, "hit").Inc() }
func (m *PrometheusMetrics) CacheMiss(op string) { m.cache.WithLabelValues(op, "miss").Inc() }

func (m *PrometheusMetrics) UpstreamCall(op, outcome string) {
	m.calls.WithLabelValues(op, outcome).Inc()
}

func (m *PrometheusMetrics) Throttled(reason string, d time.Duration) {
	m.throttles.WithLabelValues(reason).Inc()
	m.throttleWait.WithLabelValues(reason).Observe(d.Seconds())
}

func (m *PrometheusMetrics) BatchSplit() { m.splits.Inc() }

func (m *PrometheusMetrics) JobEnqueued(t domain.JobType) {
	m.jobs.WithLabelValues(string(t)).Inc()
}
