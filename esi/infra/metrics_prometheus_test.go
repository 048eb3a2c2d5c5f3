package infra

import (
	"testing"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	m.CacheHit("characters")
	m.CacheHit("characters")
	m.CacheMiss("characters")
	m.UpstreamCall("characters", domain.OutcomeRejected)
	m.Throttled(domain.ThrottlePaused, 60*time.Second)
	m.BatchSplit()
	m.JobEnqueued(domain.JobResolveCharacter)

	require.InDelta(t, 2, testutil.ToFloat64(m.cache.WithLabelValues("characters", "hit")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.cache.WithLabelValues("characters", "miss")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.calls.WithLabelValues("characters", "rejected")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.throttles.WithLabelValues("paused")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.splits), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.jobs.WithLabelValues("resolve_character")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.throttleWait))
}

func TestPrometheusMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMetrics(reg)
	require.Error(t, err)
}
