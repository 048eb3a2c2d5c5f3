package domain

import "time"

// Metrics recebe os eventos do gateway e do resolvedor em lote.
// Implementações devem ser best-effort (nunca falhar a chamada).
type Metrics interface {
	CacheHit(op string)
	CacheMiss(op string)
	UpstreamCall(op string, outcome string)
	Throttled(reason string, d time.Duration)
	BatchSplit()
	JobEnqueued(t JobType)
}

// Resultados de chamada ao upstream reportados em Metrics.UpstreamCall.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Motivos reportados em Metrics.Throttled.
const (
	ThrottleRateWindow  = "rate_window"
	ThrottleErrorBudget = "error_budget"
	ThrottlePaused      = "paused"
	ThrottleOffline     = "offline"
)

// NopMetrics descarta tudo.
type NopMetrics struct{}

func (NopMetrics) CacheHit(string)                 {}
func (NopMetrics) CacheMiss(string)                {}
func (NopMetrics) UpstreamCall(string, string)     {}
func (NopMetrics) Throttled(string, time.Duration) {}
func (NopMetrics) BatchSplit()                     {}
func (NopMetrics) JobEnqueued(JobType)             {}
