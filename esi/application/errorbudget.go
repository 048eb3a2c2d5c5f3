package application

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"killboard-gateway/esi/domain"
)

const (
	errorBudgetFull   = 100
	maxBackoffFactor  = 120.0
	baseBackoff       = 200 * time.Millisecond
	minBackoff        = 100 * time.Millisecond
	errorBudgetTTL    = 300 * time.Second
	defaultResetAfter = 60
)

// BackoffDelay calcula a espera para um orçamento de erros `remaining`
// que volta a encher em `resetSeconds`.
//
//	pct    = remaining / 100
//	factor = 120 ^ (1 - pct)
//	sleep  = clamp(200ms * factor, [100ms, resetSeconds])
//
// Orçamento cheio (>= 100) não espera. O teto (reset) vence o piso:
// com reset 0 a espera é 0.
func BackoffDelay(remaining, resetSeconds int) time.Duration {
	if remaining >= errorBudgetFull {
		return 0
	}
	if remaining < 0 {
		remaining = 0
	}
	pct := float64(remaining) / errorBudgetFull
	factor := math.Pow(maxBackoffFactor, 1-pct)

	d := time.Duration(float64(baseBackoff) * factor)
	if d < minBackoff {
		d = minBackoff
	}
	if ceil := time.Duration(max(resetSeconds, 0)) * time.Second; d > ceil {
		d = ceil
	}
	return d
}

// ErrorBudget acompanha o orçamento de erros reportado pelo upstream
// (X-ESI-Error-Limit-Remain / X-ESI-Error-Limit-Reset).
type ErrorBudget struct {
	Store   domain.SharedStore
	Clock   domain.Clock
	Metrics domain.Metrics
	Log     *slog.Logger
}

// Throttle dorme de acordo com BackoffDelay quando o orçamento está abaixo de 100.
// Sem leitura no store (expirou ou nunca foi gravada) não há espera.
func (b ErrorBudget) Throttle(ctx context.Context) error {
	if b.Store == nil {
		return nil
	}
	log := loggerOrDefault(b.Log)

	raw, ok, err := b.Store.Get(ctx, domain.KeyErrorRemain)
	if err != nil {
		log.Warn("error budget: read remain failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("error budget: bad remain value", "value", raw)
		return nil
	}
	if remaining >= errorBudgetFull {
		return nil
	}

	reset := defaultResetAfter
	if raw, ok, err := b.Store.Get(ctx, domain.KeyErrorReset); err == nil && ok {
		if v, err := strconv.Atoi(raw); err == nil {
			reset = v
		}
	}

	d := BackoffDelay(remaining, reset)
	if d <= 0 {
		return nil
	}
	log.Debug("error budget low, backing off", "remaining", remaining, "reset_seconds", reset, "sleep", d)
	metricsOrDefault(b.Metrics).Throttled(domain.ThrottleErrorBudget, d)
	return clockOrDefault(b.Clock).Sleep(ctx, d)
}

// Update grava os valores mais recentes com TTL curto (300s),
// para leituras velhas expirarem em vez de ficarem penduradas.
func (b ErrorBudget) Update(ctx context.Context, meta domain.ResponseMeta) {
	if b.Store == nil || !meta.HasErrorLimit {
		return
	}
	log := loggerOrDefault(b.Log)
	if err := b.Store.Set(ctx, domain.KeyErrorRemain, strconv.Itoa(meta.ErrorRemain), errorBudgetTTL); err != nil {
		log.Warn("error budget: write remain failed", "error", err)
	}
	if err := b.Store.Set(ctx, domain.KeyErrorReset, strconv.Itoa(meta.ErrorReset), errorBudgetTTL); err != nil {
		log.Warn("error budget: write reset failed", "error", err)
	}
}
