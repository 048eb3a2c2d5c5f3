package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"killboard-gateway/esi/domain"
)

const (
	DefaultPauseDuration = 60 * time.Second
	DefaultOfflineWait   = 30 * time.Second
	DefaultOfflineTTL    = 60 * time.Second
)

// PauseGate é a pausa cooperativa global: o valor vive no SharedStore,
// então todo chamador que checar durante a janela dorme junto.
// Não é um lock de verdade.
type PauseGate struct {
	Store   domain.SharedStore
	Clock   domain.Clock
	Metrics domain.Metrics
	Log     *slog.Logger

	// OfflineWait é a espera fixa antes de falhar quando o upstream está offline (padrão 30s).
	OfflineWait time.Duration
}

// CheckPaused dorme até o "paused until" compartilhado, se ele estiver no futuro.
func (p PauseGate) CheckPaused(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	raw, ok, err := p.Store.Get(ctx, domain.KeyFetcherPaused)
	if err != nil {
		loggerOrDefault(p.Log).Warn("pause gate: read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		loggerOrDefault(p.Log).Warn("pause gate: bad paused-until value", "value", raw)
		return nil
	}

	clock := clockOrDefault(p.Clock)
	wait := time.UnixMilli(ms).Sub(clock.Now())
	if wait <= 0 {
		return nil
	}
	metricsOrDefault(p.Metrics).Throttled(domain.ThrottlePaused, wait)
	return clock.Sleep(ctx, wait)
}

// CheckOffline falha a chamada (sem retry) depois de uma espera fixa
// se o flag de upstream offline estiver setado.
func (p PauseGate) CheckOffline(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	raw, ok, err := p.Store.Get(ctx, domain.KeyUpstreamOffline)
	if err != nil {
		loggerOrDefault(p.Log).Warn("pause gate: read offline flag failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if offline, err := strconv.ParseBool(raw); err != nil || !offline {
		return nil
	}

	wait := p.OfflineWait
	if wait <= 0 {
		wait = DefaultOfflineWait
	}
	metricsOrDefault(p.Metrics).Throttled(domain.ThrottleOffline, wait)
	if err := clockOrDefault(p.Clock).Sleep(ctx, wait); err != nil {
		return err
	}
	return domain.ErrUpstreamOffline
}

// Engage grava paused-until = agora + d e dorme d.
func (p PauseGate) Engage(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = DefaultPauseDuration
	}
	clock := clockOrDefault(p.Clock)
	until := clock.Now().Add(d)

	if p.Store != nil {
		if err := p.Store.Set(ctx, domain.KeyFetcherPaused, strconv.FormatInt(until.UnixMilli(), 10), d); err != nil {
			loggerOrDefault(p.Log).Warn("pause gate: write failed", "error", err)
		}
	}
	loggerOrDefault(p.Log).Warn("upstream hard rejection, pausing all callers", "until", until, "duration", d)
	metricsOrDefault(p.Metrics).Throttled(domain.ThrottlePaused, d)
	return clock.Sleep(ctx, d)
}

// MarkOffline seta o flag de upstream offline por ttl.
func (p PauseGate) MarkOffline(ctx context.Context, ttl time.Duration) {
	if p.Store == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultOfflineTTL
	}
	if err := p.Store.Set(ctx, domain.KeyUpstreamOffline, "true", ttl); err != nil {
		loggerOrDefault(p.Log).Warn("pause gate: write offline flag failed", "error", err)
	}
}
