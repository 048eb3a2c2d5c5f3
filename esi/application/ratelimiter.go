package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"killboard-gateway/esi/domain"
)

const (
	DefaultRateCap  = 25
	DefaultRateWait = 1 * time.Second
)

// RateLimiter é um limitador grosseiro por janela de 1s, compartilhado via SharedStore.
//
// Sem fila nem justiça entre quem espera; sob corrida pode contar um pouco a mais.
// O enforcement do próprio upstream é o backstop de verdade.
type RateLimiter struct {
	Store   domain.SharedStore
	Clock   domain.Clock
	Metrics domain.Metrics
	Log     *slog.Logger

	// Cap é o máximo de chamadas por janela (padrão 25).
	Cap int64
	// Wait é a espera fixa quando o cap estoura (padrão 1s).
	Wait time.Duration
}

// Acquire incrementa o contador da janela atual e dorme se passou do cap.
// Erros do store são logados e a chamada segue.
func (l RateLimiter) Acquire(ctx context.Context) error {
	if l.Store == nil {
		return nil
	}
	clock := clockOrDefault(l.Clock)
	if l.Cap <= 0 {
		l.Cap = DefaultRateCap
	}
	if l.Wait <= 0 {
		l.Wait = DefaultRateWait
	}

	key := domain.KeyRateWindowPrefix + strconv.FormatInt(clock.Now().Unix(), 10)
	n, err := l.Store.Incr(ctx, key)
	if err != nil {
		loggerOrDefault(l.Log).Warn("rate limiter: incr failed", "key", key, "error", err)
		return nil
	}
	if n == 1 {
		if err := l.Store.Expire(ctx, key, time.Second); err != nil {
			loggerOrDefault(l.Log).Warn("rate limiter: expire failed", "key", key, "error", err)
		}
	}
	if n <= l.Cap {
		return nil
	}

	metricsOrDefault(l.Metrics).Throttled(domain.ThrottleRateWindow, l.Wait)
	return clock.Sleep(ctx, l.Wait)
}
