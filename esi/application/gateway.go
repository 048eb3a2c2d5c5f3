package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"killboard-gateway/esi/domain"
)

const DefaultMaxRejectionRetries = 3

// Gateway orquestra rate limit, orçamento de erros, pausa e cache em volta
// de toda chamada ao upstream. É o único componente que chega à rede (via invoke).
type Gateway struct {
	limiter RateLimiter
	budget  ErrorBudget
	pause   PauseGate
	cache   ResponseCache

	clock   domain.Clock
	log     *slog.Logger
	metrics domain.Metrics

	pauseFor            time.Duration
	offlineTTL          time.Duration
	maxRejectionRetries int
}

type GatewayOption func(*Gateway)

func WithClock(c domain.Clock) GatewayOption {
	return func(g *Gateway) { g.clock = c }
}

func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.log = l }
}

func WithMetrics(m domain.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithRateCap define o máximo de chamadas por janela de 1s.
func WithRateCap(n int64) GatewayOption {
	return func(g *Gateway) { g.limiter.Cap = n }
}

// WithPauseDuration define a pausa global após um 420 sem Retry-After.
func WithPauseDuration(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.pauseFor = d }
}

func WithOfflineWait(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.pause.OfflineWait = d }
}

// WithOfflineTTL define por quanto tempo um 503/504 marca o upstream como offline.
func WithOfflineTTL(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.offlineTTL = d }
}

// WithMaxRejectionRetries limita a cadeia de 420 consecutivos para uma mesma chamada.
func WithMaxRejectionRetries(n int) GatewayOption {
	return func(g *Gateway) { g.maxRejectionRetries = n }
}

func NewGateway(store domain.SharedStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		pauseFor:            DefaultPauseDuration,
		offlineTTL:          DefaultOfflineTTL,
		maxRejectionRetries: DefaultMaxRejectionRetries,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.clock = clockOrDefault(g.clock)
	g.log = loggerOrDefault(g.log)
	g.metrics = metricsOrDefault(g.metrics)

	g.limiter.Store, g.limiter.Clock, g.limiter.Metrics, g.limiter.Log = store, g.clock, g.metrics, g.log
	g.budget = ErrorBudget{Store: store, Clock: g.clock, Metrics: g.metrics, Log: g.log}
	g.pause.Store, g.pause.Clock, g.pause.Metrics, g.pause.Log = store, g.clock, g.metrics, g.log
	g.cache = ResponseCache{Store: store, Clock: g.clock, Log: g.log}
	return g
}

func (g *Gateway) Clock() domain.Clock { return g.clock }

// Invoker é uma operação concreta do upstream, já com os argumentos capturados.
type Invoker[T any] func(ctx context.Context) (T, domain.ResponseMeta, error)

// Do executa uma operação do upstream através do gateway, nesta ordem:
//
//	offline -> pausa -> cache (retorna no hit) -> rate limit -> orçamento de erros -> invoke
//
// As checagens que evitam I/O (offline, pausa, cache) vêm antes de qualquer coisa
// que consuma vaga de requisição. Um hit não toca no limiter nem no orçamento.
//
// Em 420 a pausa global é acionada e a chamada é refeita uma vez por rejeição.
// Qualquer outro erro volta sem alteração.
func Do[T any](ctx context.Context, g *Gateway, op string, args []any, invoke Invoker[T]) (T, error) {
	return do(ctx, g, op, args, invoke, 0)
}

func do[T any](ctx context.Context, g *Gateway, op string, args []any, invoke Invoker[T], rejections int) (T, error) {
	var zero T

	if err := g.pause.CheckOffline(ctx); err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	if err := g.pause.CheckPaused(ctx); err != nil {
		return zero, err
	}

	key := CacheKey(op, args)
	var cached T
	if g.cache.Lookup(ctx, key, &cached) {
		g.metrics.CacheHit(op)
		return cached, nil
	}
	g.metrics.CacheMiss(op)

	if err := g.limiter.Acquire(ctx); err != nil {
		return zero, err
	}
	if err := g.budget.Throttle(ctx); err != nil {
		return zero, err
	}

	val, meta, err := invoke(ctx)
	if err != nil {
		if m, ok := domain.MetaFromError(err); ok && !meta.HasErrorLimit {
			meta = m
		}
	}
	g.budget.Update(ctx, meta)

	if err == nil {
		g.metrics.UpstreamCall(op, domain.OutcomeOK)
		g.cache.Put(ctx, key, val, meta.Expires)
		return val, nil
	}

	if domain.IsHardRejection(err) {
		g.metrics.UpstreamCall(op, domain.OutcomeRejected)
		wait := g.pauseFor
		if meta.RetryAfter > 0 {
			wait = meta.RetryAfter
		}
		if perr := g.pause.Engage(ctx, wait); perr != nil {
			return zero, perr
		}
		rejections++
		if rejections > g.maxRejectionRetries {
			return zero, fmt.Errorf("%s: gave up after %d rejections: %w", op, rejections, err)
		}
		return do(ctx, g, op, args, invoke, rejections)
	}

	g.metrics.UpstreamCall(op, domain.OutcomeError)
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		g.log.Warn("upstream unavailable, marking offline", "op", op, "ttl", g.offlineTTL)
		g.pause.MarkOffline(ctx, g.offlineTTL)
	}
	return zero, err
}
