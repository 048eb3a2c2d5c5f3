package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"killboard-gateway/esi"
	"killboard-gateway/esi/application"
	"killboard-gateway/esi/domain"
	"killboard-gateway/esi/infra"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// backends são as implementações concretas escolhidas pela config.
type backends struct {
	store    domain.SharedStore
	entities domain.EntityStore
	queue    domain.JobQueue
	metrics  domain.Metrics

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config, log *slog.Logger, reg prometheus.Registerer) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closers = append(b.closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.store = infra.NewRedisStore(rdb, infra.WithKeyPrefix(cfg.RedisPrefix))
	} else {
		mem := infra.NewMemoryStore()
		mem.StartJanitor(ctx, time.Minute)
		b.store = mem
		log.Warn("REDIS_ADDR not set, using in-memory shared store (single process only)")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		pg := infra.NewPostgresEntityStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		b.entities = pg
	} else {
		b.entities = infra.NewMemoryEntityStore()
		log.Warn("POSTGRES_DSN not set, snapshots are not persisted")
	}

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("killboard-resolver"))
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		b.closers = append(b.closers, func() { _ = nc.Drain() })

		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		q := infra.NewNatsJobQueue(js, infra.WithSubjectPrefix(cfg.NatsSubjectPrefix))
		if err := q.EnsureStream(ctx, js, cfg.NatsStream); err != nil {
			return nil, err
		}
		b.queue = q
	} else {
		b.queue = infra.NewMemoryJobQueue()
		log.Warn("NATS_URL not set, follow-up jobs are only recorded in memory")
	}

	m, err := infra.NewPrometheusMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	b.metrics = m

	ok = true
	return b, nil
}

// app junta os serviços já construídos. Tudo é montado aqui, uma vez, no start.
type app struct {
	cfg      config
	log      *slog.Logger
	entities domain.EntityStore
	queue    domain.JobQueue

	alliances   *application.AllianceService
	corps       *application.CorporationService
	chars       *application.CharacterService
	affiliation *application.AffiliationResolver
}

func newApp(cfg config, log *slog.Logger, b *backends, up domain.Upstream) *app {
	gw := application.NewGateway(b.store,
		application.WithLogger(log),
		application.WithMetrics(b.metrics),
		application.WithRateCap(cfg.RateCap),
		application.WithPauseDuration(cfg.PauseDuration),
		application.WithOfflineWait(cfg.OfflineWait),
		application.WithOfflineTTL(cfg.OfflineTTL),
		application.WithMaxRejectionRetries(cfg.MaxRejectionRetries),
	)

	deps := application.Deps{
		Gateway:  gw,
		Upstream: up,
		Store:    b.entities,
		Queue:    b.queue,
		Factions: application.NewFactionDirectory(gw, up, log),
		Log:      log,
	}
	alliances := application.NewAllianceService(deps, application.WithMaxAge(cfg.AllianceMaxAge))
	corps := application.NewCorporationService(deps, alliances, application.WithMaxAge(cfg.CorporationMaxAge))
	chars := application.NewCharacterService(deps, corps, application.WithMaxAge(cfg.CharacterMaxAge))

	return &app{
		cfg:         cfg,
		log:         log,
		entities:    b.entities,
		queue:       b.queue,
		alliances:   alliances,
		corps:       corps,
		chars:       chars,
		affiliation: application.NewAffiliationResolver(deps, application.WithMaxSplitAttempt(cfg.MaxSplitAttempt)),
	}
}

func newUpstream(cfg config) domain.Upstream {
	return esi.NewClient(
		esi.WithBaseURL(cfg.ESIBaseURL),
		esi.WithUserAgent(cfg.UserAgent),
		esi.WithRate(cfg.LocalRPS, cfg.LocalBurst),
	)
}

func newLogger(cfg config) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
