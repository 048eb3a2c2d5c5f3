package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"killboard-gateway/esi/domain"

	"golang.org/x/sync/errgroup"
)

// Deps são as dependências comuns dos serviços de resolução.
// Tudo é construído e injetado no start do processo; não há singletons.
type Deps struct {
	Gateway  *Gateway
	Upstream domain.Upstream
	Store    domain.EntityStore
	Queue    domain.JobQueue
	Factions *FactionDirectory
	Log      *slog.Logger
}

type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	maxAge time.Duration
	log    *slog.Logger
}

// WithMaxAge troca a janela de frescor padrão do tipo.
func WithMaxAge(d time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.maxAge = d }
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(c *serviceConfig) { c.log = l }
}

func newServiceConfig(def time.Duration, deps Deps, opts []ServiceOption) serviceConfig {
	c := serviceConfig{maxAge: def, log: deps.Log}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxAge <= 0 {
		c.maxAge = def
	}
	c.log = loggerOrDefault(c.log)
	return c
}

// checkConflict consulta em paralelo os stores dos outros dois tipos.
// Um id pertence a no máximo um tipo; colisão falha antes de qualquer rede.
func checkConflict(ctx context.Context, store domain.EntityStore, kind domain.Kind, id int64) error {
	claimed := make([]bool, len(domain.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, other := range domain.Kinds {
		if other == kind {
			continue
		}
		g.Go(func() error {
			_, ok, err := store.FindOne(gctx, other, id)
			if err != nil {
				return fmt.Errorf("conflict check %s %d: %w", other, id, err)
			}
			claimed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, other := range domain.Kinds {
		if claimed[i] {
			return &domain.ConflictError{ID: id, Kind: kind, ClaimedBy: other}
		}
	}
	return nil
}

func loadSnapshot[T any](ctx context.Context, store domain.EntityStore, kind domain.Kind, id int64) (T, time.Time, bool, error) {
	var snap T
	rec, ok, err := store.FindOne(ctx, kind, id)
	if err != nil {
		return snap, time.Time{}, false, fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	if !ok {
		return snap, time.Time{}, false, nil
	}
	if err := json.Unmarshal(rec.Data, &snap); err != nil {
		return snap, time.Time{}, false, fmt.Errorf("decode %s %d: %w", kind, id, err)
	}
	return snap, rec.UpdatedAt, true, nil
}

func saveSnapshot(ctx context.Context, store domain.EntityStore, kind domain.Kind, id int64, snap any, at time.Time) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return &domain.PersistenceError{Kind: kind, ID: id, Op: "encode", Err: err}
	}
	if err := store.Upsert(ctx, kind, id, domain.Record{Data: b, UpdatedAt: at}); err != nil {
		return &domain.PersistenceError{Kind: kind, ID: id, Op: "upsert", Err: err}
	}
	return nil
}

func isFresh(updatedAt, now time.Time, maxAge time.Duration) bool {
	return now.Sub(updatedAt) < maxAge
}

func enqueue(ctx context.Context, q domain.JobQueue, m domain.Metrics, job domain.Job) error {
	if q == nil {
		return nil
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s %d: %w", job.Type, job.Payload.ID, err)
	}
	metricsOrDefault(m).JobEnqueued(job.Type)
	return nil
}

// appendHistory copia o histórico anterior e acrescenta uma entrada só quando a
// afiliação mudou ou o histórico estava vazio. Nunca reescreve o que já existe.
func appendHistory(prev []domain.HistoryEntry, changed bool, entry domain.HistoryEntry) ([]domain.HistoryEntry, bool) {
	out := append([]domain.HistoryEntry(nil), prev...)
	if !changed && len(out) > 0 {
		return out, false
	}
	return append(out, entry), true
}
