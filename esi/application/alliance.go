package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"killboard-gateway/esi/domain"
)

// AllianceService resolve snapshots de alianças.
// Não tem pai para resolver: só o nome da facção é derivado.
type AllianceService struct {
	deps Deps
	cfg  serviceConfig
}

func NewAllianceService(deps Deps, opts ...ServiceOption) *AllianceService {
	return &AllianceService{deps: deps, cfg: newServiceConfig(domain.AllianceMaxAge, deps, opts)}
}

// Get devolve o snapshot guardado se ele tiver menos que maxAge (<= 0 usa o padrão de 720h);
// senão busca no upstream. Erros de busca são propagados (sem fallback para snapshot velho).
func (s *AllianceService) Get(ctx context.Context, id int64, maxAge time.Duration) (domain.Alliance, error) {
	if maxAge <= 0 {
		maxAge = s.cfg.maxAge
	}
	return s.resolve(ctx, id, maxAge, false)
}

// Refresh ignora o frescor e busca de novo.
func (s *AllianceService) Refresh(ctx context.Context, id int64) (domain.Alliance, error) {
	return s.resolve(ctx, id, 0, true)
}

func (s *AllianceService) GetMany(ctx context.Context, ids []int64, maxAge time.Duration) []domain.Alliance {
	out := make([]domain.Alliance, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(ctx, id, maxAge)
		if err != nil {
			s.cfg.log.Warn("alliance resolution failed", "alliance_id", id, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *AllianceService) resolve(ctx context.Context, id int64, maxAge time.Duration, force bool) (domain.Alliance, error) {
	if err := checkConflict(ctx, s.deps.Store, domain.KindAlliance, id); err != nil {
		return domain.Alliance{}, err
	}

	stored, updatedAt, found, err := loadSnapshot[domain.Alliance](ctx, s.deps.Store, domain.KindAlliance, id)
	if err != nil {
		return domain.Alliance{}, err
	}
	stored.UpdatedAt = updatedAt

	now := s.deps.Gateway.Clock().Now()
	if found && !force && isFresh(updatedAt, now, maxAge) {
		return stored, nil
	}

	payload, err := Do(ctx, s.deps.Gateway, "alliances", []any{id}, func(ctx context.Context) (domain.AlliancePayload, domain.ResponseMeta, error) {
		return s.deps.Upstream.GetAlliance(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDeleted):
		return s.tombstone(ctx, id, stored, found, now)
	case errors.Is(err, domain.ErrNotFound):
		return domain.Alliance{}, &domain.NotFoundError{Kind: domain.KindAlliance, ID: id, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return domain.Alliance{}, &domain.ForbiddenError{Kind: domain.KindAlliance, ID: id, Err: err}
	case errors.Is(err, domain.ErrValidation):
		return domain.Alliance{}, &domain.ValidationError{Kind: domain.KindAlliance, ID: id, Reason: err.Error()}
	default:
		return domain.Alliance{}, fmt.Errorf("alliance %d: fetch: %w", id, err)
	}
	if payload.Name == "" {
		return domain.Alliance{}, &domain.ValidationError{Kind: domain.KindAlliance, ID: id, Reason: "missing name"}
	}

	a := domain.Alliance{
		ID:                    id,
		Name:                  payload.Name,
		Ticker:                payload.Ticker,
		CreatorID:             payload.CreatorID,
		CreatorCorporationID:  payload.CreatorCorporationID,
		ExecutorCorporationID: payload.ExecutorCorporationID,
		FactionID:             payload.FactionID,
		FactionName:           s.deps.Factions.Name(ctx, payload.FactionID),
		DateFounded:           payload.DateFounded,
		Deleted:               found && stored.Deleted,
		UpdatedAt:             now,
	}
	if err := saveSnapshot(ctx, s.deps.Store, domain.KindAlliance, id, a, now); err != nil {
		return domain.Alliance{}, err
	}
	return a, nil
}

func (s *AllianceService) tombstone(ctx context.Context, id int64, stored domain.Alliance, found bool, now time.Time) (domain.Alliance, error) {
	t := domain.Alliance{ID: id}
	if found {
		t = stored
	}
	t.Deleted = true
	t.UpdatedAt = now
	if err := saveSnapshot(ctx, s.deps.Store, domain.KindAlliance, id, t, now); err != nil {
		return domain.Alliance{}, err
	}
	return t, nil
}
