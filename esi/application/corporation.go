package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"killboard-gateway/esi/domain"
)

// CorporationService resolve snapshots de corporações, derivando aliança e facção.
type CorporationService struct {
	deps      Deps
	cfg       serviceConfig
	alliances *AllianceService
}

func NewCorporationService(deps Deps, alliances *AllianceService, opts ...ServiceOption) *CorporationService {
	return &CorporationService{
		deps:      deps,
		cfg:       newServiceConfig(domain.CorporationMaxAge, deps, opts),
		alliances: alliances,
	}
}

// Get devolve o snapshot guardado se ele tiver menos que maxAge (<= 0 usa o padrão de 168h).
// Falhas de busca são propagadas: a janela é longa o bastante para o chamador tentar depois.
func (s *CorporationService) Get(ctx context.Context, id int64, maxAge time.Duration) (domain.Corporation, error) {
	if maxAge <= 0 {
		maxAge = s.cfg.maxAge
	}
	return s.resolve(ctx, id, maxAge, false)
}

func (s *CorporationService) Refresh(ctx context.Context, id int64) (domain.Corporation, error) {
	return s.resolve(ctx, id, 0, true)
}

func (s *CorporationService) GetMany(ctx context.Context, ids []int64, maxAge time.Duration) []domain.Corporation {
	out := make([]domain.Corporation, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id, maxAge)
		if err != nil {
			s.cfg.log.Warn("corporation resolution failed", "corporation_id", id, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *CorporationService) resolve(ctx context.Context, id int64, maxAge time.Duration, force bool) (domain.Corporation, error) {
	if err := checkConflict(ctx, s.deps.Store, domain.KindCorporation, id); err != nil {
		return domain.Corporation{}, err
	}

	stored, updatedAt, found, err := loadSnapshot[domain.Corporation](ctx, s.deps.Store, domain.KindCorporation, id)
	if err != nil {
		return domain.Corporation{}, err
	}
	stored.UpdatedAt = updatedAt

	now := s.deps.Gateway.Clock().Now()
	if found && !force && isFresh(updatedAt, now, maxAge) {
		return stored, nil
	}

	payload, err := Do(ctx, s.deps.Gateway, "corporations", []any{id}, func(ctx context.Context) (domain.CorporationPayload, domain.ResponseMeta, error) {
		return s.deps.Upstream.GetCorporation(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDeleted):
		return s.tombstone(ctx, id, stored, found, now)
	case errors.Is(err, domain.ErrNotFound):
		return domain.Corporation{}, &domain.NotFoundError{Kind: domain.KindCorporation, ID: id, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return domain.Corporation{}, &domain.ForbiddenError{Kind: domain.KindCorporation, ID: id, Err: err}
	case errors.Is(err, domain.ErrValidation):
		return domain.Corporation{}, &domain.ValidationError{Kind: domain.KindCorporation, ID: id, Reason: err.Error()}
	default:
		return domain.Corporation{}, fmt.Errorf("corporation %d: fetch: %w", id, err)
	}
	if payload.Name == "" {
		return domain.Corporation{}, &domain.ValidationError{Kind: domain.KindCorporation, ID: id, Reason: "missing name"}
	}

	c := domain.Corporation{
		ID:            id,
		Name:          payload.Name,
		Ticker:        payload.Ticker,
		MemberCount:   payload.MemberCount,
		CEOID:         payload.CEOID,
		CreatorID:     payload.CreatorID,
		AllianceID:    payload.AllianceID,
		FactionID:     payload.FactionID,
		HomeStationID: payload.HomeStationID,
		DateFounded:   payload.DateFounded,
		TaxRate:       payload.TaxRate,
		URL:           payload.URL,
		Deleted:       found && stored.Deleted,
		UpdatedAt:     now,
	}
	s.derive(ctx, &c)

	changed := !found || stored.AllianceID != c.AllianceID
	var appended bool
	c.History, appended = appendHistory(stored.History, changed, domain.HistoryEntry{AllianceID: c.AllianceID, StartDate: now})

	if err := saveSnapshot(ctx, s.deps.Store, domain.KindCorporation, id, c, now); err != nil {
		return domain.Corporation{}, err
	}
	if appended {
		job := domain.NewJob(domain.JobCorporationHistory, id, domain.PriorityHistory)
		if err := enqueue(ctx, s.deps.Queue, s.deps.Gateway.metrics, job); err != nil {
			s.cfg.log.Warn("corporation history backfill not scheduled", "corporation_id", id, "error", err)
		}
	}
	return c, nil
}

// derive resolve o nome da aliança e a facção. A corporação só herda a facção
// da aliança quando não tem uma própria.
func (s *CorporationService) derive(ctx context.Context, c *domain.Corporation) {
	if c.AllianceID != 0 && s.alliances != nil {
		a, err := s.alliances.Get(ctx, c.AllianceID, 0)
		if err != nil {
			s.cfg.log.Warn("alliance lookup failed", "corporation_id", c.ID, "alliance_id", c.AllianceID, "error", err)
		} else {
			c.AllianceName = a.Name
			if c.FactionID == 0 && a.FactionID != 0 {
				c.FactionID = a.FactionID
				c.FactionName = a.FactionName
			}
		}
	}
	if c.FactionID != 0 && c.FactionName == "" {
		c.FactionName = s.deps.Factions.Name(ctx, c.FactionID)
	}
}

func (s *CorporationService) tombstone(ctx context.Context, id int64, stored domain.Corporation, found bool, now time.Time) (domain.Corporation, error) {
	t := domain.Corporation{ID: id}
	if found {
		t = stored
	}
	t.Deleted = true
	t.UpdatedAt = now
	if err := saveSnapshot(ctx, s.deps.Store, domain.KindCorporation, id, t, now); err != nil {
		return domain.Corporation{}, err
	}
	return t, nil
}
