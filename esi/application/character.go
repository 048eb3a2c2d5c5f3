package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"killboard-gateway/esi/domain"
)

// CharacterService resolve snapshots de personagens.
//
// Diferente de corporações e alianças, prefere disponibilidade a frescor:
// se a busca falhar por motivo que não seja not found/forbidden e existir
// snapshot guardado, devolve o snapshot velho.
type CharacterService struct {
	deps  Deps
	cfg   serviceConfig
	corps *CorporationService
}

func NewCharacterService(deps Deps, corps *CorporationService, opts ...ServiceOption) *CharacterService {
	return &CharacterService{
		deps:  deps,
		cfg:   newServiceConfig(domain.CharacterMaxAge, deps, opts),
		corps: corps,
	}
}

// Get devolve o snapshot guardado se ele tiver menos que maxAge (<= 0 usa o padrão de 24h).
func (s *CharacterService) Get(ctx context.Context, id int64, maxAge time.Duration) (domain.Character, error) {
	if maxAge <= 0 {
		maxAge = s.cfg.maxAge
	}
	return s.resolve(ctx, id, maxAge, false)
}

// Refresh ignora o frescor e busca de novo (usado pelos consumidores de jobs).
func (s *CharacterService) Refresh(ctx context.Context, id int64) (domain.Character, error) {
	return s.resolve(ctx, id, 0, true)
}

// GetMany resolve em sequência e pula (logando) os ids que falharem.
func (s *CharacterService) GetMany(ctx context.Context, ids []int64, maxAge time.Duration) []domain.Character {
	out := make([]domain.Character, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id, maxAge)
		if err != nil {
			s.cfg.log.Warn("character resolution failed", "character_id", id, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *CharacterService) resolve(ctx context.Context, id int64, maxAge time.Duration, force bool) (domain.Character, error) {
	if err := checkConflict(ctx, s.deps.Store, domain.KindCharacter, id); err != nil {
		return domain.Character{}, err
	}

	stored, updatedAt, found, err := loadSnapshot[domain.Character](ctx, s.deps.Store, domain.KindCharacter, id)
	if err != nil {
		return domain.Character{}, err
	}
	stored.UpdatedAt = updatedAt

	now := s.deps.Gateway.Clock().Now()
	if found && !force && isFresh(updatedAt, now, maxAge) {
		return stored, nil
	}

	payload, err := Do(ctx, s.deps.Gateway, "characters", []any{id}, func(ctx context.Context) (domain.CharacterPayload, domain.ResponseMeta, error) {
		return s.deps.Upstream.GetCharacter(ctx, id)
	})
	switch {
	case err == nil:
		if payload.Name == "" || payload.CorporationID == 0 {
			err = &domain.ValidationError{Kind: domain.KindCharacter, ID: id, Reason: "missing name or corporation_id"}
		}
	case errors.Is(err, domain.ErrDeleted):
		return s.tombstone(ctx, id, stored, found, now)
	case errors.Is(err, domain.ErrNotFound):
		return domain.Character{}, &domain.NotFoundError{Kind: domain.KindCharacter, ID: id, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return domain.Character{}, &domain.ForbiddenError{Kind: domain.KindCharacter, ID: id, Err: err}
	case errors.Is(err, domain.ErrValidation):
		err = &domain.ValidationError{Kind: domain.KindCharacter, ID: id, Reason: err.Error()}
	default:
		err = fmt.Errorf("character %d: fetch: %w", id, err)
	}
	if err != nil {
		// payload inválido também cai no snapshot velho
		if found {
			s.cfg.log.Warn("character fetch failed, serving stale snapshot",
				"character_id", id, "updated_at", updatedAt, "error", err)
			return stored, nil
		}
		return domain.Character{}, err
	}

	c := domain.Character{
		ID:             id,
		Name:           payload.Name,
		CorporationID:  payload.CorporationID,
		AllianceID:     payload.AllianceID,
		FactionID:      payload.FactionID,
		SecurityStatus: payload.SecurityStatus,
		Birthday:       payload.Birthday,
		Gender:         payload.Gender,
		RaceID:         payload.RaceID,
		BloodlineID:    payload.BloodlineID,
		Title:          payload.Title,
		Deleted:        found && stored.Deleted,
		UpdatedAt:      now,
	}
	s.derive(ctx, &c)

	changed := !found || stored.CorporationID != c.CorporationID || stored.AllianceID != c.AllianceID
	var appended bool
	c.History, appended = appendHistory(stored.History, changed, domain.HistoryEntry{
		CorporationID: c.CorporationID,
		AllianceID:    c.AllianceID,
		StartDate:     now,
	})

	if err := saveSnapshot(ctx, s.deps.Store, domain.KindCharacter, id, c, now); err != nil {
		return domain.Character{}, err
	}
	if appended {
		job := domain.NewJob(domain.JobCharacterHistory, id, domain.PriorityHistory)
		if err := enqueue(ctx, s.deps.Queue, s.deps.Gateway.metrics, job); err != nil {
			s.cfg.log.Warn("character history backfill not scheduled", "character_id", id, "error", err)
		}
	}
	return c, nil
}

// derive resolve a corporação pelo mesmo contrato (Get) para obter
// os nomes de corporação, aliança e facção.
func (s *CharacterService) derive(ctx context.Context, c *domain.Character) {
	if s.corps != nil {
		corp, err := s.corps.Get(ctx, c.CorporationID, 0)
		if err != nil {
			s.cfg.log.Warn("corporation lookup failed", "character_id", c.ID, "corporation_id", c.CorporationID, "error", err)
		} else {
			c.CorporationName = corp.Name
			if c.AllianceID == 0 {
				c.AllianceID = corp.AllianceID
			}
			if c.AllianceID == corp.AllianceID {
				c.AllianceName = corp.AllianceName
			}
			if c.FactionID == 0 {
				c.FactionID = corp.FactionID
			}
			if c.FactionID == corp.FactionID {
				c.FactionName = corp.FactionName
			}
		}
	}
	if c.FactionID != 0 && c.FactionName == "" {
		c.FactionName = s.deps.Factions.Name(ctx, c.FactionID)
	}
}

// tombstone preserva nome e histórico conhecidos e marca deleted.
// É idempotente: não mexe no histórico.
func (s *CharacterService) tombstone(ctx context.Context, id int64, stored domain.Character, found bool, now time.Time) (domain.Character, error) {
	t := domain.Character{ID: id}
	if found {
		t = stored
	}
	t.Deleted = true
	t.UpdatedAt = now
	if err := saveSnapshot(ctx, s.deps.Store, domain.KindCharacter, id, t, now); err != nil {
		return domain.Character{}, err
	}
	return t, nil
}
