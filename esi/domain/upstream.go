package domain

import (
	"context"
	"fmt"
	"time"
)

// Status relevantes do upstream. Mantidos aqui para o domínio não importar net/http.
const (
	StatusForbidden          = 403
	StatusNotFound           = 404
	StatusHardRejection      = 420 // "error limited": pausa todos os chamadores
	StatusServiceUnavailable = 503
	StatusGatewayTimeout     = 504
)

// ResponseMeta são os metadados de resposta que o gateway consome.
type ResponseMeta struct {
	Status int
	// Expires é a dica de frescor (header Expires). Zero quando ausente.
	Expires time.Time

	// HasErrorLimit indica se os headers X-ESI-Error-Limit-* vieram na resposta.
	HasErrorLimit bool
	ErrorRemain   int
	ErrorReset    int

	// RetryAfter vem do header Retry-After (0 quando ausente).
	RetryAfter time.Duration
}

// Upstream é a API de dados do jogo. Cada operação é envolvida individualmente
// pelo gateway (ver application.Do); não existe interceptação dinâmica.
type Upstream interface {
	GetCharacter(ctx context.Context, id int64) (CharacterPayload, ResponseMeta, error)
	GetCorporation(ctx context.Context, id int64) (CorporationPayload, ResponseMeta, error)
	GetAlliance(ctx context.Context, id int64) (AlliancePayload, ResponseMeta, error)
	GetFactions(ctx context.Context) ([]FactionPayload, ResponseMeta, error)
	PostAffiliation(ctx context.Context, ids []int64) ([]AffiliationPayload, ResponseMeta, error)
}

type CharacterPayload struct {
	Name           string    `json:"name"`
	CorporationID  int64     `json:"corporation_id"`
	AllianceID     int64     `json:"alliance_id,omitempty"`
	FactionID      int64     `json:"faction_id,omitempty"`
	Birthday       time.Time `json:"birthday"`
	Gender         string    `json:"gender,omitempty"`
	RaceID         int64     `json:"race_id,omitempty"`
	BloodlineID    int64     `json:"bloodline_id,omitempty"`
	SecurityStatus float64   `json:"security_status,omitempty"`
	Description    string    `json:"description,omitempty"`
	Title          string    `json:"title,omitempty"`
}

type CorporationPayload struct {
	Name          string    `json:"name"`
	Ticker        string    `json:"ticker"`
	MemberCount   int64     `json:"member_count"`
	CEOID         int64     `json:"ceo_id"`
	CreatorID     int64     `json:"creator_id"`
	AllianceID    int64     `json:"alliance_id,omitempty"`
	FactionID     int64     `json:"faction_id,omitempty"`
	HomeStationID int64     `json:"home_station_id,omitempty"`
	DateFounded   time.Time `json:"date_founded"`
	TaxRate       float64   `json:"tax_rate"`
	URL           string    `json:"url,omitempty"`
	Description   string    `json:"description,omitempty"`
}

type AlliancePayload struct {
	Name                  string    `json:"name"`
	Ticker                string    `json:"ticker"`
	CreatorID             int64     `json:"creator_id"`
	CreatorCorporationID  int64     `json:"creator_corporation_id"`
	ExecutorCorporationID int64     `json:"executor_corporation_id,omitempty"`
	FactionID             int64     `json:"faction_id,omitempty"`
	DateFounded           time.Time `json:"date_founded"`
}

type FactionPayload struct {
	FactionID     int64  `json:"faction_id"`
	Name          string `json:"name"`
	CorporationID int64  `json:"corporation_id,omitempty"`
}

type AffiliationPayload struct {
	CharacterID   int64 `json:"character_id"`
	CorporationID int64 `json:"corporation_id"`
	AllianceID    int64 `json:"alliance_id,omitempty"`
	FactionID     int64 `json:"faction_id,omitempty"`
}

// UpstreamError representa uma resposta de erro do upstream.
// Unwrap devolve o sentinel correspondente ao status, então errors.Is funciona
// com ErrNotFound, ErrForbidden, ErrDeleted, ErrUpstreamRateLimited e ErrUpstreamUnavailable.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
	// Deleted indica um 404 cujo corpo reporta entidade apagada.
	Deleted bool
	Meta    ResponseMeta
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: status %d", e.Op, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	switch {
	case e.Status == StatusNotFound && e.Deleted:
		return ErrDeleted
	case e.Status == StatusNotFound:
		return ErrNotFound
	case e.Status == StatusForbidden:
		return ErrForbidden
	case e.Status == StatusHardRejection:
		return ErrUpstreamRateLimited
	case e.Status == StatusServiceUnavailable, e.Status == StatusGatewayTimeout:
		return ErrUpstreamUnavailable
	}
	return nil
}

// MetaFromError extrai os metadados de um *UpstreamError, se houver.
func MetaFromError(err error) (ResponseMeta, bool) {
	ue, ok := AsUpstreamError(err)
	if !ok {
		return ResponseMeta{}, false
	}
	return ue.Meta, true
}
