package domain

import "time"

// HistoryEntry é um registro de afiliação observada.
// Para personagens: corporação (e aliança) a partir de StartDate.
// Para corporações: aliança a partir de StartDate.
type HistoryEntry struct {
	CorporationID int64     `json:"corporation_id,omitempty"`
	AllianceID    int64     `json:"alliance_id,omitempty"`
	StartDate     time.Time `json:"start_date"`
}

type Character struct {
	ID              int64     `json:"character_id"`
	Name            string    `json:"name"`
	CorporationID   int64     `json:"corporation_id"`
	CorporationName string    `json:"corporation_name"`
	AllianceID      int64     `json:"alliance_id"`
	AllianceName    string    `json:"alliance_name"`
	FactionID       int64     `json:"faction_id"`
	FactionName     string    `json:"faction_name"`
	SecurityStatus  float64   `json:"security_status"`
	Birthday        time.Time `json:"birthday"`
	Gender          string    `json:"gender,omitempty"`
	RaceID          int64     `json:"race_id,omitempty"`
	BloodlineID     int64     `json:"bloodline_id,omitempty"`
	Title           string    `json:"title,omitempty"`

	History   []HistoryEntry `json:"history"`
	Deleted   bool           `json:"deleted,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Corporation struct {
	ID            int64     `json:"corporation_id"`
	Name          string    `json:"name"`
	Ticker        string    `json:"ticker"`
	MemberCount   int64     `json:"member_count"`
	CEOID         int64     `json:"ceo_id"`
	CreatorID     int64     `json:"creator_id"`
	AllianceID    int64     `json:"alliance_id"`
	AllianceName  string    `json:"alliance_name"`
	FactionID     int64     `json:"faction_id"`
	FactionName   string    `json:"faction_name"`
	HomeStationID int64     `json:"home_station_id,omitempty"`
	DateFounded   time.Time `json:"date_founded"`
	TaxRate       float64   `json:"tax_rate"`
	URL           string    `json:"url,omitempty"`

	History   []HistoryEntry `json:"history"`
	Deleted   bool           `json:"deleted,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Alliance não tem pai a resolver nem histórico de afiliação.
type Alliance struct {
	ID                    int64     `json:"alliance_id"`
	Name                  string    `json:"name"`
	Ticker                string    `json:"ticker"`
	CreatorID             int64     `json:"creator_id"`
	CreatorCorporationID  int64     `json:"creator_corporation_id"`
	ExecutorCorporationID int64     `json:"executor_corporation_id"`
	FactionID             int64     `json:"faction_id"`
	FactionName           string    `json:"faction_name"`
	DateFounded           time.Time `json:"date_founded"`

	Deleted   bool      `json:"deleted,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Janelas de frescor padrão por tipo.
const (
	CharacterMaxAge   = 24 * time.Hour
	CorporationMaxAge = 168 * time.Hour
	AllianceMaxAge    = 720 * time.Hour
)

// AffiliationTarget é o que o resolvedor em lote conhece de cada personagem.
type AffiliationTarget struct {
	CharacterID   int64
	CorporationID int64
	AllianceID    int64
}
