package application

import (
	"context"
	"log/slog"

	"killboard-gateway/esi/domain"
)

// FactionDirectory resolve id de facção para nome.
// A lista inteira passa pelo gateway, então fica em cache enquanto o Expires do upstream valer.
type FactionDirectory struct {
	gw  *Gateway
	up  domain.Upstream
	log *slog.Logger
}

func NewFactionDirectory(gw *Gateway, up domain.Upstream, log *slog.Logger) *FactionDirectory {
	return &FactionDirectory{gw: gw, up: up, log: loggerOrDefault(log)}
}

// Name devolve "" para id 0, facção desconhecida ou falha de busca (logada).
func (d *FactionDirectory) Name(ctx context.Context, id int64) string {
	if d == nil || id == 0 {
		return ""
	}
	factions, err := Do(ctx, d.gw, "universe_factions", nil, func(ctx context.Context) ([]domain.FactionPayload, domain.ResponseMeta, error) {
		return d.up.GetFactions(ctx)
	})
	if err != nil {
		d.log.Warn("faction lookup failed", "faction_id", id, "error", err)
		return ""
	}
	for _, f := range factions {
		if f.FactionID == id {
			return f.Name
		}
	}
	return ""
}
