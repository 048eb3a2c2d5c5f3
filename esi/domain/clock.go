package domain

import (
	"context"
	"time"
)

// Clock abstrai tempo para os pontos de suspensão (rate limit, orçamento, pausa).
//
// Sleep retorna ctx.Err() se o contexto encerrar antes do fim da espera.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
