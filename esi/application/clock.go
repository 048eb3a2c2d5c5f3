package application

import (
	"context"
	"log/slog"
	"time"

	"killboard-gateway/esi/domain"
)

// systemClock é o relógio padrão quando nenhum é injetado.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock devolve o relógio de parede (time.Now / timer).
func SystemClock() domain.Clock { return systemClock{} }

func clockOrDefault(c domain.Clock) domain.Clock {
	if c == nil {
		return systemClock{}
	}
	return c
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func metricsOrDefault(m domain.Metrics) domain.Metrics {
	if m == nil {
		return domain.NopMetrics{}
	}
	return m
}
