package application

import (
	"context"
	"testing"
	"time"

	"killboard-gateway/esi/domain"
	"killboard-gateway/esi/infra"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		name      string
		remaining int
		reset     int
		want      time.Duration
	}{
		{"full budget", 100, 60, 0},
		{"above full", 150, 60, 0},
		{"empty budget", 0, 60, 24 * time.Second},
		{"negative treated as empty", -5, 60, 24 * time.Second},
		{"ceiling wins", 10, 5, 5 * time.Second},
		{"zero reset", 50, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BackoffDelay(tc.remaining, tc.reset))
		})
	}
}

func TestBackoffDelay_StaysWithinFloorAndCeiling(t *testing.T) {
	for remaining := range 100 {
		d := BackoffDelay(remaining, 60)
		require.GreaterOrEqual(t, d, 100*time.Millisecond, "remaining=%d", remaining)
		require.LessOrEqual(t, d, 60*time.Second, "remaining=%d", remaining)
	}
	d := BackoffDelay(10, 5)
	require.GreaterOrEqual(t, d, 100*time.Millisecond)
	require.LessOrEqual(t, d, 5*time.Second)
}

func TestBackoffDelay_MonotonicInRemaining(t *testing.T) {
	prev := BackoffDelay(0, 60)
	for remaining := 1; remaining <= 100; remaining++ {
		d := BackoffDelay(remaining, 60)
		require.LessOrEqual(t, d, prev, "remaining=%d", remaining)
		prev = d
	}
}

func TestErrorBudget_Throttle_NoReadingDoesNotSleep(t *testing.T) {
	clock := newFakeClock()
	b := ErrorBudget{Store: infra.NewMemoryStore(infra.WithNow(clock.Now)), Clock: clock}

	require.NoError(t, b.Throttle(context.Background()))
	require.Empty(t, clock.Sleeps())
}

func TestErrorBudget_UpdateThenThrottle(t *testing.T) {
	clock := newFakeClock()
	b := ErrorBudget{Store: infra.NewMemoryStore(infra.WithNow(clock.Now)), Clock: clock}
	ctx := context.Background()

	b.Update(ctx, domain.ResponseMeta{HasErrorLimit: true, ErrorRemain: 10, ErrorReset: 5})
	require.NoError(t, b.Throttle(ctx))
	require.Equal(t, []time.Duration{5 * time.Second}, clock.Sleeps())
}

func TestErrorBudget_Throttle_MissingResetDefaultsTo60s(t *testing.T) {
	clock := newFakeClock()
	store := infra.NewMemoryStore(infra.WithNow(clock.Now))
	b := ErrorBudget{Store: store, Clock: clock}
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyErrorRemain, "0", time.Minute))
	require.NoError(t, b.Throttle(ctx))
	require.Equal(t, []time.Duration{24 * time.Second}, clock.Sleeps())
}

func TestErrorBudget_Update_ReadingsExpire(t *testing.T) {
	clock := newFakeClock()
	store := infra.NewMemoryStore(infra.WithNow(clock.Now))
	b := ErrorBudget{Store: store, Clock: clock}
	ctx := context.Background()

	b.Update(ctx, domain.ResponseMeta{HasErrorLimit: true, ErrorRemain: 20, ErrorReset: 30})
	clock.Advance(300 * time.Second)

	require.NoError(t, b.Throttle(ctx))
	require.Empty(t, clock.Sleeps())
}

func TestErrorBudget_Update_IgnoresResponsesWithoutHeaders(t *testing.T) {
	clock := newFakeClock()
	store := infra.NewMemoryStore(infra.WithNow(clock.Now))
	b := ErrorBudget{Store: store, Clock: clock}

	b.Update(context.Background(), domain.ResponseMeta{Status: 200})
	require.Zero(t, store.Len())
}
