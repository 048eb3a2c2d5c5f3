package infra

import (
	"context"
	"testing"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/stretchr/testify/require"
)

func TestMemoryEntityStore_UpsertFindTouch(t *testing.T) {
	s := NewMemoryEntityStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok, err := s.FindOne(ctx, domain.KindCharacter, 1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Touch(ctx, domain.KindCharacter, 1, t0)
	require.NoError(t, err)
	require.False(t, ok, "touch on missing record")

	require.NoError(t, s.Upsert(ctx, domain.KindCharacter, 1, domain.Record{Data: []byte(`{"name":"a"}`), UpdatedAt: t0}))
	ok, err = s.Touch(ctx, domain.KindCharacter, 1, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	rec, ok, err := s.FindOne(ctx, domain.KindCharacter, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"name":"a"}`, string(rec.Data))
	require.Equal(t, t0.Add(time.Hour), rec.UpdatedAt)
	require.Equal(t, 1, s.Upserts())

	// tipos diferentes não se enxergam
	_, ok, err = s.FindOne(ctx, domain.KindCorporation, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryEntityStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryEntityStore()
	ctx := context.Background()
	data := []byte(`{"name":"a"}`)

	require.NoError(t, s.Upsert(ctx, domain.KindAlliance, 7, domain.Record{Data: data}))
	data[2] = 'X'

	rec, _, err := s.FindOne(ctx, domain.KindAlliance, 7)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"a"}`, string(rec.Data))
}
