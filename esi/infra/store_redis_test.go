package infra

import (
	"context"
	"testing"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, opts ...RedisStoreOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, opts...), mr
}

func TestRedisStore_IncrAndExpire(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	n, err := s.Incr(ctx, "esi:rate:1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = s.Incr(ctx, "esi:rate:1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, s.Expire(ctx, "esi:rate:1", time.Second))
	mr.FastForward(time.Second)
	require.False(t, mr.Exists("esi:rate:1"))
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	s, _ := newRedisStore(t)

	v, ok, err := s.Get(context.Background(), domain.KeyFetcherPaused)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, v)
}

func TestRedisStore_SetWithTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, domain.KeyErrorRemain, "42", 300*time.Second))
	v, ok, err := s.Get(ctx, domain.KeyErrorRemain)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", v)
	require.Equal(t, 300*time.Second, mr.TTL(domain.KeyErrorRemain))

	mr.FastForward(300 * time.Second)
	_, ok, err = s.Get(ctx, domain.KeyErrorRemain)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	s, mr := newRedisStore(t, WithKeyPrefix("killboard:"))

	require.NoError(t, s.Set(context.Background(), domain.KeyUpstreamOffline, "true", time.Minute))
	require.True(t, mr.Exists("killboard:upstream_offline"))
	require.False(t, mr.Exists(domain.KeyUpstreamOffline))
}

func TestRedisStore_ServerDownSurfacesError(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Incr(context.Background(), "k")
	require.Error(t, err)
}
