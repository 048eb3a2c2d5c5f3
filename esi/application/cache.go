package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"killboard-gateway/esi/domain"
)

type cacheEntry struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
}

// CacheKey serializa (operação, argumentos) de forma estável.
func CacheKey(op string, args []any) string {
	if len(args) == 0 {
		return domain.KeyCachePrefix + op
	}
	b, err := json.Marshal(args)
	if err != nil {
		return domain.KeyCachePrefix + op + ":" + fmt.Sprint(args...)
	}
	return domain.KeyCachePrefix + op + ":" + string(b)
}

// ResponseCache é um cache-aside best-effort sobre o SharedStore.
// Erros de leitura/escrita viram miss/no-op e nunca falham o chamador.
type ResponseCache struct {
	Store domain.SharedStore
	Clock domain.Clock
	Log   *slog.Logger
}

// Lookup decodifica a entrada em dst. Hit exige agora < ExpiresAt.
func (c ResponseCache) Lookup(ctx context.Context, key string, dst any) bool {
	if c.Store == nil {
		return false
	}
	raw, ok, err := c.Store.Get(ctx, key)
	if err != nil {
		loggerOrDefault(c.Log).Warn("cache: read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}

	var ent cacheEntry
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		loggerOrDefault(c.Log).Warn("cache: bad entry", "key", key, "error", err)
		return false
	}
	if !clockOrDefault(c.Clock).Now().Before(ent.ExpiresAt) {
		return false
	}
	if err := json.Unmarshal(ent.Payload, dst); err != nil {
		loggerOrDefault(c.Log).Warn("cache: bad payload", "key", key, "error", err)
		return false
	}
	return true
}

// Put grava só quando a dica de frescor existe e está no futuro.
// TTL = expires - agora, com piso de 1s.
func (c ResponseCache) Put(ctx context.Context, key string, value any, expires time.Time) {
	if c.Store == nil || expires.IsZero() {
		return
	}
	ttl := expires.Sub(clockOrDefault(c.Clock).Now())
	if ttl <= 0 {
		return
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	payload, err := json.Marshal(value)
	if err != nil {
		loggerOrDefault(c.Log).Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	b, err := json.Marshal(cacheEntry{ExpiresAt: expires, Payload: payload})
	if err != nil {
		loggerOrDefault(c.Log).Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.Store.Set(ctx, key, string(b), ttl); err != nil {
		loggerOrDefault(c.Log).Warn("cache: write failed", "key", key, "error", err)
	}
}
