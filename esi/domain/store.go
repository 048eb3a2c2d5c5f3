package domain

import (
	"context"
	"time"
)

// SharedStore é o KV atômico compartilhado entre chamadores e processos
// (contador da janela de rate limit, orçamento de erros, pausa, cache).
//
// Nenhum estado mutável compartilhado do gateway vive em variáveis do processo:
// tudo passa por aqui, o que permite várias instâncias coordenarem sem lock distribuído.
type SharedStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Get retorna ok=false quando a chave não existe (ou expirou).
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set grava o valor; ttl <= 0 significa sem expiração.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Chaves fixas do store compartilhado.
const (
	KeyRateWindowPrefix = "esi:rate:"
	KeyErrorRemain      = "error_limit_remain"
	KeyErrorReset       = "error_limit_reset"
	KeyFetcherPaused    = "fetcher_paused"
	KeyUpstreamOffline  = "upstream_offline"
	KeyCachePrefix      = "esi:cache:"
)

type Kind string

const (
	KindCharacter   Kind = "character"
	KindCorporation Kind = "corporation"
	KindAlliance    Kind = "alliance"
)

// Kinds lista todos os tipos de entidade, na ordem usada pelo guard de conflito.
var Kinds = []Kind{KindCharacter, KindCorporation, KindAlliance}

// Record é a forma persistida de um snapshot.
// O store é dono de UpdatedAt (ver Touch); Data é o snapshot serializado em JSON.
type Record struct {
	Data      []byte
	UpdatedAt time.Time
}

// EntityStore é o contrato de leitura/escrita do motor de persistência.
// Schema e índices ficam fora daqui: só importa findOne/upsert por id e tipo.
type EntityStore interface {
	FindOne(ctx context.Context, kind Kind, id int64) (Record, bool, error)
	// Upsert é idempotente por (kind, id). Último escritor vence.
	Upsert(ctx context.Context, kind Kind, id int64, rec Record) error
	// Touch atualiza apenas o marcador de frescor, sem reescrever o snapshot.
	// Retorna ok=false se o registro não existir.
	Touch(ctx context.Context, kind Kind, id int64, at time.Time) (bool, error)
}
