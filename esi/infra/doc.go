// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStore / MemoryStore: SharedStore (contador de janela, orçamento, pausa, cache)
//   - PostgresEntityStore / MemoryEntityStore: persistência de snapshots
//   - NatsJobQueue / MemoryJobQueue: produção de jobs assíncronos
//   - PrometheusMetrics: métricas do gateway
package infra
