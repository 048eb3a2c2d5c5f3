// Package esi fornece o adapter HTTP (net/http) para a API de dados do jogo (ESI).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: gateway (rate limit, orçamento de erros, pausa, cache) e serviços de resolução
//   - infra: implementações concretas (Redis, Postgres, NATS, Prometheus, memória)
//   - esi (este pacote): cliente HTTP que implementa domain.Upstream
//
// Fluxo de uma chamada:
//
//  1. O serviço de resolução chama application.Do com a operação
//  2. O gateway checa offline/pausa/cache, depois rate limit e orçamento de erros
//  3. Client faz o request (com um limiter local de x/time/rate como suavizador)
//  4. Os headers Expires e X-ESI-Error-Limit-* voltam como domain.ResponseMeta
//
// Status 404/403/420/503 viram *domain.UpstreamError, que casa com os sentinels do domínio.
package esi
