// Package domain define contratos e tipos de domínio do gateway ESI e da
// resolução de entidades (personagens, corporações e alianças).
//
// Este pacote não depende de net/http, Redis, Postgres nem NATS.
// A intenção é permitir testes de unidade puros e desacoplar as regras
// (rate limit, orçamento de erros, pausa, cache, resolução) dos detalhes de infraestrutura.
package domain
