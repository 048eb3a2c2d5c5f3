// Package application contém os casos de uso do gateway ESI e da resolução de entidades.
//
// Ele depende apenas do pacote domain e não conhece HTTP, Redis, Postgres ou NATS.
// Ex.: Do envolve cada operação do upstream com checagem de offline/pausa, cache,
// rate limit e orçamento de erros; CharacterService.Get devolve um snapshot fresco
// ou busca de novo quando ele passa da janela de frescor.
package application
