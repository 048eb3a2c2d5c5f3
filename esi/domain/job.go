package domain

import (
	"context"

	"github.com/google/uuid"
)

type JobType string

const (
	JobResolveCharacter   JobType = "resolve_character"
	JobResolveCorporation JobType = "resolve_corporation"
	JobResolveAlliance    JobType = "resolve_alliance"
	JobCharacterHistory   JobType = "character_history"
	JobCorporationHistory JobType = "corporation_history"
)

// Prioridades (menor = mais urgente).
const (
	PriorityResolve  = 1
	PriorityHistory  = 2
	PriorityFallback = 3
)

const DefaultMaxAttempts = 5

type JobPayload struct {
	ID int64 `json:"id"`
}

// Job é produzido por este núcleo e consumido por um worker fora do processo.
// O ID serve de chave de deduplicação no broker.
type Job struct {
	ID          string     `json:"job_id"`
	Type        JobType    `json:"type"`
	Payload     JobPayload `json:"payload"`
	Priority    int        `json:"priority"`
	MaxAttempts int        `json:"max_attempts"`
}

func NewJob(t JobType, id int64, priority int) Job {
	return Job{
		ID:          uuid.NewString(),
		Type:        t,
		Payload:     JobPayload{ID: id},
		Priority:    priority,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// JobQueue só produz jobs; não executa nada.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}
