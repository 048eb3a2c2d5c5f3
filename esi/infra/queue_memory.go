package infra

import (
	"context"
	"sync"

	"killboard-gateway/esi/domain"
)

// MemoryJobQueue só registra os jobs. Útil para testes e para o modo dry-run do binário.
type MemoryJobQueue struct {
	mu   sync.Mutex
	jobs []domain.Job

	// Err, se setado, é devolvido por Enqueue (simula broker fora do ar).
	Err error
}

func NewMemoryJobQueue() *MemoryJobQueue { return &MemoryJobQueue{} }

func (q *MemoryJobQueue) Enqueue(_ context.Context, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryJobQueue) Jobs() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Job(nil), q.jobs...)
}

// ByType filtra os jobs registrados por tipo.
func (q *MemoryJobQueue) ByType(t domain.JobType) []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Job
	for _, j := range q.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}
