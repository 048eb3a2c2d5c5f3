package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"killboard-gateway/esi/domain"
)

// DefaultMaxSplitAttempt: um sub-lote que falha com attempt acima disso
// não é mais dividido e cada id vira um job individual.
const DefaultMaxSplitAttempt = 3

// AffiliationReport soma os resultados de todos os sub-lotes.
type AffiliationReport struct {
	Checked   int // ids que voltaram numa resposta de sucesso
	Unchanged int // só tiveram o updatedAt renovado
	Changed   int // afiliação mudou
	Queued    int // jobs de resolução enfileirados por mudança
	Fallback  int // ids enfileirados individualmente
	Calls     int // chamadas de afiliação feitas
	Splits    int // lotes divididos ao meio
	Skipped   int // ids não processados porque a worklist foi interrompida
}

func (r AffiliationReport) String() string {
	return fmt.Sprintf("checked=%d unchanged=%d changed=%d queued=%d fallback=%d calls=%d splits=%d skipped=%d",
		r.Checked, r.Unchanged, r.Changed, r.Queued, r.Fallback, r.Calls, r.Splits, r.Skipped)
}

// AffiliationResolver resolve afiliações em lote com uma única chamada ao upstream,
// dividindo o lote ao meio quando ela falha (um id ruim rejeita o lote inteiro).
type AffiliationResolver struct {
	deps            Deps
	log             *slog.Logger
	maxSplitAttempt int
}

type AffiliationOption func(*AffiliationResolver)

func WithMaxSplitAttempt(n int) AffiliationOption {
	return func(r *AffiliationResolver) { r.maxSplitAttempt = n }
}

func NewAffiliationResolver(deps Deps, opts ...AffiliationOption) *AffiliationResolver {
	r := &AffiliationResolver{deps: deps, log: loggerOrDefault(deps.Log), maxSplitAttempt: DefaultMaxSplitAttempt}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type subBatch struct {
	targets []domain.AffiliationTarget
	attempt int
}

// Resolve processa uma worklist explícita de sub-lotes, cada um com seu attempt,
// e junta o resultado de todos no relatório. Nenhum id é perdido: estourado o
// limite de divisões, cada id do sub-lote vira um job de resolução individual.
//
// Cancelamento de contexto e upstream offline interrompem a worklist. Os ids
// restantes não são tocados nem enfileirados: ficam contados em Skipped e,
// ainda velhos, voltam na próxima seleção por frescor.
func (r *AffiliationResolver) Resolve(ctx context.Context, targets []domain.AffiliationTarget) (AffiliationReport, error) {
	var (
		report AffiliationReport
		errs   []error
	)
	work := []subBatch{{targets: targets}}

	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if len(b.targets) == 0 {
			continue
		}

		ids := make([]int64, len(b.targets))
		for i, t := range b.targets {
			ids[i] = t.CharacterID
		}

		report.Calls++
		res, err := Do(ctx, r.deps.Gateway, "characters_affiliation", []any{ids}, func(ctx context.Context) ([]domain.AffiliationPayload, domain.ResponseMeta, error) {
			return r.deps.Upstream.PostAffiliation(ctx, ids)
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrUpstreamOffline) {
				report.Skipped = len(b.targets)
				for _, rest := range work {
					report.Skipped += len(rest.targets)
				}
				r.log.Warn("affiliation worklist aborted", "skipped", report.Skipped, "error", err)
				return report, errors.Join(append(errs, err)...)
			}
			if b.attempt > r.maxSplitAttempt || len(b.targets) == 1 {
				r.log.Warn("affiliation batch failed, falling back to individual jobs",
					"size", len(b.targets), "attempt", b.attempt, "error", err)
				for _, t := range b.targets {
					if err := r.enqueue(ctx, domain.JobResolveCharacter, t.CharacterID, domain.PriorityFallback); err != nil {
						errs = append(errs, err)
						continue
					}
					report.Fallback++
				}
				continue
			}

			report.Splits++
			r.deps.Gateway.metrics.BatchSplit()
			mid := len(b.targets) / 2
			work = append(work,
				subBatch{targets: b.targets[mid:], attempt: b.attempt + 1},
				subBatch{targets: b.targets[:mid], attempt: b.attempt + 1},
			)
			continue
		}

		errs = append(errs, r.apply(ctx, b.targets, res, &report)...)
	}
	return report, errors.Join(errs...)
}

// apply compara cada afiliação devolvida com o valor guardado. Mudou: enfileira
// o personagem e a nova corporação/aliança. Não mudou: só renova o updatedAt,
// para ele não ser reselecionado por uma janela inteira.
func (r *AffiliationResolver) apply(ctx context.Context, targets []domain.AffiliationTarget, res []domain.AffiliationPayload, report *AffiliationReport) []error {
	byID := make(map[int64]domain.AffiliationPayload, len(res))
	for _, a := range res {
		byID[a.CharacterID] = a
	}
	now := r.deps.Gateway.Clock().Now()

	var errs []error
	for _, t := range targets {
		a, ok := byID[t.CharacterID]
		if !ok {
			// id ausente da resposta: resolve individualmente
			if err := r.enqueue(ctx, domain.JobResolveCharacter, t.CharacterID, domain.PriorityFallback); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Fallback++
			continue
		}
		report.Checked++

		if a.CorporationID == t.CorporationID && a.AllianceID == t.AllianceID {
			if _, err := r.deps.Store.Touch(ctx, domain.KindCharacter, t.CharacterID, now); err != nil {
				errs = append(errs, &domain.PersistenceError{Kind: domain.KindCharacter, ID: t.CharacterID, Op: "touch", Err: err})
				continue
			}
			report.Unchanged++
			continue
		}

		report.Changed++
		jobs := []domain.Job{
			domain.NewJob(domain.JobResolveCharacter, t.CharacterID, domain.PriorityResolve),
			domain.NewJob(domain.JobResolveCorporation, a.CorporationID, domain.PriorityResolve),
		}
		if a.AllianceID != 0 {
			jobs = append(jobs, domain.NewJob(domain.JobResolveAlliance, a.AllianceID, domain.PriorityResolve))
		}
		for _, job := range jobs {
			if err := enqueue(ctx, r.deps.Queue, r.deps.Gateway.metrics, job); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Queued++
		}
	}
	return errs
}

func (r *AffiliationResolver) enqueue(ctx context.Context, t domain.JobType, id int64, priority int) error {
	return enqueue(ctx, r.deps.Queue, r.deps.Gateway.metrics, domain.NewJob(t, id, priority))
}
