package domain

import (
	"errors"
	"fmt"
)

// Sentinels. Os tipos de erro abaixo casam com eles via errors.Is.
var (
	ErrConflict    = errors.New("id claimed by another entity kind")
	ErrNotFound    = errors.New("entity not found")
	ErrForbidden   = errors.New("entity access forbidden")
	ErrDeleted     = errors.New("entity deleted upstream")
	ErrValidation  = errors.New("malformed upstream payload")
	ErrPersistence = errors.New("entity store write failed")

	// ErrUpstreamRateLimited e o orçamento baixo são absorvidos pelo gateway (sleep/retry).
	// Só aparece para o chamador se a cadeia de rejeições estourar o limite de retries.
	ErrUpstreamRateLimited = errors.New("upstream hard rate limit (420)")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamOffline é devolvido depois da espera fixa quando o flag de offline está setado.
	ErrUpstreamOffline = errors.New("upstream offline")
)

// ConflictError: o id já pertence a outro tipo de entidade.
// É detectado antes de qualquer I/O de rede.
type ConflictError struct {
	ID        int64
	Kind      Kind
	ClaimedBy Kind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d: id already belongs to a %s", e.Kind, e.ID, e.ClaimedBy)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type NotFoundError struct {
	Kind Kind
	ID   int64
	Err  error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d: not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return e.Err }
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type ForbiddenError struct {
	Kind Kind
	ID   int64
	Err  error
}

func (e *ForbiddenError) Error() string { return fmt.Sprintf("%s %d: forbidden", e.Kind, e.ID) }
func (e *ForbiddenError) Unwrap() error { return e.Err }
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError: payload do upstream veio malformado (ex.: sem nome).
type ValidationError struct {
	Kind   Kind
	ID     int64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %d: invalid upstream payload: %s", e.Kind, e.ID, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError é sempre propagado: perder uma escrita em silêncio
// corromperia o modelo de frescor (updatedAt).
type PersistenceError struct {
	Kind Kind
	ID   int64
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %d: %s: %v", e.Kind, e.ID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// AsUpstreamError é um atalho para errors.As com *UpstreamError.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsHardRejection indica uma rejeição 420 do upstream.
func IsHardRejection(err error) bool {
	ue, ok := AsUpstreamError(err)
	return ok && ue.Status == StatusHardRejection
}
