package domain

import (
	"errors"
	"fmt"
)

// Erros de domínio. São resultados esperados e devem ser tratados com errors.Is.
var (
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrAccessBlocked       = errors.New("access blocked, too many verification attempts")
	ErrValidation          = errors.New("validation error")
	ErrInvalidPolicy       = errors.New("invalid rate limit policy")
	ErrUnknownPolicy       = errors.New("unknown rate limit policy")
	ErrBlockNotFound       = errors.New("ip block not found")

	// ErrStoreUnavailable cobre qualquer falha ou timeout do armazenamento
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError carrega o contexto de uma falha de infraestrutura
type StoreError struct {
	Op    string
	Token string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s (token=%s): %v", e.Op, e.Token, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// ValidationError aponta o campo inválido
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PolicyError indica uma política mal configurada
type PolicyError struct {
	Policy string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %q: %s", e.Policy, e.Reason)
}

func (e *PolicyError) Is(target error) bool { return target == ErrInvalidPolicy }
