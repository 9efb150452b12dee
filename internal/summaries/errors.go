package summaries

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
)

// Kind classifies failures independently of the collaborator that produced them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindDecryption
	KindUpstream
	KindRateLimited
)

// String returns a stable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindDecryption:
		return "decryption"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var (
	// ErrNotFound is returned by record stores when a lookup matches nothing.
	ErrNotFound = errors.New("summaries: not found")
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("summaries: validation failed")
	// ErrUpstream marks a failure in an external collaborator.
	ErrUpstream = errors.New("summaries: upstream failure")
)

// ServiceError carries a stable operation code and failure kind alongside the cause.
type ServiceError struct {
	code string
	kind Kind
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the failure classification.
func (e *ServiceError) Kind() Kind {
	return e.kind
}

func newServiceError(operation, reason string, kind Kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}

// KindOf resolves the failure kind for any error produced by this package or its collaborators.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, fieldcrypt.ErrDecryption):
		return KindDecryption
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}

// CodeOf returns the ServiceError code, or an empty string for foreign errors.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.code
	}
	return ""
}
