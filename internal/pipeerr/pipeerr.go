// Package pipeerr defines the failure kinds a pipeline run can end with.
package pipeerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindFetch            Kind = "fetch_error"
	KindExtraction       Kind = "extraction_error"
	KindBudgetExceeded   Kind = "prompt_budget_exceeded"
	KindModelUnavailable Kind = "model_unavailable"
	KindModelTimeout     Kind = "model_timeout"
	KindInvalidOutput    Kind = "invalid_output"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// Error is a structured pipeline failure. Detail is safe to show to API callers.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	// Transient marks network-layer failures that may be retried once.
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && (e.Detail == "" || e.Detail != e.Err.Error()) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error, detail string) *Error {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func Fetch(op string, err error, format string, args ...any) *Error {
	return newErr(KindFetch, op, err, fmt.Sprintf(format, args...))
}

func Extraction(op string, err error) *Error {
	return newErr(KindExtraction, op, err, "")
}

func BudgetExceeded(op string, need, budget int) *Error {
	return newErr(KindBudgetExceeded, op, nil, fmt.Sprintf("instructions need %d chars, budget is %d", need, budget))
}

func ModelUnavailable(op string, err error, format string, args ...any) *Error {
	return newErr(KindModelUnavailable, op, err, fmt.Sprintf(format, args...))
}

func ModelTimeout(op string, err error, format string, args ...any) *Error {
	return newErr(KindModelTimeout, op, err, fmt.Sprintf(format, args...))
}

func InvalidOutput(op string, err error) *Error {
	return newErr(KindInvalidOutput, op, err, "")
}

func Internal(op string, err error, format string, args ...any) *Error {
	return newErr(KindInternal, op, err, fmt.Sprintf(format, args...))
}

func Canceled(op string, err error) *Error {
	return newErr(KindCanceled, op, err, "request canceled")
}

// KindOf returns the kind of the first *Error in err's chain. Bare context
// errors map to KindCanceled / KindModelTimeout; anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindModelTimeout
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// IsTransient reports whether err is a retryable network-layer failure.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient
}

// DetailOf returns the human-readable detail for err.
func DetailOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Detail != "" {
		return pe.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps a failure to the status code the API layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindFetch:
		return http.StatusBadRequest
	case KindExtraction:
		return http.StatusUnprocessableEntity
	case KindModelUnavailable:
		return http.StatusServiceUnavailable
	case KindModelTimeout:
		return http.StatusGatewayTimeout
	case KindInvalidOutput:
		return http.StatusBadGateway
	case KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
