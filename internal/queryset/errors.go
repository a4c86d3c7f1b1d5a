package queryset

import (
	"errors"
	"fmt"

	"github.com/roach88/querykit/internal/queryir"
)

// QueryError represents an error raised while compiling or executing a
// query set.
//
// Construction and transformation never fail; every QueryError comes from
// the execution call that triggered it.
type QueryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the record type the query targeted.
	Entity string

	// Field is the offending field path, when there is one.
	Field string

	// Err is the underlying backend error, if any.
	Err error
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeUnknownField indicates a path that does not resolve against
	// the record descriptor.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeBackendExecution wraps whatever the storage layer reported.
	ErrCodeBackendExecution ErrorCode = "BACKEND_EXECUTION"

	// ErrCodeNoMatch indicates One found no record.
	ErrCodeNoMatch ErrorCode = "NO_MATCH"

	// ErrCodeMultipleMatches indicates One found more than one record.
	ErrCodeMultipleMatches ErrorCode = "MULTIPLE_MATCHES"

	// ErrCodeInvalidRange indicates a backend rejected the offset/limit pair.
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"

	// ErrCodeAmbiguousOrder indicates Last was called without sort keys.
	ErrCodeAmbiguousOrder ErrorCode = "AMBIGUOUS_ORDER"

	// ErrCodeUnsupported indicates an operator or option the backend cannot
	// express.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Sentinels for errors.Is. A QueryError matches the sentinel with the same
// code regardless of its other fields.
var (
	ErrUnknownField     = &QueryError{Code: ErrCodeUnknownField, Message: "unknown field"}
	ErrBackendExecution = &QueryError{Code: ErrCodeBackendExecution, Message: "backend execution failed"}
	ErrNoMatch          = &QueryError{Code: ErrCodeNoMatch, Message: "no record matched"}
	ErrMultipleMatches  = &QueryError{Code: ErrCodeMultipleMatches, Message: "more than one record matched"}
	ErrInvalidRange     = &QueryError{Code: ErrCodeInvalidRange, Message: "invalid range"}
	ErrAmbiguousOrder   = &QueryError{Code: ErrCodeAmbiguousOrder, Message: "ambiguous order"}
	ErrUnsupported      = &QueryError{Code: ErrCodeUnsupported, Message: "unsupported"}
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Entity != "" && e.Field != "":
		msg += fmt.Sprintf(" (entity=%s, field=%s)", e.Entity, e.Field)
	case e.Entity != "":
		msg += fmt.Sprintf(" (entity=%s)", e.Entity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying backend error.
func (e *QueryError) Unwrap() error { return e.Err }

// Is matches any QueryError with the same code.
func (e *QueryError) Is(target error) bool {
	var t *QueryError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first QueryError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code, true
	}
	return "", false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsUnknownField returns true if err is an unknown field error.
// Uses errors.As to handle wrapped errors.
func IsUnknownField(err error) bool { return hasCode(err, ErrCodeUnknownField) }

// IsBackendError returns true if err wraps a backend failure.
func IsBackendError(err error) bool { return hasCode(err, ErrCodeBackendExecution) }

func IsNoMatch(err error) bool         { return hasCode(err, ErrCodeNoMatch) }
func IsMultipleMatches(err error) bool { return hasCode(err, ErrCodeMultipleMatches) }
func IsInvalidRange(err error) bool    { return hasCode(err, ErrCodeInvalidRange) }
func IsAmbiguousOrder(err error) bool  { return hasCode(err, ErrCodeAmbiguousOrder) }
func IsUnsupported(err error) bool     { return hasCode(err, ErrCodeUnsupported) }

// NewUnknownFieldError creates a QueryError for a path that does not resolve.
func NewUnknownFieldError(entity string, field queryir.Path) *QueryError {
	return &QueryError{
		Code:    ErrCodeUnknownField,
		Message: fmt.Sprintf("field %q does not exist", field),
		Entity:  entity,
		Field:   string(field),
	}
}

// NewBackendError wraps a storage failure raised during op.
func NewBackendError(entity, op string, err error) *QueryError {
	return &QueryError{
		Code:    ErrCodeBackendExecution,
		Message: op + " failed",
		Entity:  entity,
		Err:     err,
	}
}

func NewNoMatchError(entity string) *QueryError {
	return &QueryError{
		Code:    ErrCodeNoMatch,
		Message: "expected exactly one record, found none",
		Entity:  entity,
	}
}

func NewMultipleMatchesError(entity string) *QueryError {
	return &QueryError{
		Code:    ErrCodeMultipleMatches,
		Message: "expected exactly one record, found several",
		Entity:  entity,
	}
}

// NewInvalidRangeError creates a QueryError for a rejected window.
func NewInvalidRangeError(entity string, r queryir.Range) *QueryError {
	limit := "none"
	if r.HasLimit {
		limit = fmt.Sprint(r.Limit)
	}
	return &QueryError{
		Code:    ErrCodeInvalidRange,
		Message: fmt.Sprintf("offset %d, limit %s", r.Offset, limit),
		Entity:  entity,
	}
}

func NewAmbiguousOrderError(entity string) *QueryError {
	return &QueryError{
		Code:    ErrCodeAmbiguousOrder,
		Message: "last record is undefined without sort keys",
		Entity:  entity,
	}
}

// NewUnsupportedError creates a QueryError for a construct a backend
// cannot express.
func NewUnsupportedError(entity string, field queryir.Path, what string) *QueryError {
	return &QueryError{
		Code:    ErrCodeUnsupported,
		Message: what,
		Entity:  entity,
		Field:   string(field),
	}
}
