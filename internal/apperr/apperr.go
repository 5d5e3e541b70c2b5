// Package apperr defines the domain error taxonomy shared by every component.
//
// An Error carries a machine-readable Code; each Code belongs to exactly one
// Kind, and each Kind maps to one HTTP status at the transport edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies errors for callers that only care about the category.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindValidation          Kind = "validation"
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindStateConflict       Kind = "state_conflict"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindOverflow            Kind = "overflow"
	KindInvalidTransfer     Kind = "invalid_transfer"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "unknown"

	// Validation
	CodeInvalidArgument Code = "invalid_argument"
	CodeMissingField    Code = "missing_field"
	CodeInvalidIdentity Code = "invalid_identity"
	CodeInvalidRole     Code = "invalid_role"

	CodeUnauthorized Code = "unauthorized"

	CodeProposalNotFound     Code = "proposal_not_found"
	CodeAccountNotRegistered Code = "account_not_registered"

	// State conflicts
	CodeAlreadyFinalized  Code = "already_finalized"
	CodeAlreadyExecuted   Code = "already_executed"
	CodeDuplicateVote     Code = "duplicate_vote"
	CodeNotAccepted       Code = "not_accepted"
	CodeAlreadyRegistered Code = "already_registered"

	// Balances
	CodeInsufficientBalance  Code = "insufficient_balance"
	CodePoolExhausted        Code = "pool_exhausted"
	CodeStorageDepositTooLow Code = "storage_deposit_too_low"

	// Arithmetic limits
	CodeBalanceOverflow Code = "balance_overflow"
	CodeSupplyOverflow  Code = "supply_overflow"

	CodeInvalidTransfer Code = "invalid_transfer"
)

// Kind returns the taxonomy bucket for the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidArgument, CodeMissingField, CodeInvalidIdentity, CodeInvalidRole:
		return KindValidation
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeProposalNotFound, CodeAccountNotRegistered:
		return KindNotFound
	case CodeAlreadyFinalized, CodeAlreadyExecuted, CodeDuplicateVote, CodeNotAccepted, CodeAlreadyRegistered:
		return KindStateConflict
	case CodeInsufficientBalance, CodePoolExhausted, CodeStorageDepositTooLow:
		return KindInsufficientBalance
	case CodeBalanceOverflow, CodeSupplyOverflow:
		return KindOverflow
	case CodeInvalidTransfer:
		return KindInvalidTransfer
	default:
		return KindUnknown
	}
}

// HTTPStatus maps the code's kind to a response status.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation, KindInvalidTransfer:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that keeps cause in the chain.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so callers can compare against
// the package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrAlreadyExecuted = New(CodeAlreadyExecuted, "proposal already executed")
	ErrNotAccepted     = New(CodeNotAccepted, "proposal not accepted")
)

// GetCode extracts the code from any error, CodeUnknown if it is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf returns the taxonomy bucket of err.
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
