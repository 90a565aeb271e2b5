// Package errkind implements the typed error taxonomy the engine surfaces
// to callers, generalized from the teacher's business-error dispatcher.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification with an HTTP-status-equivalent and
// a transient flag the Transaction Runner uses to decide whether to retry.
type Kind string

const (
	KindInsufficientBalance    Kind = "INSUFFICIENT_BALANCE"
	KindAccountFrozen          Kind = "ACCOUNT_FROZEN"
	KindAccountClosed          Kind = "ACCOUNT_CLOSED"
	KindLimitExceeded          Kind = "LIMIT_EXCEEDED"
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidArgument        Kind = "INVALID_ARGUMENT"
	KindDuplicate              Kind = "DUPLICATE"
	KindConflict               Kind = "CONFLICT"
	KindHoldExpired            Kind = "HOLD_EXPIRED"
	KindRateLimited            Kind = "RATE_LIMITED"
	KindOptimisticLockConflict Kind = "OPTIMISTIC_LOCK_CONFLICT"
	KindChainIntegrityViolation Kind = "CHAIN_INTEGRITY_VIOLATION"
	KindInternal               Kind = "INTERNAL"
)

// statusOf mirrors spec.md's taxonomy table (kind, status, transient).
var statusOf = map[Kind]int{
	KindInsufficientBalance:     400,
	KindAccountFrozen:           403,
	KindAccountClosed:           403,
	KindLimitExceeded:           429,
	KindNotFound:                404,
	KindInvalidArgument:         400,
	KindDuplicate:               409,
	KindConflict:                409,
	KindHoldExpired:             410,
	KindRateLimited:             429,
	KindOptimisticLockConflict:  409,
	KindChainIntegrityViolation: 500,
	KindInternal:                500,
}

var transientOf = map[Kind]bool{
	KindInsufficientBalance:     true,
	KindAccountFrozen:           true,
	KindAccountClosed:           false,
	KindLimitExceeded:           true,
	KindNotFound:                true,
	KindInvalidArgument:         false,
	KindDuplicate:               false,
	KindConflict:                false,
	KindHoldExpired:             true,
	KindRateLimited:             true,
	KindOptimisticLockConflict:  true,
	KindChainIntegrityViolation: false,
	KindInternal:                false,
}

// Error is the typed error every engine-visible failure takes the shape of.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Details   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP-status-equivalent for the error's kind.
func (e *Error) Status() int { return statusOf[e.Kind] }

// Transient reports whether a caller may retry this failure, typically with
// a fresh idempotency key.
func (e *Error) Transient() bool { return transientOf[e.Kind] }

// DocumentationURL derives a stable doc link from the error code.
func (e *Error) DocumentationURL() string {
	if e.Code == "" {
		return ""
	}
	return "https://docs.summa.dev/errors/" + e.Code
}

// New builds a typed Error of the given kind.
func New(kind Kind, code, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

// Wrap builds a typed Error of the given kind, preserving cause for Unwrap.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTransient reports whether err is (or wraps) an *errkind.Error whose
// kind is transient. Any other error, including a raw driver error,
// reports false; internal/retry.IsTransient adds the raw SQLSTATE check.
func IsTransient(err error) bool {
	if e, ok := As(err); ok {
		return e.Transient()
	}
	return false
}

// Sentinel business-error causes, analogous to the teacher's
// common/constant sentinel vars — these are the inputs to Classify, never
// surfaced to callers directly.
var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrAccountFrozen       = errors.New("account is frozen")
	ErrAccountClosed       = errors.New("account is closed")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrHoldNotFound        = errors.New("hold not found")
	ErrDuplicateReference  = errors.New("reference already posted")
	ErrSelfTransfer        = errors.New("source and destination are identical")
	ErrHoldNotInflight     = errors.New("hold is not inflight")
	ErrHoldExpired         = errors.New("hold has expired")
	ErrHoldAmountExceeded  = errors.New("committed amount exceeds hold amount")
	ErrVersionConflict     = errors.New("account version conflict")
	ErrChainBroken         = errors.New("hash chain integrity violation")
	ErrRefundExceedsOriginal = errors.New("refund amount exceeds remaining refundable amount")
)

// Classify maps a sentinel business-error cause to a typed Error, mirroring
// the teacher's ValidateBusinessError dispatch-by-errors.Is switch.
func Classify(cause error, details map[string]any) error {
	switch {
	case errors.Is(cause, ErrInsufficientBalance):
		return Wrap(KindInsufficientBalance, "SUMMA-1001", ErrInsufficientBalance.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrAccountFrozen):
		return Wrap(KindAccountFrozen, "SUMMA-1002", ErrAccountFrozen.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrAccountClosed):
		return Wrap(KindAccountClosed, "SUMMA-1003", ErrAccountClosed.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrAccountNotFound), errors.Is(cause, ErrTransactionNotFound), errors.Is(cause, ErrHoldNotFound):
		return Wrap(KindNotFound, "SUMMA-1004", cause.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrDuplicateReference):
		return Wrap(KindDuplicate, "SUMMA-1005", ErrDuplicateReference.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrSelfTransfer):
		return Wrap(KindInvalidArgument, "SUMMA-1006", ErrSelfTransfer.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrHoldNotInflight):
		return Wrap(KindConflict, "SUMMA-1007", ErrHoldNotInflight.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrHoldExpired):
		return Wrap(KindHoldExpired, "SUMMA-1008", ErrHoldExpired.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrHoldAmountExceeded):
		return Wrap(KindInvalidArgument, "SUMMA-1009", ErrHoldAmountExceeded.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrVersionConflict):
		return Wrap(KindOptimisticLockConflict, "SUMMA-1010", ErrVersionConflict.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrChainBroken):
		return Wrap(KindChainIntegrityViolation, "SUMMA-1011", ErrChainBroken.Error(), cause).withDetails(details)
	case errors.Is(cause, ErrRefundExceedsOriginal):
		return Wrap(KindInvalidArgument, "SUMMA-1012", ErrRefundExceedsOriginal.Error(), cause).withDetails(details)
	default:
		return Wrap(KindInternal, "SUMMA-1000", "internal error", cause).withDetails(details)
	}
}

func (e *Error) withDetails(d map[string]any) *Error {
	e.Details = d
	return e
}
