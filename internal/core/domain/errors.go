package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindValidation covers bad input, unknown orders and wrong status.
	// Nothing was changed.
	KindValidation ErrorKind = iota
	// KindVerificationFailed means a claimed deposit does not check out
	// against the chain.
	KindVerificationFailed
	// KindExternalUnavailable means an indexer, rpc node or the signer could
	// not be reached. The same call can be retried later.
	KindExternalUnavailable
	// KindCustodyExecution means an outbound transfer failed.
	KindCustodyExecution
	// KindPartialSettlement means one settlement leg went out and the other
	// did not. Must be resolved by an operator.
	KindPartialSettlement
	// KindInvariantViolation is a should-be-impossible state.
	KindInvariantViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindVerificationFailed:
		return "verification_failed"
	case KindExternalUnavailable:
		return "external_unavailable"
	case KindCustodyExecution:
		return "custody_execution"
	case KindPartialSettlement:
		return "partial_settlement"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

var ErrOrderNotFound = &Error{Kind: KindValidation, Msg: "order not found"}

func NewError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...any) *Error {
	return NewError(KindValidation, nil, format, args...)
}

// KindOf returns the kind of the first *Error found in err's chain. Errors
// that carry no kind are reported as invariant violations.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInvariantViolation
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
