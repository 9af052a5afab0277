package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
)

type ChainErrorKind int

const (
	// ChainErrTransient is a network or rpc failure, the call can be retried.
	ChainErrTransient ChainErrorKind = iota
	// ChainErrInsufficientFunds means custody cannot cover amount and fees.
	ChainErrInsufficientFunds
	// ChainErrMalformed means the address, amount or asset is invalid.
	ChainErrMalformed
	// ChainErrAlreadySpent means the inputs or the claim were already used.
	ChainErrAlreadySpent
)

func (k ChainErrorKind) String() string {
	switch k {
	case ChainErrTransient:
		return "transient"
	case ChainErrInsufficientFunds:
		return "insufficient_funds"
	case ChainErrMalformed:
		return "malformed"
	case ChainErrAlreadySpent:
		return "already_spent"
	default:
		return "unknown"
	}
}

type ChainError struct {
	Chain domain.ChainKind
	Kind  ChainErrorKind
	Err   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s %s error: %s", e.Chain, e.Kind, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

func NewChainError(chain domain.ChainKind, kind ChainErrorKind, err error) *ChainError {
	return &ChainError{Chain: chain, Kind: kind, Err: err}
}

func ChainErrorf(chain domain.ChainKind, kind ChainErrorKind, format string, args ...any) *ChainError {
	return NewChainError(chain, kind, fmt.Errorf(format, args...))
}

// ChainErrKind returns the kind of a *ChainError in err's chain, errors
// without one are treated as transient.
func ChainErrKind(err error) ChainErrorKind {
	var e *ChainError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ChainErrTransient
}

type TxStatus int

const (
	TxNotFound TxStatus = iota
	// TxInMempool is known to the network but not yet final.
	TxInMempool
	TxConfirmed
	// TxRejected landed on chain but failed to execute.
	TxRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxNotFound:
		return "not_found"
	case TxInMempool:
		return "mempool"
	case TxConfirmed:
		return "confirmed"
	case TxRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type SendRequest struct {
	// SourceTag selects the custody key funds are sent from.
	SourceTag   string
	Destination string
	Asset       domain.Asset
	Amount      uint64
	// OnSigned, if set, is called with the transaction id after signing and
	// before broadcasting. An error aborts the send.
	OnSigned func(txid string) error
}

// ChainAdapter is the only component holding a chain's custody capability.
// It knows nothing about orders.
type ChainAdapter interface {
	Chain() domain.ChainKind

	ValidateAddress(address string) error

	DeriveCustodyAddress(ctx context.Context, tag string) (string, error)

	// VerifyIncomingTransaction returns false if the transaction is unknown,
	// not final or pays less than amount of asset to address. It returns an
	// error only if the answer could not be determined.
	VerifyIncomingTransaction(
		ctx context.Context, txid, address string, asset domain.Asset, amount uint64,
	) (bool, error)

	// SendFunds pays exactly Amount to Destination, network fees are paid by
	// the custody pool.
	SendFunds(ctx context.Context, req SendRequest) (string, error)

	GetBalance(ctx context.Context, address string, asset domain.Asset) (uint64, error)

	GetTransactionStatus(ctx context.Context, txid string) (TxStatus, error)
}
