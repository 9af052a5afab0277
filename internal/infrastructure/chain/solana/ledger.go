package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var errNotFound = errors.New("not found")

type tokenOwner struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// txCredits lists what a landed transaction credited, by account for
// lamports and by owner and mint for tokens.
type txCredits struct {
	failed   bool
	lamports map[solana.PublicKey]uint64
	tokens   map[tokenOwner]uint64
}

type signatureStatus struct {
	failed     bool
	commitment rpc.ConfirmationStatusType
}

// ledger is the subset of the Solana JSON-RPC the adapter relies on.
type ledger interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) error
	// SignatureStatus returns errNotFound if the cluster does not know sig.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*signatureStatus, error)
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	// TransactionCredits returns errNotFound if sig has not landed at the
	// ledger's commitment.
	TransactionCredits(ctx context.Context, sig solana.Signature) (*txCredits, error)
}

type rpcLedger struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func newRPCLedger(url string, commitment rpc.CommitmentType) *rpcLedger {
	return &rpcLedger{client: rpc.New(url), commitment: commitment}
}

func (l *rpcLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	return res.Value.Blockhash, nil
}

func (l *rpcLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) error {
	_, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return ports.NewChainError(domain.ChainSolana, ports.ChainErrTransient, err)
	}

	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "alreadyprocessed"),
		strings.Contains(msg, "already been processed"):
		return nil
	case strings.Contains(msg, "blockhash not found"),
		strings.Contains(msg, "node is behind"):
		return ports.NewChainError(domain.ChainSolana, ports.ChainErrTransient, err)
	case strings.Contains(msg, "insufficient"):
		return ports.NewChainError(domain.ChainSolana, ports.ChainErrInsufficientFunds, err)
	default:
		return ports.NewChainError(domain.ChainSolana, ports.ChainErrMalformed, err)
	}
}

func (l *rpcLedger) SignatureStatus(
	ctx context.Context, sig solana.Signature,
) (*signatureStatus, error) {
	res, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return nil, errNotFound
	}
	status := res.Value[0]
	return &signatureStatus{
		failed:     status.Err != nil,
		commitment: status.ConfirmationStatus,
	}, nil
}

func (l *rpcLedger) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := l.client.GetBalance(ctx, account, l.commitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (l *rpcLedger) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	res, err := l.client.GetTokenAccountBalance(ctx, tokenAccount, l.commitment)
	if err != nil {
		return 0, err
	}
	if res.Value == nil {
		return 0, nil
	}
	return strconv.ParseUint(res.Value.Amount, 10, 64)
}

func (l *rpcLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := l.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: l.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *rpcLedger) TransactionCredits(
	ctx context.Context, sig solana.Signature,
) (*txCredits, error) {
	// getTransaction does not accept the processed commitment.
	commitment := l.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}
	maxVersion := uint64(0)
	res, err := l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, errNotFound
		}
		return nil, err
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, errNotFound
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}
	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	credits := &txCredits{
		failed:   res.Meta.Err != nil,
		lamports: make(map[solana.PublicKey]uint64),
		tokens:   make(map[tokenOwner]uint64),
	}

	meta := res.Meta
	for i, key := range keys {
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			break
		}
		if meta.PostBalances[i] > meta.PreBalances[i] {
			credits.lamports[key] += meta.PostBalances[i] - meta.PreBalances[i]
		}
	}

	pre := make(map[uint16]uint64, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		amount, err := tokenAmount(b)
		if err != nil {
			return nil, err
		}
		pre[b.AccountIndex] = amount
	}
	for _, b := range meta.PostTokenBalances {
		if b.Owner == nil {
			continue
		}
		amount, err := tokenAmount(b)
		if err != nil {
			return nil, err
		}
		if amount > pre[b.AccountIndex] {
			credits.tokens[tokenOwner{*b.Owner, b.Mint}] += amount - pre[b.AccountIndex]
		}
	}
	return credits, nil
}

func tokenAmount(b rpc.TokenBalance) (uint64, error) {
	if b.UiTokenAmount == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", b.UiTokenAmount.Amount, err)
	}
	return amount, nil
}
