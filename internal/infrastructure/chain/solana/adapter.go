package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/ArkLabsHQ/escrowd/utils"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

// Base fee for a single signature transaction.
const lamportsPerSignature = 5000

type Config struct {
	RpcUrl string
	// Commitment is one of processed, confirmed or finalized.
	Commitment     string
	Signer         ports.SignerService
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

type adapter struct {
	ledger         ledger
	signer         ports.SignerService
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

func NewAdapter(cfg Config) (ports.ChainAdapter, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("missing rpc url")
	}
	commitment, err := parseCommitment(cfg.Commitment)
	if err != nil {
		return nil, err
	}
	return newAdapter(newRPCLedger(cfg.RpcUrl, commitment), commitment, cfg)
}

func newAdapter(l ledger, commitment rpc.CommitmentType, cfg Config) (*adapter, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = time.Minute
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &adapter{
		ledger:         l,
		signer:         cfg.Signer,
		commitment:     commitment,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
	}, nil
}

func (a *adapter) Chain() domain.ChainKind {
	return domain.ChainSolana
}

func (a *adapter) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return a.malformed(fmt.Errorf("invalid address %s: %w", address, err))
	}
	return nil
}

func (a *adapter) DeriveCustodyAddress(ctx context.Context, tag string) (string, error) {
	key, err := a.custody(ctx, tag)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

func (a *adapter) VerifyIncomingTransaction(
	ctx context.Context, txid, address string, asset domain.Asset, amount uint64,
) (bool, error) {
	mint, err := a.checkAsset(asset)
	if err != nil {
		return false, err
	}
	recipient, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false, a.malformed(err)
	}
	sig, err := solana.SignatureFromBase58(txid)
	if err != nil {
		log.Debugf("invalid solana signature %s: %s", txid, err)
		return false, nil
	}

	credits, err := a.ledger.TransactionCredits(ctx, sig)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return false, nil
		}
		return false, a.transient(err)
	}
	if credits.failed {
		log.Debugf("solana tx %s failed on chain", txid)
		return false, nil
	}

	var credited uint64
	if asset.IsNative() {
		credited = credits.lamports[recipient]
	} else {
		credited = credits.tokens[tokenOwner{recipient, mint}]
	}
	if credited < amount {
		log.Debugf("solana tx %s credits %d to %s, expected %d", txid, credited, address, amount)
		return false, nil
	}
	return true, nil
}

func (a *adapter) SendFunds(ctx context.Context, req ports.SendRequest) (string, error) {
	mint, err := a.checkAsset(req.Asset)
	if err != nil {
		return "", err
	}
	if req.Amount == 0 {
		return "", ports.ChainErrorf(domain.ChainSolana, ports.ChainErrMalformed, "amount must be positive")
	}
	dest, err := solana.PublicKeyFromBase58(req.Destination)
	if err != nil {
		return "", a.malformed(err)
	}
	custody, err := a.custody(ctx, req.SourceTag)
	if err != nil {
		return "", err
	}

	var instructions []solana.Instruction
	if req.Asset.IsNative() {
		instructions, err = a.nativeTransfer(ctx, custody, dest, req.Amount)
	} else {
		instructions, err = a.tokenTransfer(ctx, custody, dest, mint, req.Asset.Decimals, req.Amount)
	}
	if err != nil {
		return "", err
	}

	blockhash, err := a.ledger.LatestBlockhash(ctx)
	if err != nil {
		return "", a.transient(err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(custody))
	if err != nil {
		return "", a.malformed(err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", a.malformed(err)
	}
	sigBytes, err := a.signer.Sign(ctx, ports.SchemeEd25519, req.SourceTag, msg)
	if err != nil {
		return "", a.transient(fmt.Errorf("failed to sign transaction: %w", err))
	}
	var sig solana.Signature
	if len(sigBytes) != len(sig) {
		return "", a.malformed(fmt.Errorf("signer returned %d bytes signature", len(sigBytes)))
	}
	copy(sig[:], sigBytes)
	tx.Signatures = []solana.Signature{sig}
	txid := sig.String()

	if req.OnSigned != nil {
		if err := req.OnSigned(txid); err != nil {
			return "", err
		}
	}

	log.Debugf("submitting solana tx %s paying %d %s to %s", txid, req.Amount, req.Asset, dest)
	if err := a.ledger.SendTransaction(ctx, tx); err != nil {
		return "", err
	}
	if err := a.waitForCommitment(ctx, sig); err != nil {
		return "", err
	}
	return txid, nil
}

func (a *adapter) GetBalance(ctx context.Context, address string, asset domain.Asset) (uint64, error) {
	mint, err := a.checkAsset(asset)
	if err != nil {
		return 0, err
	}
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, a.malformed(err)
	}

	if asset.IsNative() {
		balance, err := a.ledger.Balance(ctx, owner)
		if err != nil {
			return 0, a.transient(err)
		}
		return balance, nil
	}

	tokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, a.malformed(err)
	}
	exists, err := a.ledger.AccountExists(ctx, tokenAccount)
	if err != nil {
		return 0, a.transient(err)
	}
	if !exists {
		return 0, nil
	}
	balance, err := a.ledger.TokenBalance(ctx, tokenAccount)
	if err != nil {
		return 0, a.transient(err)
	}
	return balance, nil
}

func (a *adapter) GetTransactionStatus(ctx context.Context, txid string) (ports.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txid)
	if err != nil {
		return ports.TxNotFound, a.malformed(err)
	}
	status, err := a.ledger.SignatureStatus(ctx, sig)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return ports.TxNotFound, nil
		}
		return ports.TxNotFound, a.transient(err)
	}
	switch {
	case status.failed:
		return ports.TxRejected, nil
	case reached(status.commitment, a.commitment):
		return ports.TxConfirmed, nil
	default:
		return ports.TxInMempool, nil
	}
}

func (a *adapter) nativeTransfer(
	ctx context.Context, custody, dest solana.PublicKey, amount uint64,
) ([]solana.Instruction, error) {
	balance, err := a.ledger.Balance(ctx, custody)
	if err != nil {
		return nil, a.transient(err)
	}
	if balance < amount+lamportsPerSignature {
		return nil, ports.ChainErrorf(
			domain.ChainSolana, ports.ChainErrInsufficientFunds,
			"custody balance %d cannot cover %d lamports plus fees", balance, amount,
		)
	}
	return []solana.Instruction{
		system.NewTransferInstruction(amount, custody, dest).Build(),
	}, nil
}

func (a *adapter) tokenTransfer(
	ctx context.Context, custody, dest, mint solana.PublicKey, decimals uint8, amount uint64,
) ([]solana.Instruction, error) {
	source, _, err := solana.FindAssociatedTokenAddress(custody, mint)
	if err != nil {
		return nil, a.malformed(err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(dest, mint)
	if err != nil {
		return nil, a.malformed(err)
	}

	exists, err := a.ledger.AccountExists(ctx, source)
	if err != nil {
		return nil, a.transient(err)
	}
	var balance uint64
	if exists {
		if balance, err = a.ledger.TokenBalance(ctx, source); err != nil {
			return nil, a.transient(err)
		}
	}
	if balance < amount {
		return nil, ports.ChainErrorf(
			domain.ChainSolana, ports.ChainErrInsufficientFunds,
			"custody token balance %d cannot cover %d", balance, amount,
		)
	}

	instructions := make([]solana.Instruction, 0, 2)
	exists, err = a.ledger.AccountExists(ctx, destination)
	if err != nil {
		return nil, a.transient(err)
	}
	if !exists {
		instructions = append(instructions, createAccountIdempotent(custody, dest, mint))
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amount, decimals, source, mint, destination, custody, nil,
	).Build())
	return instructions, nil
}

// createAccountIdempotent creates the recipient token account unless it
// already exists. The program's CreateIdempotent instruction takes the same
// accounts as Create and is selected by a single byte of data.
func createAccountIdempotent(payer, wallet, mint solana.PublicKey) solana.Instruction {
	create := associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
	return solana.NewInstruction(associatedtokenaccount.ProgramID, create.Accounts(), []byte{1})
}

func (a *adapter) waitForCommitment(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, a.confirmTimeout)
	defer cancel()

	var failed bool
	err := utils.Retry(ctx, a.pollInterval, func(ctx context.Context) (bool, error) {
		status, err := a.ledger.SignatureStatus(ctx, sig)
		if err != nil {
			if errors.Is(err, errNotFound) {
				return false, nil
			}
			log.WithError(err).Debugf("failed to get status of solana tx %s, retrying", sig)
			return false, nil
		}
		if status.failed {
			failed = true
			return true, nil
		}
		return reached(status.commitment, a.commitment), nil
	})
	if err != nil {
		return a.transient(fmt.Errorf("tx %s not %s: %w", sig, a.commitment, err))
	}
	if failed {
		return a.malformed(fmt.Errorf("tx %s failed on chain", sig))
	}
	return nil
}

func (a *adapter) custody(ctx context.Context, tag string) (solana.PublicKey, error) {
	pubkey, err := a.signer.PublicKey(ctx, ports.SchemeEd25519, tag)
	if err != nil {
		return solana.PublicKey{}, a.transient(fmt.Errorf("failed to get custody key: %w", err))
	}
	if len(pubkey) != len(solana.PublicKey{}) {
		return solana.PublicKey{}, a.malformed(fmt.Errorf("invalid custody key length %d", len(pubkey)))
	}
	return solana.PublicKeyFromBytes(pubkey), nil
}

// checkAsset returns the mint of a token asset, or the zero key for SOL.
func (a *adapter) checkAsset(asset domain.Asset) (solana.PublicKey, error) {
	if asset.Chain != domain.ChainSolana {
		return solana.PublicKey{}, ports.ChainErrorf(
			domain.ChainSolana, ports.ChainErrMalformed, "unsupported asset %s", asset,
		)
	}
	if asset.IsNative() {
		return solana.PublicKey{}, nil
	}
	mint, err := solana.PublicKeyFromBase58(asset.Mint)
	if err != nil {
		return solana.PublicKey{}, a.malformed(fmt.Errorf("invalid mint %s: %w", asset.Mint, err))
	}
	return mint, nil
}

func (a *adapter) malformed(err error) error {
	return ports.NewChainError(domain.ChainSolana, ports.ChainErrMalformed, err)
}

func (a *adapter) transient(err error) error {
	return ports.NewChainError(domain.ChainSolana, ports.ChainErrTransient, err)
}

func parseCommitment(commitment string) (rpc.CommitmentType, error) {
	switch commitment {
	case "", string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("unknown solana commitment %s", commitment)
	}
}

func commitmentLevel(status string) int {
	switch status {
	case string(rpc.CommitmentProcessed):
		return 1
	case string(rpc.CommitmentConfirmed):
		return 2
	case string(rpc.CommitmentFinalized):
		return 3
	default:
		return 0
	}
}

func reached(status rpc.ConfirmationStatusType, target rpc.CommitmentType) bool {
	return commitmentLevel(string(status)) >= commitmentLevel(string(target))
}
