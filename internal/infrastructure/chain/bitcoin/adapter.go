package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/esplora"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Network          string
	Explorer         esplora.Service
	Signer           ports.SignerService
	MinConfirmations uint32
	FeeTarget        uint32
}

type adapter struct {
	network          *chaincfg.Params
	explorer         esplora.Service
	signer           ports.SignerService
	minConfirmations uint32
	feeTarget        uint32

	// Sends spending the same custody key are serialized so they never
	// select the same coins.
	sendMtx   sync.Mutex
	sendLocks map[string]*sync.Mutex
}

func NewAdapter(cfg Config) (ports.ChainAdapter, error) {
	network, err := networkFromString(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.Explorer == nil {
		return nil, fmt.Errorf("missing explorer")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	feeTarget := cfg.FeeTarget
	if feeTarget == 0 {
		feeTarget = 6
	}
	return &adapter{
		network:          network,
		explorer:         cfg.Explorer,
		signer:           cfg.Signer,
		minConfirmations: cfg.MinConfirmations,
		feeTarget:        feeTarget,
		sendLocks:        make(map[string]*sync.Mutex),
	}, nil
}

func (a *adapter) Chain() domain.ChainKind {
	return domain.ChainBitcoin
}

func (a *adapter) ValidateAddress(address string) error {
	if _, _, err := decodeAddress(address, a.network); err != nil {
		return a.malformed(err)
	}
	return nil
}

func (a *adapter) DeriveCustodyAddress(ctx context.Context, tag string) (string, error) {
	addr, _, err := a.custody(ctx, tag)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (a *adapter) VerifyIncomingTransaction(
	ctx context.Context, txid, address string, asset domain.Asset, amount uint64,
) (bool, error) {
	if err := a.checkAsset(asset); err != nil {
		return false, err
	}
	_, script, err := decodeAddress(address, a.network)
	if err != nil {
		return false, a.malformed(err)
	}

	tx, err := a.explorer.GetTransaction(ctx, txid)
	if err != nil {
		if errors.Is(err, esplora.ErrNotFound) {
			return false, nil
		}
		var httpErr *esplora.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest {
			// Esplora answers 400 to a malformed txid.
			return false, nil
		}
		return false, a.transient(err)
	}

	paid := sumOutputsToScript(tx, script)
	if paid < amount {
		log.Debugf("bitcoin tx %s pays %d to %s, expected %d", txid, paid, address, amount)
		return false, nil
	}

	if a.minConfirmations == 0 {
		return true, nil
	}
	if !tx.Status.Confirmed {
		return false, nil
	}
	tip, err := a.explorer.GetBlockHeight(ctx)
	if err != nil {
		return false, a.transient(err)
	}
	confirmations := tip - tx.Status.BlockHeight + 1
	if confirmations < int64(a.minConfirmations) {
		log.Debugf(
			"bitcoin tx %s has %d confirmations, need %d", txid, confirmations, a.minConfirmations,
		)
		return false, nil
	}
	return true, nil
}

func (a *adapter) SendFunds(ctx context.Context, req ports.SendRequest) (string, error) {
	if err := a.checkAsset(req.Asset); err != nil {
		return "", err
	}
	if req.Amount < dustAmount {
		return "", ports.ChainErrorf(
			domain.ChainBitcoin, ports.ChainErrMalformed, "amount %d is below dust", req.Amount,
		)
	}
	_, destScript, err := decodeAddress(req.Destination, a.network)
	if err != nil {
		return "", a.malformed(err)
	}

	unlock := a.lockSource(req.SourceTag)
	defer unlock()

	custodyAddr, pubkey, err := a.custody(ctx, req.SourceTag)
	if err != nil {
		return "", err
	}
	custodyScript, err := payToAddrScript(custodyAddr)
	if err != nil {
		return "", a.malformed(err)
	}

	utxos, err := a.explorer.GetUtxos(ctx, custodyAddr.EncodeAddress())
	if err != nil {
		return "", a.transient(err)
	}
	feeRate, err := a.explorer.GetFeeRate(ctx, a.feeTarget)
	if err != nil {
		return "", a.transient(err)
	}

	selection, err := selectCoins(utxos, req.Amount, destScript, custodyScript, feeRate)
	if err != nil {
		if errors.Is(err, errNotEnoughFunds) {
			return "", ports.NewChainError(domain.ChainBitcoin, ports.ChainErrInsufficientFunds, err)
		}
		return "", a.malformed(err)
	}

	tx, fetcher, err := buildUnsignedTx(selection, req.Amount, destScript, custodyScript)
	if err != nil {
		return "", a.malformed(err)
	}
	if err := a.signInputs(ctx, req.SourceTag, tx, fetcher, custodyScript, pubkey); err != nil {
		return "", err
	}

	txid := tx.TxHash().String()
	if req.OnSigned != nil {
		if err := req.OnSigned(txid); err != nil {
			return "", err
		}
	}

	txHex, err := serializeTransaction(tx)
	if err != nil {
		return "", a.malformed(err)
	}

	log.Debugf(
		"broadcasting bitcoin tx %s paying %d to %s (fee %d, change %d)",
		txid, req.Amount, req.Destination, selection.fee, selection.change,
	)
	if _, err := a.explorer.BroadcastTransaction(ctx, txHex); err != nil {
		if err := a.broadcastError(txid, err); err != nil {
			return "", err
		}
		log.Debugf("bitcoin tx %s already known to the network", txid)
	}
	return txid, nil
}

func (a *adapter) GetBalance(ctx context.Context, address string, asset domain.Asset) (uint64, error) {
	if err := a.checkAsset(asset); err != nil {
		return 0, err
	}
	if err := a.ValidateAddress(address); err != nil {
		return 0, err
	}

	utxos, err := a.explorer.GetUtxos(ctx, address)
	if err != nil {
		return 0, a.transient(err)
	}
	var balance uint64
	for _, u := range utxos {
		balance += u.Value
	}
	return balance, nil
}

func (a *adapter) GetTransactionStatus(ctx context.Context, txid string) (ports.TxStatus, error) {
	status, err := a.explorer.GetTransactionStatus(ctx, txid)
	if err != nil {
		if errors.Is(err, esplora.ErrNotFound) {
			return ports.TxNotFound, nil
		}
		return ports.TxNotFound, a.transient(err)
	}
	if status.Confirmed {
		return ports.TxConfirmed, nil
	}
	return ports.TxInMempool, nil
}

func (a *adapter) lockSource(tag string) func() {
	a.sendMtx.Lock()
	mtx, ok := a.sendLocks[tag]
	if !ok {
		mtx = &sync.Mutex{}
		a.sendLocks[tag] = mtx
	}
	a.sendMtx.Unlock()

	mtx.Lock()
	return mtx.Unlock
}

func (a *adapter) custody(ctx context.Context, tag string) (btcutil.Address, []byte, error) {
	pubkey, err := a.signer.PublicKey(ctx, ports.SchemeSecp256k1, tag)
	if err != nil {
		return nil, nil, a.transient(fmt.Errorf("failed to get custody key: %w", err))
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubkey), a.network)
	if err != nil {
		return nil, nil, a.malformed(err)
	}
	return addr, pubkey, nil
}

func (a *adapter) signInputs(
	ctx context.Context, tag string, tx *wire.MsgTx, fetcher *txscript.MultiPrevOutFetcher,
	custodyScript, pubkey []byte,
) error {
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(in.PreviousOutPoint)
		sigHash, err := txscript.CalcWitnessSigHash(
			custodyScript, sigHashes, txscript.SigHashAll, tx, i, prevOut.Value,
		)
		if err != nil {
			return a.malformed(fmt.Errorf("failed to compute sighash: %w", err))
		}

		sig, err := a.signer.Sign(ctx, ports.SchemeSecp256k1, tag, sigHash)
		if err != nil {
			return a.transient(fmt.Errorf("failed to sign input %d: %w", i, err))
		}
		if _, err := ecdsa.ParseDERSignature(sig); err != nil {
			return a.malformed(fmt.Errorf("signer returned invalid signature: %w", err))
		}

		in.Witness = wire.TxWitness{
			append(sig, byte(txscript.SigHashAll)),
			pubkey,
		}
	}
	return nil
}

// broadcastError maps a rejected broadcast to a chain error. It returns nil if
// the network already knows the transaction.
func (a *adapter) broadcastError(txid string, err error) error {
	var httpErr *esplora.HTTPError
	if !errors.As(err, &httpErr) {
		return a.transient(err)
	}
	if httpErr.StatusCode >= http.StatusInternalServerError {
		return a.transient(err)
	}

	body := strings.ToLower(httpErr.Body)
	switch {
	case strings.Contains(body, "already-known"),
		strings.Contains(body, "already-in-mempool"),
		strings.Contains(body, "already in block chain"):
		return nil
	case strings.Contains(body, "missingorspent"),
		strings.Contains(body, "mempool-conflict"),
		strings.Contains(body, "missing inputs"):
		return ports.NewChainError(domain.ChainBitcoin, ports.ChainErrAlreadySpent, err)
	case strings.Contains(body, "insufficient fee"),
		strings.Contains(body, "min relay fee"):
		return ports.NewChainError(domain.ChainBitcoin, ports.ChainErrInsufficientFunds, err)
	default:
		return ports.NewChainError(
			domain.ChainBitcoin, ports.ChainErrMalformed, fmt.Errorf("broadcast %s: %w", txid, err),
		)
	}
}

func (a *adapter) checkAsset(asset domain.Asset) error {
	if asset.Chain != domain.ChainBitcoin || !asset.IsNative() {
		return ports.ChainErrorf(
			domain.ChainBitcoin, ports.ChainErrMalformed, "unsupported asset %s", asset,
		)
	}
	return nil
}

func (a *adapter) malformed(err error) error {
	return ports.NewChainError(domain.ChainBitcoin, ports.ChainErrMalformed, err)
}

func (a *adapter) transient(err error) error {
	return ports.NewChainError(domain.ChainBitcoin, ports.ChainErrTransient, err)
}
