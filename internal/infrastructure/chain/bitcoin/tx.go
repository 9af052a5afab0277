package bitcoin

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/esplora"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ccoveille/go-safecast"
	"github.com/lightningnetwork/lnd/input"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const dustAmount = 546

var errNotEnoughFunds = fmt.Errorf("not enough funds to cover amount and network fees")

func networkFromString(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %s", network)
	}
}

func payToAddrScript(addr btcutil.Address) ([]byte, error) {
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash,
		*btcutil.AddressScriptHash,
		*btcutil.AddressWitnessPubKeyHash,
		*btcutil.AddressWitnessScriptHash,
		*btcutil.AddressTaproot:
		return txscript.PayToAddrScript(addr)
	default:
		return nil, fmt.Errorf("unsupported address type: %T", addr)
	}
}

func decodeAddress(address string, network *chaincfg.Params) (btcutil.Address, []byte, error) {
	addr, err := btcutil.DecodeAddress(address, network)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid address: %w", err)
	}
	if !addr.IsForNet(network) {
		return nil, nil, fmt.Errorf("address %s is not for network %s", address, network.Name)
	}
	script, err := payToAddrScript(addr)
	if err != nil {
		return nil, nil, err
	}
	return addr, script, nil
}

// sumOutputsToScript sums the value of every output of tx paying to script.
func sumOutputsToScript(tx *esplora.Transaction, script []byte) uint64 {
	expected := hex.EncodeToString(script)
	var total uint64
	for _, out := range tx.Vout {
		if out.ScriptPubKey == expected {
			total += out.Value
		}
	}
	return total
}

type coinSelection struct {
	inputs []esplora.Utxo
	change uint64
	fee    uint64
}

// selectCoins picks utxos largest first, confirmed ones before unconfirmed,
// until they cover amount plus the fee of the resulting transaction. Change
// below dust is left to the fee.
func selectCoins(
	utxos []esplora.Utxo, amount uint64, destScript, changeScript []byte, feeRate float64,
) (*coinSelection, error) {
	sorted := append([]esplora.Utxo(nil), utxos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Status.Confirmed != sorted[j].Status.Confirmed {
			return sorted[i].Status.Confirmed
		}
		return sorted[i].Value > sorted[j].Value
	})

	var total uint64
	for i, utxo := range sorted {
		total += utxo.Value
		numInputs := i + 1

		feeWithChange, err := estimateFee(numInputs, feeRate, destScript, changeScript)
		if err != nil {
			return nil, err
		}
		if total >= amount+feeWithChange && total-amount-feeWithChange >= dustAmount {
			return &coinSelection{
				inputs: sorted[:numInputs],
				change: total - amount - feeWithChange,
				fee:    feeWithChange,
			}, nil
		}

		feeNoChange, err := estimateFee(numInputs, feeRate, destScript)
		if err != nil {
			return nil, err
		}
		if total >= amount+feeNoChange {
			return &coinSelection{
				inputs: sorted[:numInputs],
				fee:    total - amount,
			}, nil
		}
	}
	return nil, errNotEnoughFunds
}

func estimateFee(numInputs int, feeRate float64, outputScripts ...[]byte) (uint64, error) {
	weightEstimator := &input.TxWeightEstimator{}
	for range numInputs {
		weightEstimator.AddP2WKHInput()
	}
	for _, script := range outputScripts {
		weightEstimator.AddOutput(script)
	}

	size, err := safecast.ToUint64(weightEstimator.VSize())
	if err != nil {
		return 0, err
	}

	satPerKVByte := chainfee.SatPerKVByte(math.Ceil(feeRate * 1000))
	sats := satPerKVByte.FeePerKWeight().FeeForVByte(lntypes.VByte(size))
	fee, err := safecast.ToUint64(int64(sats))
	if err != nil {
		return 0, err
	}
	return fee, nil
}

func buildUnsignedTx(
	selection *coinSelection, amount uint64, destScript, changeScript []byte,
) (*wire.MsgTx, *txscript.MultiPrevOutFetcher, error) {
	tx := wire.NewMsgTx(2)
	fetcher := txscript.NewMultiPrevOutFetcher(nil)

	for _, utxo := range selection.inputs {
		hash, err := chainhash.NewHashFromStr(utxo.Txid)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid utxo txid: %w", err)
		}
		value, err := safecast.ToInt64(utxo.Value)
		if err != nil {
			return nil, nil, err
		}
		outpoint := wire.OutPoint{Hash: *hash, Index: utxo.Vout}
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: outpoint,
			Sequence:         wire.MaxTxInSequenceNum,
		})
		fetcher.AddPrevOut(outpoint, &wire.TxOut{Value: value, PkScript: changeScript})
	}

	value, err := safecast.ToInt64(amount)
	if err != nil {
		return nil, nil, err
	}
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: destScript})

	if selection.change > 0 {
		change, err := safecast.ToInt64(selection.change)
		if err != nil {
			return nil, nil, err
		}
		tx.AddTxOut(&wire.TxOut{Value: change, PkScript: changeScript})
	}

	return tx, fetcher, nil
}

func serializeTransaction(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
