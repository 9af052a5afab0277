package bitcoin_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/chain/bitcoin"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/esplora"
	localsigner "github.com/ArkLabsHQ/escrowd/internal/infrastructure/signer/local"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var btc = domain.NativeAsset(domain.ChainBitcoin)

type fakeExplorer struct {
	lock        sync.Mutex
	height      int64
	txs         map[string]*esplora.Transaction
	utxos       map[string][]esplora.Utxo
	feeRate     float64
	broadcasted []string
	broadcastFn func(txHex string) error
	// spendInputs drops the coins spent by a broadcast tx, like the
	// mempool view of the real explorer.
	spendInputs bool
	err         error
}

func newFakeExplorer() *fakeExplorer {
	return &fakeExplorer{
		height:  100,
		txs:     make(map[string]*esplora.Transaction),
		utxos:   make(map[string][]esplora.Utxo),
		feeRate: 2,
	}
}

func (f *fakeExplorer) GetBlockHeight(context.Context) (int64, error) {
	return f.height, f.err
}

func (f *fakeExplorer) GetTransaction(_ context.Context, txid string) (*esplora.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[txid]
	if !ok {
		return nil, esplora.ErrNotFound
	}
	return tx, nil
}

func (f *fakeExplorer) GetTransactionStatus(_ context.Context, txid string) (*esplora.TxStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[txid]
	if !ok {
		return nil, esplora.ErrNotFound
	}
	return &tx.Status, nil
}

func (f *fakeExplorer) GetUtxos(_ context.Context, address string) ([]esplora.Utxo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]esplora.Utxo(nil), f.utxos[address]...), f.err
}

func (f *fakeExplorer) GetFeeRate(context.Context, uint32) (float64, error) {
	return f.feeRate, f.err
}

func (f *fakeExplorer) BroadcastTransaction(_ context.Context, txHex string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.broadcastFn != nil {
		if err := f.broadcastFn(txHex); err != nil {
			return "", err
		}
	}
	f.broadcasted = append(f.broadcasted, txHex)
	if f.spendInputs {
		rawTx, err := hex.DecodeString(txHex)
		if err != nil {
			return "", err
		}
		tx := wire.NewMsgTx(2)
		if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
			return "", err
		}
		for _, in := range tx.TxIn {
			for addr, utxos := range f.utxos {
				unspent := utxos[:0]
				for _, u := range utxos {
					if u.Txid != in.PreviousOutPoint.Hash.String() || u.Vout != in.PreviousOutPoint.Index {
						unspent = append(unspent, u)
					}
				}
				f.utxos[addr] = unspent
			}
		}
	}
	return "", nil
}

func newAdapter(t *testing.T, explorer esplora.Service, minConfirmations uint32) ports.ChainAdapter {
	signer, err := localsigner.NewService(testMnemonic, "")
	require.NoError(t, err)
	adapter, err := bitcoin.NewAdapter(bitcoin.Config{
		Network:          "testnet",
		Explorer:         explorer,
		Signer:           signer,
		MinConfirmations: minConfirmations,
	})
	require.NoError(t, err)
	return adapter
}

func randomAddress(t *testing.T, network *chaincfg.Params) (string, []byte) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), network,
	)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return addr.EncodeAddress(), script
}

func fakeTxid(seed string) string {
	return chainhash.HashH([]byte(seed)).String()
}

func TestNewAdapter(t *testing.T) {
	_, err := bitcoin.NewAdapter(bitcoin.Config{Network: "litecoin"})
	require.Error(t, err)

	_, err = bitcoin.NewAdapter(bitcoin.Config{Network: "regtest"})
	require.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	adapter := newAdapter(t, newFakeExplorer(), 1)

	testnetAddr, _ := randomAddress(t, &chaincfg.TestNet3Params)
	mainnetAddr, _ := randomAddress(t, &chaincfg.MainNetParams)

	require.NoError(t, adapter.ValidateAddress(testnetAddr))

	for _, addr := range []string{mainnetAddr, "", "not-an-address"} {
		err := adapter.ValidateAddress(addr)
		require.Error(t, err)
		require.Equal(t, ports.ChainErrMalformed, ports.ChainErrKind(err))
	}
}

func TestDeriveCustodyAddress(t *testing.T) {
	ctx := context.Background()
	adapter := newAdapter(t, newFakeExplorer(), 1)

	addr, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)
	require.NoError(t, adapter.ValidateAddress(addr))
	require.Contains(t, addr, "tb1q")

	again, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)
	require.Equal(t, addr, again)

	other, err := adapter.DeriveCustodyAddress(ctx, "other")
	require.NoError(t, err)
	require.NotEqual(t, addr, other)
}

func TestVerifyIncomingTransaction(t *testing.T) {
	ctx := context.Background()
	explorer := newFakeExplorer()
	adapter := newAdapter(t, explorer, 2)

	custody, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(custody, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	_, otherScript := randomAddress(t, &chaincfg.TestNet3Params)

	outputs := func(values ...uint64) []esplora.TxOutput {
		outs := make([]esplora.TxOutput, 0, len(values))
		for i, v := range values {
			s := script
			if i%2 == 1 {
				s = otherScript
			}
			outs = append(outs, esplora.TxOutput{ScriptPubKey: hex.EncodeToString(s), Value: v})
		}
		return outs
	}

	explorer.txs[fakeTxid("deep")] = &esplora.Transaction{
		Vout:   outputs(100_000, 5_000),
		Status: esplora.TxStatus{Confirmed: true, BlockHeight: 90},
	}
	explorer.txs[fakeTxid("split")] = &esplora.Transaction{
		Vout:   outputs(60_000, 5_000, 40_000),
		Status: esplora.TxStatus{Confirmed: true, BlockHeight: 90},
	}
	explorer.txs[fakeTxid("shallow")] = &esplora.Transaction{
		Vout:   outputs(100_000),
		Status: esplora.TxStatus{Confirmed: true, BlockHeight: 100},
	}
	explorer.txs[fakeTxid("mempool")] = &esplora.Transaction{
		Vout: outputs(100_000),
	}

	testCases := []struct {
		name     string
		txid     string
		amount   uint64
		expected bool
	}{
		{"exact amount", fakeTxid("deep"), 100_000, true},
		{"overpaid", fakeTxid("deep"), 90_000, true},
		{"underpaid", fakeTxid("deep"), 100_001, false},
		{"multiple outputs", fakeTxid("split"), 100_000, true},
		{"not enough confirmations", fakeTxid("shallow"), 100_000, false},
		{"unconfirmed", fakeTxid("mempool"), 100_000, false},
		{"unknown", fakeTxid("unknown"), 100_000, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := adapter.VerifyIncomingTransaction(ctx, tc.txid, custody, btc, tc.amount)
			require.NoError(t, err)
			require.Equal(t, tc.expected, ok)
		})
	}

	t.Run("wrong asset", func(t *testing.T) {
		_, err := adapter.VerifyIncomingTransaction(
			ctx, fakeTxid("deep"), custody, domain.NativeAsset(domain.ChainSolana), 1,
		)
		require.Error(t, err)
		require.Equal(t, ports.ChainErrMalformed, ports.ChainErrKind(err))
	})

	t.Run("explorer unreachable", func(t *testing.T) {
		explorer.err = fmt.Errorf("connection refused")
		defer func() { explorer.err = nil }()

		_, err := adapter.VerifyIncomingTransaction(ctx, fakeTxid("deep"), custody, btc, 1)
		require.Error(t, err)
		require.Equal(t, ports.ChainErrTransient, ports.ChainErrKind(err))
	})
}

func TestSendFunds(t *testing.T) {
	ctx := context.Background()
	explorer := newFakeExplorer()
	adapter := newAdapter(t, explorer, 1)

	custody, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)
	custodyAddr, err := btcutil.DecodeAddress(custody, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	custodyScript, err := txscript.PayToAddrScript(custodyAddr)
	require.NoError(t, err)

	explorer.utxos[custody] = []esplora.Utxo{
		{Txid: fakeTxid("small"), Vout: 1, Value: 30_000, Status: esplora.TxStatus{Confirmed: true}},
		{Txid: fakeTxid("big"), Vout: 0, Value: 60_000, Status: esplora.TxStatus{Confirmed: true}},
		{Txid: fakeTxid("unconfirmed"), Vout: 0, Value: 500_000},
	}
	prevOuts := map[string]int64{
		fakeTxid("small"):       30_000,
		fakeTxid("big"):         60_000,
		fakeTxid("unconfirmed"): 500_000,
	}

	dest, destScript := randomAddress(t, &chaincfg.TestNet3Params)

	t.Run("valid", func(t *testing.T) {
		var signedTxid string
		txid, err := adapter.SendFunds(ctx, ports.SendRequest{
			SourceTag:   "pool",
			Destination: dest,
			Asset:       btc,
			Amount:      50_000,
			OnSigned: func(txid string) error {
				require.Empty(t, explorer.broadcasted)
				signedTxid = txid
				return nil
			},
		})
		require.NoError(t, err)
		require.Equal(t, signedTxid, txid)
		require.Len(t, explorer.broadcasted, 1)

		rawTx, err := hex.DecodeString(explorer.broadcasted[0])
		require.NoError(t, err)
		tx := wire.NewMsgTx(2)
		require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
		require.Equal(t, txid, tx.TxHash().String())

		// Largest confirmed coin covers the payment.
		require.Len(t, tx.TxIn, 1)
		require.Equal(t, fakeTxid("big"), tx.TxIn[0].PreviousOutPoint.Hash.String())

		// Recipient gets the exact amount, fees come out of the change.
		require.Len(t, tx.TxOut, 2)
		require.Equal(t, int64(50_000), tx.TxOut[0].Value)
		require.Equal(t, destScript, tx.TxOut[0].PkScript)
		require.Equal(t, custodyScript, tx.TxOut[1].PkScript)
		fee := 60_000 - 50_000 - tx.TxOut[1].Value
		require.Greater(t, fee, int64(0))
		require.Less(t, fee, int64(1_000))

		fetcher := txscript.NewMultiPrevOutFetcher(nil)
		for _, in := range tx.TxIn {
			fetcher.AddPrevOut(in.PreviousOutPoint, &wire.TxOut{
				Value:    prevOuts[in.PreviousOutPoint.Hash.String()],
				PkScript: custodyScript,
			})
		}
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		for i, in := range tx.TxIn {
			prevOut := fetcher.FetchPrevOutput(in.PreviousOutPoint)
			engine, err := txscript.NewEngine(
				custodyScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes,
				prevOut.Value, fetcher,
			)
			require.NoError(t, err)
			require.NoError(t, engine.Execute())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		mainnetDest, _ := randomAddress(t, &chaincfg.MainNetParams)

		testCases := []struct {
			name string
			req  ports.SendRequest
			kind ports.ChainErrorKind
		}{
			{
				name: "insufficient funds",
				req:  ports.SendRequest{SourceTag: "pool", Destination: dest, Asset: btc, Amount: 1_000_000},
				kind: ports.ChainErrInsufficientFunds,
			},
			{
				name: "dust amount",
				req:  ports.SendRequest{SourceTag: "pool", Destination: dest, Asset: btc, Amount: 100},
				kind: ports.ChainErrMalformed,
			},
			{
				name: "wrong network",
				req:  ports.SendRequest{SourceTag: "pool", Destination: mainnetDest, Asset: btc, Amount: 10_000},
				kind: ports.ChainErrMalformed,
			},
			{
				name: "empty pool",
				req:  ports.SendRequest{SourceTag: "empty", Destination: dest, Asset: btc, Amount: 10_000},
				kind: ports.ChainErrInsufficientFunds,
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := adapter.SendFunds(ctx, tc.req)
				require.Error(t, err)
				require.Equal(t, tc.kind, ports.ChainErrKind(err))
			})
		}
	})

	t.Run("on signed error aborts", func(t *testing.T) {
		before := len(explorer.broadcasted)
		_, err := adapter.SendFunds(ctx, ports.SendRequest{
			SourceTag: "pool", Destination: dest, Asset: btc, Amount: 10_000,
			OnSigned: func(string) error { return fmt.Errorf("db down") },
		})
		require.Error(t, err)
		require.Len(t, explorer.broadcasted, before)
	})

	t.Run("broadcast rejections", func(t *testing.T) {
		defer func() { explorer.broadcastFn = nil }()

		testCases := []struct {
			name string
			err  error
			kind ports.ChainErrorKind
		}{
			{
				name: "spent inputs",
				err: &esplora.HTTPError{
					StatusCode: http.StatusBadRequest,
					Body:       "sendrawtransaction RPC error: bad-txns-inputs-missingorspent",
				},
				kind: ports.ChainErrAlreadySpent,
			},
			{
				name: "server error",
				err:  &esplora.HTTPError{StatusCode: http.StatusBadGateway, Body: "bad gateway"},
				kind: ports.ChainErrTransient,
			},
			{
				name: "network error",
				err:  fmt.Errorf("connection reset"),
				kind: ports.ChainErrTransient,
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				explorer.broadcastFn = func(string) error { return tc.err }
				_, err := adapter.SendFunds(ctx, ports.SendRequest{
					SourceTag: "pool", Destination: dest, Asset: btc, Amount: 10_000,
				})
				require.Error(t, err)
				require.Equal(t, tc.kind, ports.ChainErrKind(err))
			})
		}

		explorer.broadcastFn = func(string) error {
			return &esplora.HTTPError{
				StatusCode: http.StatusBadRequest,
				Body:       "sendrawtransaction RPC error: txn-already-known",
			}
		}
		txid, err := adapter.SendFunds(ctx, ports.SendRequest{
			SourceTag: "pool", Destination: dest, Asset: btc, Amount: 10_000,
		})
		require.NoError(t, err)
		require.NotEmpty(t, txid)
	})
}

func TestConcurrentSends(t *testing.T) {
	ctx := context.Background()
	explorer := newFakeExplorer()
	explorer.spendInputs = true
	adapter := newAdapter(t, explorer, 1)

	custody, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)

	const sends = 4
	for i := 0; i < sends; i++ {
		explorer.utxos[custody] = append(explorer.utxos[custody], esplora.Utxo{
			Txid:   fakeTxid(fmt.Sprintf("coin-%d", i)),
			Value:  60_000,
			Status: esplora.TxStatus{Confirmed: true},
		})
	}
	dest, _ := randomAddress(t, &chaincfg.TestNet3Params)

	start := make(chan struct{})
	errs := make(chan error, sends)
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := adapter.SendFunds(ctx, ports.SendRequest{
				SourceTag: "pool", Destination: dest, Asset: btc, Amount: 50_000,
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, explorer.broadcasted, sends)
	spent := make(map[wire.OutPoint]bool)
	for _, txHex := range explorer.broadcasted {
		rawTx, err := hex.DecodeString(txHex)
		require.NoError(t, err)
		tx := wire.NewMsgTx(2)
		require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
		for _, in := range tx.TxIn {
			require.False(t, spent[in.PreviousOutPoint], "coin %s spent twice", in.PreviousOutPoint)
			spent[in.PreviousOutPoint] = true
		}
	}
	require.Len(t, spent, sends)
	require.Empty(t, explorer.utxos[custody])
}

func TestGetBalanceAndStatus(t *testing.T) {
	ctx := context.Background()
	explorer := newFakeExplorer()
	adapter := newAdapter(t, explorer, 1)

	custody, err := adapter.DeriveCustodyAddress(ctx, "pool")
	require.NoError(t, err)
	explorer.utxos[custody] = []esplora.Utxo{
		{Txid: fakeTxid("a"), Value: 1_500},
		{Txid: fakeTxid("b"), Value: 2_500},
	}

	balance, err := adapter.GetBalance(ctx, custody, btc)
	require.NoError(t, err)
	require.Equal(t, uint64(4_000), balance)

	explorer.txs[fakeTxid("confirmed")] = &esplora.Transaction{Status: esplora.TxStatus{Confirmed: true}}
	explorer.txs[fakeTxid("mempool")] = &esplora.Transaction{}

	testCases := []struct {
		txid     string
		expected ports.TxStatus
	}{
		{fakeTxid("confirmed"), ports.TxConfirmed},
		{fakeTxid("mempool"), ports.TxInMempool},
		{fakeTxid("missing"), ports.TxNotFound},
	}
	for _, tc := range testCases {
		status, err := adapter.GetTransactionStatus(ctx, tc.txid)
		require.NoError(t, err)
		require.Equal(t, tc.expected, status)
	}
}
