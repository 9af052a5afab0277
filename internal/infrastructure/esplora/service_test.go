package esplora_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/esplora"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /blocks/tip/height", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("840000\n"))
	})
	mux.HandleFunc("GET /tx/{txid}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("txid") != "aa" {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"txid":"aa","vout":[{"scriptpubkey":"0014","scriptpubkey_address":"tb1qx","value":1500}],"status":{"confirmed":true,"block_height":839999}}`))
	})
	mux.HandleFunc("GET /tx/{txid}/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confirmed":false}`))
	})
	mux.HandleFunc("GET /address/{address}/utxo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"txid":"aa","vout":0,"value":1500,"status":{"confirmed":true,"block_height":839999}}]`))
	})
	mux.HandleFunc("GET /fee-estimates", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"1":20.5,"3":10.1,"6":5.2,"144":1.01}`))
	})
	mux.HandleFunc("POST /tx", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) == "bad" {
			http.Error(w, "sendrawtransaction RPC error: bad-txns-inputs-missingorspent", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("bb"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := esplora.NewService(newTestServer(t).URL + "/")

	t.Run("block height", func(t *testing.T) {
		height, err := svc.GetBlockHeight(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(840000), height)
	})

	t.Run("transaction", func(t *testing.T) {
		tx, err := svc.GetTransaction(ctx, "aa")
		require.NoError(t, err)
		require.Equal(t, "aa", tx.Txid)
		require.Len(t, tx.Vout, 1)
		require.Equal(t, uint64(1500), tx.Vout[0].Value)
		require.True(t, tx.Status.Confirmed)

		_, err = svc.GetTransaction(ctx, "cc")
		require.ErrorIs(t, err, esplora.ErrNotFound)

		status, err := svc.GetTransactionStatus(ctx, "aa")
		require.NoError(t, err)
		require.False(t, status.Confirmed)
	})

	t.Run("utxos", func(t *testing.T) {
		utxos, err := svc.GetUtxos(ctx, "tb1qx")
		require.NoError(t, err)
		require.Len(t, utxos, 1)
		require.Equal(t, uint32(0), utxos[0].Vout)
	})

	t.Run("fee rate", func(t *testing.T) {
		rate, err := svc.GetFeeRate(ctx, 6)
		require.NoError(t, err)
		require.Equal(t, 5.2, rate)

		rate, err = svc.GetFeeRate(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, 20.5, rate)
	})

	t.Run("broadcast", func(t *testing.T) {
		txid, err := svc.BroadcastTransaction(ctx, "00")
		require.NoError(t, err)
		require.Equal(t, "bb", txid)

		_, err = svc.BroadcastTransaction(ctx, "bad")
		var httpErr *esplora.HTTPError
		require.ErrorAs(t, err, &httpErr)
		require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
		require.Contains(t, httpErr.Body, "missingorspent")
	})
}

func TestServiceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := esplora.NewService(url)
	_, err := svc.GetBlockHeight(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, esplora.ErrNotFound)
}
