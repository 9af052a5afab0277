package esplora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the indexer does not know the requested object.
var ErrNotFound = errors.New("not found")

// HTTPError is a non-2xx answer from the indexer.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Service interface {
	GetBlockHeight(ctx context.Context) (int64, error)
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
	GetTransactionStatus(ctx context.Context, txid string) (*TxStatus, error)
	GetUtxos(ctx context.Context, address string) ([]Utxo, error)
	// GetFeeRate returns the estimated sat/vB to confirm within target blocks.
	GetFeeRate(ctx context.Context, target uint32) (float64, error)
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
}

type TxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

type TxOutput struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               uint64 `json:"value"`
}

type Transaction struct {
	Txid   string     `json:"txid"`
	Vout   []TxOutput `json:"vout"`
	Status TxStatus   `json:"status"`
}

type Utxo struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  uint64   `json:"value"`
	Status TxStatus `json:"status"`
}

type service struct {
	baseUrl string
	client  *http.Client
}

func NewService(esploraURL string) Service {
	return &service{
		baseUrl: strings.TrimRight(esploraURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *service) GetBlockHeight(ctx context.Context) (int64, error) {
	b, err := s.get(ctx, "/blocks/tip/height", 64)
	if err != nil {
		return 0, fmt.Errorf("get height: %w", err)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height: %w", err)
	}
	return n, nil
}

func (s *service) GetTransaction(ctx context.Context, txid string) (*Transaction, error) {
	var tx Transaction
	if err := s.getJSON(ctx, "/tx/"+url.PathEscape(txid), &tx); err != nil {
		return nil, fmt.Errorf("get tx %s: %w", txid, err)
	}
	return &tx, nil
}

func (s *service) GetTransactionStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var status TxStatus
	if err := s.getJSON(ctx, "/tx/"+url.PathEscape(txid)+"/status", &status); err != nil {
		return nil, fmt.Errorf("get tx status %s: %w", txid, err)
	}
	return &status, nil
}

func (s *service) GetUtxos(ctx context.Context, address string) ([]Utxo, error) {
	var utxos []Utxo
	if err := s.getJSON(ctx, "/address/"+url.PathEscape(address)+"/utxo", &utxos); err != nil {
		return nil, fmt.Errorf("get utxos: %w", err)
	}
	return utxos, nil
}

func (s *service) GetFeeRate(ctx context.Context, target uint32) (float64, error) {
	var estimates map[string]float64
	if err := s.getJSON(ctx, "/fee-estimates", &estimates); err != nil {
		return 0, fmt.Errorf("get fee estimates: %w", err)
	}

	// Use the estimate for the closest target not above the requested one.
	best, rate := uint32(0), 0.0
	for k, v := range estimates {
		n, err := strconv.ParseUint(k, 10, 32)
		if err != nil || v <= 0 {
			continue
		}
		blocks := uint32(n)
		if blocks <= target && blocks > best {
			best, rate = blocks, v
		}
	}
	if rate <= 0 {
		return 1, nil
	}
	return rate, nil
}

func (s *service) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseUrl+"/tx", strings.NewReader(txHex),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{resp.StatusCode, strings.TrimSpace(string(b))}
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *service) get(ctx context.Context, path string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseUrl+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return b, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &HTTPError{resp.StatusCode, strings.TrimSpace(string(b))}
	}
}

func (s *service) getJSON(ctx context.Context, path string, v any) error {
	b, err := s.get(ctx, path, 4<<20)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
