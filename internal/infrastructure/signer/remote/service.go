// Package remotesigner talks to a threshold signing service over HTTP. The
// service never discloses key material, it only returns public keys and
// signatures for a key tag.
package remotesigner

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

type service struct {
	baseUrl string
	client  *http.Client

	pubkeys sync.Map
}

func NewService(url string) (ports.SignerService, error) {
	if url == "" {
		return nil, fmt.Errorf("missing signer url")
	}
	return &service{
		baseUrl: strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type publicKeyRequest struct {
	Scheme string `json:"scheme"`
	Tag    string `json:"tag"`
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

type signRequest struct {
	Scheme  string `json:"scheme"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

func (s *service) PublicKey(
	ctx context.Context, scheme ports.SignatureScheme, tag string,
) ([]byte, error) {
	cacheKey := string(scheme) + "/" + tag
	if v, ok := s.pubkeys.Load(cacheKey); ok {
		return v.([]byte), nil
	}

	var resp publicKeyResponse
	if err := s.post(ctx, "/v1/public-key", publicKeyRequest{string(scheme), tag}, &resp); err != nil {
		return nil, err
	}
	pubkey, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key from signer: %w", err)
	}

	switch scheme {
	case ports.SchemeSecp256k1:
		key, err := btcec.ParsePubKey(pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 public key from signer: %w", err)
		}
		pubkey = key.SerializeCompressed()
	case ports.SchemeEd25519:
		if len(pubkey) != 32 {
			return nil, fmt.Errorf("invalid ed25519 public key length %d", len(pubkey))
		}
	}

	s.pubkeys.Store(cacheKey, pubkey)
	return pubkey, nil
}

func (s *service) Sign(
	ctx context.Context, scheme ports.SignatureScheme, tag string, msg []byte,
) ([]byte, error) {
	var resp signResponse
	req := signRequest{string(scheme), tag, hex.EncodeToString(msg)}
	if err := s.post(ctx, "/v1/sign", req, &resp); err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature from signer: %w", err)
	}

	if scheme == ports.SchemeSecp256k1 && len(sig) == 64 {
		return compactToDER(sig)
	}
	return sig, nil
}

func (s *service) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseUrl+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("signer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("signer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse signer response: %w", err)
	}
	return nil
}

// compactToDER converts a 64-byte r||s signature, as produced by threshold
// ECDSA services, to a low-S DER signature.
func compactToDER(sig []byte) ([]byte, error) {
	var r, sv btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("invalid signature r value")
	}
	if overflow := sv.SetByteSlice(sig[32:]); overflow || sv.IsZero() {
		return nil, fmt.Errorf("invalid signature s value")
	}
	if sv.IsOverHalfOrder() {
		sv.Negate()
	}
	return ecdsa.NewSignature(&r, &sv).Serialize(), nil
}
