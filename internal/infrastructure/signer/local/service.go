// Package localsigner derives custody keys from a BIP39 mnemonic. It is meant
// for regtest/testnet deployments and tests; production deployments use the
// remote threshold signer.
package localsigner

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

const (
	purposeSegwit = 84
	coinTypeSol   = 501
)

type service struct {
	secpMaster *bip32.Key
	edMaster   slip10Key

	lock     sync.Mutex
	secpKeys map[string]*btcec.PrivateKey
	edKeys   map[string]ed25519.PrivateKey
}

func NewService(mnemonic, passphrase string) (ports.SignerService, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive seed: %w", err)
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	return &service{
		secpMaster: master,
		edMaster:   newSlip10Master(seed),
		secpKeys:   make(map[string]*btcec.PrivateKey),
		edKeys:     make(map[string]ed25519.PrivateKey),
	}, nil
}

func (s *service) PublicKey(
	_ context.Context, scheme ports.SignatureScheme, tag string,
) ([]byte, error) {
	switch scheme {
	case ports.SchemeSecp256k1:
		key, err := s.secpKey(tag)
		if err != nil {
			return nil, err
		}
		return key.PubKey().SerializeCompressed(), nil
	case ports.SchemeEd25519:
		key := s.edKey(tag)
		return key.Public().(ed25519.PublicKey), nil
	default:
		return nil, fmt.Errorf("unsupported signature scheme %s", scheme)
	}
}

func (s *service) Sign(
	_ context.Context, scheme ports.SignatureScheme, tag string, msg []byte,
) ([]byte, error) {
	switch scheme {
	case ports.SchemeSecp256k1:
		if len(msg) != 32 {
			return nil, fmt.Errorf("secp256k1 message must be a 32-byte digest, got %d bytes", len(msg))
		}
		key, err := s.secpKey(tag)
		if err != nil {
			return nil, err
		}
		return ecdsa.Sign(key, msg).Serialize(), nil
	case ports.SchemeEd25519:
		return ed25519.Sign(s.edKey(tag), msg), nil
	default:
		return nil, fmt.Errorf("unsupported signature scheme %s", scheme)
	}
}

// m/84'/0'/0'/index'
func (s *service) secpKey(tag string) (*btcec.PrivateKey, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if key, ok := s.secpKeys[tag]; ok {
		return key, nil
	}

	key := s.secpMaster
	for _, index := range []uint32{purposeSegwit, 0, 0, tagIndex(tag)} {
		child, err := key.NewChildKey(bip32.FirstHardenedChild + index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key for tag %s: %w", tag, err)
		}
		key = child
	}

	privKey, _ := btcec.PrivKeyFromBytes(key.Key)
	s.secpKeys[tag] = privKey
	return privKey, nil
}

// m/44'/501'/index'/0'
func (s *service) edKey(tag string) ed25519.PrivateKey {
	s.lock.Lock()
	defer s.lock.Unlock()

	if key, ok := s.edKeys[tag]; ok {
		return key
	}

	key := s.edMaster
	for _, index := range []uint32{44, coinTypeSol, tagIndex(tag), 0} {
		key = key.hardenedChild(index)
	}

	privKey := ed25519.NewKeyFromSeed(key.key[:])
	s.edKeys[tag] = privKey
	return privKey
}

// tagIndex maps a tag to a non-hardened child index.
func tagIndex(tag string) uint32 {
	sum := sha256.Sum256([]byte(tag))
	return binary.BigEndian.Uint32(sum[:4]) &^ bip32.FirstHardenedChild
}

// slip10Key is an ed25519 extended key, only hardened derivation exists.
type slip10Key struct {
	key       [32]byte
	chainCode [32]byte
}

func newSlip10Master(seed []byte) slip10Key {
	return slip10FromHMAC([]byte("ed25519 seed"), seed)
}

func (k slip10Key) hardenedChild(index uint32) slip10Key {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, k.key[:]...)
	data = binary.BigEndian.AppendUint32(data, bip32.FirstHardenedChild+index)
	return slip10FromHMAC(k.chainCode[:], data)
}

func slip10FromHMAC(key, data []byte) slip10Key {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)

	var out slip10Key
	copy(out.key[:], sum[:32])
	copy(out.chainCode[:], sum[32:])
	return out
}
