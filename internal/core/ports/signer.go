package ports

import "context"

type SignatureScheme string

const (
	// SchemeSecp256k1 signs 32-byte digests and returns DER encoded ECDSA
	// signatures.
	SchemeSecp256k1 SignatureScheme = "secp256k1"
	// SchemeEd25519 signs raw messages and returns 64-byte signatures.
	SchemeEd25519 SignatureScheme = "ed25519"
)

// SignerService is the custody key holder. Keys are addressed by a tag and
// never leave the service.
type SignerService interface {
	// PublicKey returns the compressed secp256k1 key or the raw ed25519 key.
	PublicKey(ctx context.Context, scheme SignatureScheme, tag string) ([]byte, error)
	Sign(ctx context.Context, scheme SignatureScheme, tag string, msg []byte) ([]byte, error)
}
