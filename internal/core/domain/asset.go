package domain

import "fmt"

type ChainKind int

const (
	ChainUnknown ChainKind = iota
	// ChainBitcoin is the UTXO chain leg.
	ChainBitcoin
	// ChainSolana is the account chain leg.
	ChainSolana
)

func (c ChainKind) String() string {
	switch c {
	case ChainBitcoin:
		return "bitcoin"
	case ChainSolana:
		return "solana"
	default:
		return "unknown"
	}
}

// IsUTXO returns true for chains where custody is a set of unspent outputs.
func (c ChainKind) IsUTXO() bool {
	return c == ChainBitcoin
}

func ParseChainKind(s string) (ChainKind, error) {
	switch s {
	case "bitcoin", "btc":
		return ChainBitcoin, nil
	case "solana", "sol":
		return ChainSolana, nil
	default:
		return ChainUnknown, fmt.Errorf("unknown chain %q", s)
	}
}

type AssetKind int

const (
	AssetNative AssetKind = iota
	AssetFungibleToken
)

// Asset identifies what moves on a leg. Amounts are always expressed in the
// asset's atomic units.
type Asset struct {
	Kind     AssetKind
	Chain    ChainKind
	Mint     string
	Decimals uint8
}

func NativeAsset(chain ChainKind) Asset {
	decimals := uint8(8)
	if chain == ChainSolana {
		decimals = 9
	}
	return Asset{Kind: AssetNative, Chain: chain, Decimals: decimals}
}

func FungibleToken(chain ChainKind, mint string, decimals uint8) Asset {
	return Asset{Kind: AssetFungibleToken, Chain: chain, Mint: mint, Decimals: decimals}
}

func (a Asset) IsNative() bool {
	return a.Kind == AssetNative
}

func (a Asset) Validate() error {
	switch a.Chain {
	case ChainBitcoin, ChainSolana:
	default:
		return fmt.Errorf("unsupported chain %d", a.Chain)
	}

	switch a.Kind {
	case AssetNative:
		if a.Mint != "" {
			return fmt.Errorf("native asset must not carry a mint")
		}
	case AssetFungibleToken:
		if a.Chain.IsUTXO() {
			return fmt.Errorf("fungible tokens are not supported on %s", a.Chain)
		}
		if a.Mint == "" {
			return fmt.Errorf("missing token mint")
		}
	default:
		return fmt.Errorf("unsupported asset kind %d", a.Kind)
	}
	return nil
}

func (a Asset) String() string {
	if a.IsNative() {
		return a.Chain.String()
	}
	return fmt.Sprintf("%s:%s", a.Chain, a.Mint)
}
