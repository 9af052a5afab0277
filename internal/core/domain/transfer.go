package domain

import "time"

type TransferLeg int

const (
	// CreatorPayout sends the resolver's deposit to the creator.
	CreatorPayout TransferLeg = iota
	// ResolverPayout sends the creator's deposit to the resolver.
	ResolverPayout
	CreatorRefund
	ResolverRefund
)

func (l TransferLeg) String() string {
	switch l {
	case CreatorPayout:
		return "creator_payout"
	case ResolverPayout:
		return "resolver_payout"
	case CreatorRefund:
		return "creator_refund"
	case ResolverRefund:
		return "resolver_refund"
	default:
		return "unknown"
	}
}

type TransferStatus int

const (
	// TransferPending is recorded before signing. Once Txid is set the
	// transaction may be on chain and must never be rebuilt blindly.
	TransferPending TransferStatus = iota
	TransferBroadcast
	// TransferFailed means the transfer definitively did not reach the chain.
	TransferFailed
)

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferBroadcast:
		return "broadcast"
	case TransferFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transfer is one outbound custody movement of an order.
type Transfer struct {
	Leg         TransferLeg
	Asset       Asset
	Destination string
	Amount      uint64
	Txid        string
	Status      TransferStatus
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Transfer) Signed(txid string, at time.Time) {
	t.Txid = txid
	t.UpdatedAt = at
}

func (t *Transfer) Broadcast(txid string, at time.Time) {
	if txid != "" {
		t.Txid = txid
	}
	t.Status = TransferBroadcast
	t.Error = ""
	t.UpdatedAt = at
}

func (t *Transfer) Failed(errMsg string, at time.Time) {
	t.Status = TransferFailed
	t.Error = errMsg
	t.UpdatedAt = at
}

// InDoubt returns true if the transaction was signed but it is unknown
// whether it reached the chain.
func (t *Transfer) InDoubt() bool {
	return t.Status == TransferPending && t.Txid != ""
}

// Restart resets a transfer that never reached the chain so it can be sent
// again.
func (t *Transfer) Restart(at time.Time) {
	t.Txid = ""
	t.Status = TransferPending
	t.Error = ""
	t.UpdatedAt = at
}
