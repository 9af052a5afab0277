package domain

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"
)

type OrderStatus int

const (
	// Pending states
	OrderAwaitingDeposit OrderStatus = iota
	OrderDepositReceived
	OrderResolverDeposited

	// Terminal states
	OrderCompleted
	OrderCancelled
	OrderExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderAwaitingDeposit:
		return "awaiting_deposit"
	case OrderDepositReceived:
		return "deposit_received"
	case OrderResolverDeposited:
		return "resolver_deposited"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderCompleted, OrderCancelled, OrderExpired:
		return true
	default:
		return false
	}
}

var NonTerminalStatuses = []OrderStatus{
	OrderAwaitingDeposit, OrderDepositReceived, OrderResolverDeposited,
}

type SecretHash [32]byte

func ParseSecretHash(s string) (SecretHash, error) {
	var h SecretHash
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("secret hash must be %d hex chars, got %d", hex.EncodedLen(len(h)), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("secret hash is not hex: %w", err)
	}
	return h, nil
}

func (h SecretHash) String() string {
	return hex.EncodeToString(h[:])
}

type Order struct {
	Id uint64

	CreatorPrincipal   string
	CreatorFromAddress string
	CreatorToAddress   string

	ResolverPrincipal   string
	ResolverFromAddress string
	ResolverToAddress   string

	FromAsset  Asset
	ToAsset    Asset
	FromAmount uint64
	ToAmount   uint64

	SecretHash SecretHash
	Secret     string

	Status    OrderStatus
	CreatedAt time.Time
	TimeoutAt time.Time

	CreatorDepositTxid  string
	ResolverDepositTxid string

	CustodyFromAddress string
	CustodyToAddress   string

	Transfers []Transfer

	// SettlementError is set when only one settlement leg went out.
	SettlementError string
}

func (o *Order) HasResolver() bool {
	return o.ResolverPrincipal != ""
}

func (o *Order) IsExpired(now time.Time) bool {
	return !now.Before(o.TimeoutAt)
}

func (o *Order) IsPartiallySettled() bool {
	return o.SettlementError != ""
}

// HasParticipant returns true if addr is any of the creator's or the
// resolver's addresses.
func (o *Order) HasParticipant(addr string) bool {
	if addr == "" {
		return false
	}
	for _, a := range []string{
		o.CreatorFromAddress, o.CreatorToAddress,
		o.ResolverFromAddress, o.ResolverToAddress,
	} {
		if a == addr {
			return true
		}
	}
	return false
}

func (o *Order) Transfer(leg TransferLeg) (*Transfer, bool) {
	for i := range o.Transfers {
		if o.Transfers[i].Leg == leg {
			return &o.Transfers[i], true
		}
	}
	return nil, false
}

// RefundStarted returns true once the creator's deposit is being returned.
// Such an order can no longer be accepted.
func (o *Order) RefundStarted() bool {
	_, ok := o.Transfer(CreatorRefund)
	return ok
}

// StartTransfer returns the ledger entry for leg, creating it if missing.
func (o *Order) StartTransfer(leg TransferLeg, asset Asset, destination string, amount uint64, at time.Time) *Transfer {
	if t, ok := o.Transfer(leg); ok {
		return t
	}
	o.Transfers = append(o.Transfers, Transfer{
		Leg:         leg,
		Asset:       asset,
		Destination: destination,
		Amount:      amount,
		Status:      TransferPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	})
	return &o.Transfers[len(o.Transfers)-1]
}

// DepositReceived records the creator's verified deposit.
func (o *Order) DepositReceived(txid string) error {
	if o.Status != OrderAwaitingDeposit {
		return Validationf("order %d is %s, expected %s", o.Id, o.Status, OrderAwaitingDeposit)
	}
	if o.CreatorDepositTxid != "" {
		return NewError(KindInvariantViolation, nil, "order %d already has a creator deposit", o.Id)
	}
	o.CreatorDepositTxid = txid
	o.Status = OrderDepositReceived
	return nil
}

// Accepted records the resolver. The status does not change until the
// resolver's own deposit is verified.
func (o *Order) Accepted(principal, fromAddress, toAddress string) error {
	if o.Status != OrderDepositReceived {
		return Validationf("order %d is %s, expected %s", o.Id, o.Status, OrderDepositReceived)
	}
	if o.HasResolver() {
		return Validationf("order %d already accepted", o.Id)
	}
	if o.RefundStarted() {
		return Validationf("order %d is being cancelled", o.Id)
	}
	if principal == o.CreatorPrincipal {
		return Validationf("creator cannot accept own order")
	}
	o.ResolverPrincipal = principal
	o.ResolverFromAddress = fromAddress
	o.ResolverToAddress = toAddress
	return nil
}

// ResolverDeposited records the resolver's verified deposit.
func (o *Order) ResolverDeposited(txid string) error {
	if o.Status != OrderDepositReceived {
		return Validationf("order %d is %s, expected %s", o.Id, o.Status, OrderDepositReceived)
	}
	if !o.HasResolver() {
		return Validationf("order %d has not been accepted", o.Id)
	}
	if o.RefundStarted() {
		return Validationf("order %d is being cancelled", o.Id)
	}
	if o.ResolverDepositTxid != "" {
		return NewError(KindInvariantViolation, nil, "order %d already has a resolver deposit", o.Id)
	}
	o.ResolverDepositTxid = txid
	o.Status = OrderResolverDeposited
	return nil
}

func (o *Order) Completed(secret string) error {
	if o.Status != OrderResolverDeposited {
		return NewError(KindInvariantViolation, nil, "order %d cannot complete from %s", o.Id, o.Status)
	}
	o.Secret = secret
	o.SettlementError = ""
	o.Status = OrderCompleted
	return nil
}

func (o *Order) Cancelled() error {
	switch o.Status {
	case OrderAwaitingDeposit:
	case OrderDepositReceived:
		if o.HasResolver() {
			return Validationf("order %d already accepted by a resolver", o.Id)
		}
	default:
		return Validationf("order %d is %s and cannot be cancelled", o.Id, o.Status)
	}
	o.Status = OrderCancelled
	return nil
}

func (o *Order) Expired() error {
	if o.Status.IsTerminal() {
		return NewError(KindInvariantViolation, nil, "order %d cannot expire from %s", o.Id, o.Status)
	}
	o.Status = OrderExpired
	return nil
}

func (o *Order) PartiallySettled(errMsg string) {
	o.SettlementError = errMsg
}

// OrderRepository is the durable store of orders. Orders are never deleted.
type OrderRepository interface {
	// NextId allocates a fresh order id. Ids are never reused.
	NextId(ctx context.Context) (uint64, error)

	Add(ctx context.Context, order Order) error

	// Get returns ErrOrderNotFound if there is no order with the given id.
	Get(ctx context.Context, id uint64) (*Order, error)

	// Update replaces the stored order, transfers included.
	Update(ctx context.Context, order Order) error

	GetAll(ctx context.Context) ([]Order, error)

	GetByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error)

	// GetByAddress returns the orders where address is one of the
	// participant addresses.
	GetByAddress(ctx context.Context, address string) ([]Order, error)

	// GetByPrincipal returns the orders created or accepted by principal.
	GetByPrincipal(ctx context.Context, principal string) ([]Order, error)

	// GetByDepositTxid returns the order that claimed txid as either deposit.
	GetByDepositTxid(ctx context.Context, txid string) (*Order, error)

	Close()
}
