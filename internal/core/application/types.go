package application

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMinOrderTimeout = 5 * time.Minute
	DefaultCustodyTag      = "pool"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Config struct {
	// MinOrderTimeout is the shortest timeout an order can be created with.
	MinOrderTimeout time.Duration
	// CustodyTag selects the custody key every order deposits to.
	CustodyTag string
}

type CreateOrderRequest struct {
	FromAsset  domain.Asset
	ToAsset    domain.Asset
	FromAmount uint64
	ToAmount   uint64
	// SecretHash is the hex encoded SHA-256 digest of the secret.
	SecretHash string
	Timeout    time.Duration

	// CreatorFromAddress is where the deposit is refunded, on the from chain.
	CreatorFromAddress string
	// CreatorToAddress receives the payout, on the to chain.
	CreatorToAddress string
}

type AcceptOrderRequest struct {
	// ResolverFromAddress is where the resolver's deposit is refunded, on
	// the to chain.
	ResolverFromAddress string
	// ResolverToAddress receives the payout, on the from chain.
	ResolverToAddress string
}

type CustodyAddresses struct {
	Bitcoin string
	Solana  string
}

func (c *CustodyAddresses) set(chain domain.ChainKind, address string) {
	switch chain {
	case domain.ChainBitcoin:
		c.Bitcoin = address
	case domain.ChainSolana:
		c.Solana = address
	}
}

func custodyAddressesOf(order *domain.Order) CustodyAddresses {
	var addrs CustodyAddresses
	addrs.set(order.FromAsset.Chain, order.CustodyFromAddress)
	addrs.set(order.ToAsset.Chain, order.CustodyToAddress)
	return addrs
}

type CustodyBalance struct {
	Asset   domain.Asset
	Address string
	Balance uint64
}

type noopMetrics struct{}

func (noopMetrics) OrderTransition(domain.OrderStatus, domain.OrderStatus)          {}
func (noopMetrics) TransferExecuted(domain.ChainKind, domain.TransferLeg, error) {}
func (noopMetrics) SweepCompleted(int, error)                                   {}

type logAlerts struct{}

func (logAlerts) PartialSettlement(_ context.Context, order domain.Order, err error) {
	log.WithError(err).WithField("order_id", order.Id).Error("order partially settled")
}

var (
	_ ports.MetricsService = noopMetrics{}
	_ ports.AlertService   = logAlerts{}
)
