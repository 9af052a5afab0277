package badgerdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	orderDir       = "orders"
	orderSeqKey    = "order_id"
	orderSeqLeases = 10
)

type orderRepository struct {
	store *badgerhold.Store
	seq   *badger.Sequence
}

func NewOrderRepository(baseDir string, logger badger.Logger) (domain.OrderRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, orderDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open order store: %s", err)
	}
	seq, err := store.Badger().GetSequence([]byte(orderSeqKey), orderSeqLeases)
	if err != nil {
		// nolint:all
		store.Close()
		return nil, fmt.Errorf("failed to open order id sequence: %s", err)
	}
	return &orderRepository{store, seq}, nil
}

func (r *orderRepository) NextId(_ context.Context) (uint64, error) {
	n, err := r.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order id: %w", err)
	}
	// badger sequences start at zero, order ids at one.
	return n + 1, nil
}

func (r *orderRepository) Add(_ context.Context, order domain.Order) error {
	err := r.store.Insert(order.Id, toOrderData(order))
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return domain.NewError(domain.KindInvariantViolation, nil, "order %d already exists", order.Id)
	}
	return err
}

func (r *orderRepository) Get(_ context.Context, id uint64) (*domain.Order, error) {
	var data orderData
	err := r.store.Get(id, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order := data.toOrder()
	return &order, nil
}

func (r *orderRepository) Update(_ context.Context, order domain.Order) error {
	err := r.store.Update(order.Id, toOrderData(order))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrOrderNotFound
	}
	return err
}

func (r *orderRepository) GetAll(_ context.Context) ([]domain.Order, error) {
	return r.find(nil)
}

func (r *orderRepository) GetByStatus(
	_ context.Context, statuses ...domain.OrderStatus,
) ([]domain.Order, error) {
	if len(statuses) <= 0 {
		return nil, nil
	}
	return r.find(badgerhold.Where("Status").In(badgerhold.Slice(statuses)...).Index("Status"))
}

func (r *orderRepository) GetByAddress(_ context.Context, address string) ([]domain.Order, error) {
	query := badgerhold.Where("CreatorFromAddress").Eq(address).
		Or(badgerhold.Where("CreatorToAddress").Eq(address)).
		Or(badgerhold.Where("ResolverFromAddress").Eq(address)).
		Or(badgerhold.Where("ResolverToAddress").Eq(address))
	return r.find(query)
}

func (r *orderRepository) GetByPrincipal(_ context.Context, principal string) ([]domain.Order, error) {
	query := badgerhold.Where("CreatorPrincipal").Eq(principal).
		Or(badgerhold.Where("ResolverPrincipal").Eq(principal))
	return r.find(query)
}

func (r *orderRepository) GetByDepositTxid(_ context.Context, txid string) (*domain.Order, error) {
	query := badgerhold.Where("CreatorDepositTxid").Eq(txid).
		Or(badgerhold.Where("ResolverDepositTxid").Eq(txid))
	orders, err := r.find(query)
	if err != nil {
		return nil, err
	}
	if len(orders) <= 0 {
		return nil, domain.ErrOrderNotFound
	}
	return &orders[0], nil
}

func (r *orderRepository) Close() {
	// nolint:all
	r.seq.Release()
	// nolint:all
	r.store.Close()
}

func (r *orderRepository) find(query *badgerhold.Query) ([]domain.Order, error) {
	var list []orderData
	if err := r.store.Find(&list, query); err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(list))
	for _, data := range list {
		orders = append(orders, data.toOrder())
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return orders, nil
}

type assetData struct {
	Kind     domain.AssetKind
	Chain    domain.ChainKind
	Mint     string
	Decimals uint8
}

type transferData struct {
	Leg         domain.TransferLeg
	Asset       assetData
	Destination string
	Amount      uint64
	Txid        string
	Status      domain.TransferStatus
	Error       string
	CreatedAt   int64
	UpdatedAt   int64
}

type orderData struct {
	Id uint64 `badgerhold:"key"`

	CreatorPrincipal   string
	CreatorFromAddress string
	CreatorToAddress   string

	ResolverPrincipal   string
	ResolverFromAddress string
	ResolverToAddress   string

	FromAsset  assetData
	ToAsset    assetData
	FromAmount uint64
	ToAmount   uint64

	SecretHash domain.SecretHash
	Secret     string

	Status    domain.OrderStatus `badgerhold:"index"`
	CreatedAt int64
	TimeoutAt int64

	CreatorDepositTxid  string
	ResolverDepositTxid string

	CustodyFromAddress string
	CustodyToAddress   string

	Transfers       []transferData
	SettlementError string
}

func toAssetData(a domain.Asset) assetData {
	return assetData{Kind: a.Kind, Chain: a.Chain, Mint: a.Mint, Decimals: a.Decimals}
}

func (a assetData) toAsset() domain.Asset {
	return domain.Asset{Kind: a.Kind, Chain: a.Chain, Mint: a.Mint, Decimals: a.Decimals}
}

func toOrderData(o domain.Order) orderData {
	transfers := make([]transferData, 0, len(o.Transfers))
	for _, t := range o.Transfers {
		transfers = append(transfers, transferData{
			Leg:         t.Leg,
			Asset:       toAssetData(t.Asset),
			Destination: t.Destination,
			Amount:      t.Amount,
			Txid:        t.Txid,
			Status:      t.Status,
			Error:       t.Error,
			CreatedAt:   t.CreatedAt.UnixMilli(),
			UpdatedAt:   t.UpdatedAt.UnixMilli(),
		})
	}

	return orderData{
		Id:                  o.Id,
		CreatorPrincipal:    o.CreatorPrincipal,
		CreatorFromAddress:  o.CreatorFromAddress,
		CreatorToAddress:    o.CreatorToAddress,
		ResolverPrincipal:   o.ResolverPrincipal,
		ResolverFromAddress: o.ResolverFromAddress,
		ResolverToAddress:   o.ResolverToAddress,
		FromAsset:           toAssetData(o.FromAsset),
		ToAsset:             toAssetData(o.ToAsset),
		FromAmount:          o.FromAmount,
		ToAmount:            o.ToAmount,
		SecretHash:          o.SecretHash,
		Secret:              o.Secret,
		Status:              o.Status,
		CreatedAt:           o.CreatedAt.Unix(),
		TimeoutAt:           o.TimeoutAt.Unix(),
		CreatorDepositTxid:  o.CreatorDepositTxid,
		ResolverDepositTxid: o.ResolverDepositTxid,
		CustodyFromAddress:  o.CustodyFromAddress,
		CustodyToAddress:    o.CustodyToAddress,
		Transfers:           transfers,
		SettlementError:     o.SettlementError,
	}
}

func (d orderData) toOrder() domain.Order {
	var transfers []domain.Transfer
	for _, t := range d.Transfers {
		transfers = append(transfers, domain.Transfer{
			Leg:         t.Leg,
			Asset:       t.Asset.toAsset(),
			Destination: t.Destination,
			Amount:      t.Amount,
			Txid:        t.Txid,
			Status:      t.Status,
			Error:       t.Error,
			CreatedAt:   time.UnixMilli(t.CreatedAt).UTC(),
			UpdatedAt:   time.UnixMilli(t.UpdatedAt).UTC(),
		})
	}

	return domain.Order{
		Id:                  d.Id,
		CreatorPrincipal:    d.CreatorPrincipal,
		CreatorFromAddress:  d.CreatorFromAddress,
		CreatorToAddress:    d.CreatorToAddress,
		ResolverPrincipal:   d.ResolverPrincipal,
		ResolverFromAddress: d.ResolverFromAddress,
		ResolverToAddress:   d.ResolverToAddress,
		FromAsset:           d.FromAsset.toAsset(),
		ToAsset:             d.ToAsset.toAsset(),
		FromAmount:          d.FromAmount,
		ToAmount:            d.ToAmount,
		SecretHash:          d.SecretHash,
		Secret:              d.Secret,
		Status:              d.Status,
		CreatedAt:           time.Unix(d.CreatedAt, 0).UTC(),
		TimeoutAt:           time.Unix(d.TimeoutAt, 0).UTC(),
		CreatorDepositTxid:  d.CreatorDepositTxid,
		ResolverDepositTxid: d.ResolverDepositTxid,
		CustodyFromAddress:  d.CustodyFromAddress,
		CustodyToAddress:    d.CustodyToAddress,
		Transfers:           transfers,
		SettlementError:     d.SettlementError,
	}
}
