package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/db/sqlite/sqlc/queries"
	"github.com/ccoveille/go-safecast"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type orderRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewOrderRepository(db *sql.DB) (domain.OrderRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open order repository: db is nil")
	}

	return &orderRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *orderRepository) NextId(ctx context.Context) (uint64, error) {
	id, err := r.querier.NextOrderID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order id: %w", err)
	}
	return safecast.ToUint64(id)
}

func (r *orderRepository) Add(ctx context.Context, order domain.Order) error {
	params, err := toInsertOrderParams(order)
	if err != nil {
		return err
	}

	txBody := func(querierWithTx *queries.Queries) error {
		if err := querierWithTx.InsertOrder(ctx, params); err != nil {
			if sqlErr, ok := err.(*sqlite.Error); ok {
				switch sqlErr.Code() {
				case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
					return domain.NewError(
						domain.KindInvariantViolation, nil, "order %d already exists", order.Id,
					)
				case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
					return domain.Validationf("deposit already claimed by another order")
				}
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return upsertTransfers(ctx, querierWithTx, params.ID, order.Transfers)
	}

	return execTx(ctx, r.db, txBody)
}

func (r *orderRepository) Get(ctx context.Context, id uint64) (*domain.Order, error) {
	orderId, err := safecast.ToInt64(id)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}

	row, err := r.querier.GetOrder(ctx, orderId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return r.toOrder(ctx, r.querier, row)
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	orderId, err := safecast.ToInt64(order.Id)
	if err != nil {
		return domain.ErrOrderNotFound
	}

	txBody := func(querierWithTx *queries.Queries) error {
		n, err := querierWithTx.UpdateOrder(ctx, queries.UpdateOrderParams{
			CreatorFromAddress:  toNullableString(order.CreatorFromAddress),
			CreatorToAddress:    toNullableString(order.CreatorToAddress),
			ResolverPrincipal:   toNullableString(order.ResolverPrincipal),
			ResolverFromAddress: toNullableString(order.ResolverFromAddress),
			ResolverToAddress:   toNullableString(order.ResolverToAddress),
			Secret:              toNullableString(order.Secret),
			Status:              int64(order.Status),
			CreatorDepositTxid:  toNullableString(order.CreatorDepositTxid),
			ResolverDepositTxid: toNullableString(order.ResolverDepositTxid),
			SettlementError:     toNullableString(order.SettlementError),
			ID:                  orderId,
		})
		if err != nil {
			if sqlErr, ok := err.(*sqlite.Error); ok &&
				sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
				return domain.Validationf("deposit already claimed by another order")
			}
			return fmt.Errorf("failed to update order: %w", err)
		}
		if n == 0 {
			return domain.ErrOrderNotFound
		}
		return upsertTransfers(ctx, querierWithTx, orderId, order.Transfers)
	}

	return execTx(ctx, r.db, txBody)
}

func (r *orderRepository) GetAll(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.querier.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return r.toOrders(ctx, rows)
}

func (r *orderRepository) GetByStatus(
	ctx context.Context, statuses ...domain.OrderStatus,
) ([]domain.Order, error) {
	if len(statuses) <= 0 {
		return nil, nil
	}
	values := make([]int64, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, int64(s))
	}
	rows, err := r.querier.ListOrdersByStatus(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by status: %w", err)
	}
	return r.toOrders(ctx, rows)
}

func (r *orderRepository) GetByAddress(ctx context.Context, address string) ([]domain.Order, error) {
	rows, err := r.querier.ListOrdersByAddress(ctx, toNullableString(address))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by address: %w", err)
	}
	return r.toOrders(ctx, rows)
}

func (r *orderRepository) GetByPrincipal(ctx context.Context, principal string) ([]domain.Order, error) {
	rows, err := r.querier.ListOrdersByPrincipal(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by principal: %w", err)
	}
	return r.toOrders(ctx, rows)
}

func (r *orderRepository) GetByDepositTxid(ctx context.Context, txid string) (*domain.Order, error) {
	row, err := r.querier.GetOrderByDepositTxid(ctx, toNullableString(txid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by txid: %w", err)
	}
	return r.toOrder(ctx, r.querier, row)
}

func (r *orderRepository) Close() {
	// nolint
	r.db.Close()
}

func (r *orderRepository) toOrders(ctx context.Context, rows []queries.Order) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := r.toOrder(ctx, r.querier, row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func (r *orderRepository) toOrder(
	ctx context.Context, querier *queries.Queries, row queries.Order,
) (*domain.Order, error) {
	id, err := safecast.ToUint64(row.ID)
	if err != nil {
		return nil, err
	}
	fromAmount, err := safecast.ToUint64(row.FromAmount)
	if err != nil {
		return nil, err
	}
	toAmount, err := safecast.ToUint64(row.ToAmount)
	if err != nil {
		return nil, err
	}
	fromAsset, err := toAsset(row.FromAssetKind, row.FromChain, row.FromMint, row.FromDecimals)
	if err != nil {
		return nil, err
	}
	toAssetValue, err := toAsset(row.ToAssetKind, row.ToChain, row.ToMint, row.ToDecimals)
	if err != nil {
		return nil, err
	}
	secretHash, err := domain.ParseSecretHash(row.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("corrupted secret hash for order %d: %w", row.ID, err)
	}

	transferRows, err := querier.ListTransfersByOrder(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers of order %d: %w", row.ID, err)
	}
	var transfers []domain.Transfer
	for _, t := range transferRows {
		transfer, err := toTransfer(t)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}

	return &domain.Order{
		Id:                  id,
		CreatorPrincipal:    row.CreatorPrincipal,
		CreatorFromAddress:  fromNullableString(row.CreatorFromAddress),
		CreatorToAddress:    fromNullableString(row.CreatorToAddress),
		ResolverPrincipal:   fromNullableString(row.ResolverPrincipal),
		ResolverFromAddress: fromNullableString(row.ResolverFromAddress),
		ResolverToAddress:   fromNullableString(row.ResolverToAddress),
		FromAsset:           fromAsset,
		ToAsset:             toAssetValue,
		FromAmount:          fromAmount,
		ToAmount:            toAmount,
		SecretHash:          secretHash,
		Secret:              fromNullableString(row.Secret),
		Status:              domain.OrderStatus(row.Status),
		CreatedAt:           time.Unix(row.CreatedAt, 0).UTC(),
		TimeoutAt:           time.Unix(row.TimeoutAt, 0).UTC(),
		CreatorDepositTxid:  fromNullableString(row.CreatorDepositTxid),
		ResolverDepositTxid: fromNullableString(row.ResolverDepositTxid),
		CustodyFromAddress:  row.CustodyFromAddress,
		CustodyToAddress:    row.CustodyToAddress,
		Transfers:           transfers,
		SettlementError:     fromNullableString(row.SettlementError),
	}, nil
}

func toInsertOrderParams(order domain.Order) (queries.InsertOrderParams, error) {
	id, err := safecast.ToInt64(order.Id)
	if err != nil {
		return queries.InsertOrderParams{}, err
	}
	fromAmount, err := safecast.ToInt64(order.FromAmount)
	if err != nil {
		return queries.InsertOrderParams{}, domain.Validationf("from amount out of range")
	}
	toAmount, err := safecast.ToInt64(order.ToAmount)
	if err != nil {
		return queries.InsertOrderParams{}, domain.Validationf("to amount out of range")
	}

	return queries.InsertOrderParams{
		ID:                  id,
		CreatorPrincipal:    order.CreatorPrincipal,
		CreatorFromAddress:  toNullableString(order.CreatorFromAddress),
		CreatorToAddress:    toNullableString(order.CreatorToAddress),
		ResolverPrincipal:   toNullableString(order.ResolverPrincipal),
		ResolverFromAddress: toNullableString(order.ResolverFromAddress),
		ResolverToAddress:   toNullableString(order.ResolverToAddress),
		FromAssetKind:       int64(order.FromAsset.Kind),
		FromChain:           int64(order.FromAsset.Chain),
		FromMint:            toNullableString(order.FromAsset.Mint),
		FromDecimals:        int64(order.FromAsset.Decimals),
		ToAssetKind:         int64(order.ToAsset.Kind),
		ToChain:             int64(order.ToAsset.Chain),
		ToMint:              toNullableString(order.ToAsset.Mint),
		ToDecimals:          int64(order.ToAsset.Decimals),
		FromAmount:          fromAmount,
		ToAmount:            toAmount,
		SecretHash:          order.SecretHash.String(),
		Secret:              toNullableString(order.Secret),
		Status:              int64(order.Status),
		CreatedAt:           order.CreatedAt.Unix(),
		TimeoutAt:           order.TimeoutAt.Unix(),
		CreatorDepositTxid:  toNullableString(order.CreatorDepositTxid),
		ResolverDepositTxid: toNullableString(order.ResolverDepositTxid),
		CustodyFromAddress:  order.CustodyFromAddress,
		CustodyToAddress:    order.CustodyToAddress,
		SettlementError:     toNullableString(order.SettlementError),
	}, nil
}

func upsertTransfers(
	ctx context.Context, querier *queries.Queries, orderId int64, transfers []domain.Transfer,
) error {
	for _, t := range transfers {
		amount, err := safecast.ToInt64(t.Amount)
		if err != nil {
			return err
		}
		if err := querier.UpsertTransfer(ctx, queries.UpsertTransferParams{
			OrderID:     orderId,
			Leg:         int64(t.Leg),
			AssetKind:   int64(t.Asset.Kind),
			Chain:       int64(t.Asset.Chain),
			Mint:        toNullableString(t.Asset.Mint),
			Decimals:    int64(t.Asset.Decimals),
			Destination: t.Destination,
			Amount:      amount,
			Txid:        toNullableString(t.Txid),
			Status:      int64(t.Status),
			Error:       toNullableString(t.Error),
			CreatedAt:   t.CreatedAt.UnixMilli(),
			UpdatedAt:   t.UpdatedAt.UnixMilli(),
		}); err != nil {
			return fmt.Errorf("failed to upsert %s transfer: %w", t.Leg, err)
		}
	}
	return nil
}

func toTransfer(row queries.OrderTransfer) (domain.Transfer, error) {
	amount, err := safecast.ToUint64(row.Amount)
	if err != nil {
		return domain.Transfer{}, err
	}
	asset, err := toAsset(row.AssetKind, row.Chain, row.Mint, row.Decimals)
	if err != nil {
		return domain.Transfer{}, err
	}
	return domain.Transfer{
		Leg:         domain.TransferLeg(row.Leg),
		Asset:       asset,
		Destination: row.Destination,
		Amount:      amount,
		Txid:        fromNullableString(row.Txid),
		Status:      domain.TransferStatus(row.Status),
		Error:       fromNullableString(row.Error),
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}

func toAsset(kind, chain int64, mint sql.NullString, decimals int64) (domain.Asset, error) {
	d, err := safecast.ToUint8(decimals)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("invalid asset decimals %d: %w", decimals, err)
	}
	return domain.Asset{
		Kind:     domain.AssetKind(kind),
		Chain:    domain.ChainKind(chain),
		Mint:     fromNullableString(mint),
		Decimals: d,
	}, nil
}
