package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/db"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()

	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func makeOrder(id uint64) domain.Order {
	hash, _ := domain.ParseSecretHash(
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	)
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Order{
		Id:                 id,
		CreatorPrincipal:   "alice",
		CreatorFromAddress: "tb1qcreatorfrom",
		CreatorToAddress:   "CreatorSolanaTo1111111111111111111111111111",
		FromAsset:          domain.NativeAsset(domain.ChainBitcoin),
		ToAsset:            domain.FungibleToken(domain.ChainSolana, usdcMint, 6),
		FromAmount:         100000000,
		ToAmount:           1000000000,
		SecretHash:         hash,
		Status:             domain.OrderAwaitingDeposit,
		CreatedAt:          now,
		TimeoutAt:          now.Add(time.Hour),
		CustodyFromAddress: "tb1qcustody",
		CustodyToAddress:   "CustodySolana111111111111111111111111111111",
	}
}

func TestRepoManager(t *testing.T) {
	dbDir := t.TempDir()
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "badger",
			config: db.ServiceConfig{
				DbType:   "badger",
				DbConfig: []any{"", nil},
			},
		},
		{
			name: "sqlite",
			config: db.ServiceConfig{
				DbType:   "sqlite",
				DbConfig: []any{dbDir},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testOrderRepository(t, svc)
		})
	}
}

func TestPersistence(t *testing.T) {
	tests := []struct {
		name   string
		config func(dir string) db.ServiceConfig
	}{
		{
			name: "badger",
			config: func(dir string) db.ServiceConfig {
				return db.ServiceConfig{DbType: "badger", DbConfig: []any{dir, nil}}
			},
		},
		{
			name: "sqlite",
			config: func(dir string) db.ServiceConfig {
				return db.ServiceConfig{DbType: "sqlite", DbConfig: []any{dir}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()

			svc, err := db.NewService(tt.config(dir))
			require.NoError(t, err)

			id, err := svc.Orders().NextId(ctx)
			require.NoError(t, err)
			order := makeOrder(id)
			order.Status = domain.OrderDepositReceived
			order.CreatorDepositTxid = "deposit-txid"
			order.StartTransfer(
				domain.CreatorRefund, order.FromAsset, order.CreatorFromAddress,
				order.FromAmount, order.CreatedAt,
			).Signed("refund-txid", order.CreatedAt)
			require.NoError(t, svc.Orders().Add(ctx, order))
			svc.Close()

			svc, err = db.NewService(tt.config(dir))
			require.NoError(t, err)
			defer svc.Close()

			got, err := svc.Orders().Get(ctx, id)
			require.NoError(t, err)
			requireOrderEqual(t, order, *got)

			nextId, err := svc.Orders().NextId(ctx)
			require.NoError(t, err)
			require.Greater(t, nextId, id)
		})
	}
}

func TestUnsupportedDbType(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{DbType: "postgres"})
	require.Error(t, err)
}

func testOrderRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("order repository", func(t *testing.T) {
		repo := svc.Orders()

		testNextId(t, repo)
		testAddAndGetOrder(t, repo)
		testUpdateOrder(t, repo)
		testOrderQueries(t, repo)
	})
}

func testNextId(t *testing.T, repo domain.OrderRepository) {
	t.Run("next id", func(t *testing.T) {
		first, err := repo.NextId(ctx)
		require.NoError(t, err)
		require.NotZero(t, first)

		second, err := repo.NextId(ctx)
		require.NoError(t, err)
		require.Greater(t, second, first)
	})
}

func testAddAndGetOrder(t *testing.T, repo domain.OrderRepository) {
	t.Run("add and get order", func(t *testing.T) {
		id, err := repo.NextId(ctx)
		require.NoError(t, err)

		order, err := repo.Get(ctx, id)
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
		require.Nil(t, order)

		testOrder := makeOrder(id)
		err = repo.Add(ctx, testOrder)
		require.NoError(t, err)

		order, err = repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, order)
		requireOrderEqual(t, testOrder, *order)

		err = repo.Add(ctx, testOrder)
		require.Error(t, err)
		require.True(t, domain.IsKind(err, domain.KindInvariantViolation))
	})
}

func testUpdateOrder(t *testing.T, repo domain.OrderRepository) {
	t.Run("update order", func(t *testing.T) {
		id, err := repo.NextId(ctx)
		require.NoError(t, err)

		order := makeOrder(id)
		require.NoError(t, repo.Add(ctx, order))

		require.NoError(t, order.DepositReceived("creator-deposit-"+order.CreatedAt.String()))
		require.NoError(t, order.Accepted("bob", "ResolverSolanaFrom", "tb1qresolverto"))
		require.NoError(t, order.ResolverDeposited("resolver-deposit-"+order.CreatedAt.String()))

		now := time.Now().UTC()
		order.StartTransfer(
			domain.CreatorPayout, order.ToAsset, order.CreatorToAddress, order.ToAmount, now,
		).Broadcast("payout-1", now)
		order.StartTransfer(
			domain.ResolverPayout, order.FromAsset, order.ResolverToAddress, order.FromAmount, now,
		).Failed("insufficient funds", now)
		order.PartiallySettled("resolver payout failed")

		require.NoError(t, repo.Update(ctx, order))

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		requireOrderEqual(t, order, *got)

		// Transfers are updated in place.
		transfer, ok := order.Transfer(domain.ResolverPayout)
		require.True(t, ok)
		transfer.Broadcast("payout-2", now)
		require.NoError(t, order.Completed("hello"))
		require.NoError(t, repo.Update(ctx, order))

		got, err = repo.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.OrderCompleted, got.Status)
		require.Equal(t, "hello", got.Secret)
		require.Empty(t, got.SettlementError)
		require.Len(t, got.Transfers, 2)
		gotTransfer, ok := got.Transfer(domain.ResolverPayout)
		require.True(t, ok)
		require.Equal(t, domain.TransferBroadcast, gotTransfer.Status)
		require.Equal(t, "payout-2", gotTransfer.Txid)

		missing := makeOrder(id + 1000)
		err = repo.Update(ctx, missing)
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func testOrderQueries(t *testing.T, repo domain.OrderRepository) {
	t.Run("order queries", func(t *testing.T) {
		id, err := repo.NextId(ctx)
		require.NoError(t, err)
		order := makeOrder(id)
		order.CreatorPrincipal = "carol"
		order.CreatorFromAddress = "tb1qcarol"
		require.NoError(t, repo.Add(ctx, order))

		id, err = repo.NextId(ctx)
		require.NoError(t, err)
		deposited := makeOrder(id)
		deposited.CreatorPrincipal = "dave"
		require.NoError(t, deposited.DepositReceived("dave-deposit"))
		require.NoError(t, deposited.Accepted("carol", "CarolSolana", "tb1qcarolto"))
		require.NoError(t, repo.Add(ctx, deposited))

		byStatus, err := repo.GetByStatus(ctx, domain.OrderDepositReceived)
		require.NoError(t, err)
		require.Contains(t, ids(byStatus), deposited.Id)
		require.NotContains(t, ids(byStatus), order.Id)

		byStatus, err = repo.GetByStatus(ctx, domain.NonTerminalStatuses...)
		require.NoError(t, err)
		require.Subset(t, ids(byStatus), []uint64{order.Id, deposited.Id})

		none, err := repo.GetByStatus(ctx)
		require.NoError(t, err)
		require.Empty(t, none)

		byAddress, err := repo.GetByAddress(ctx, "tb1qcarol")
		require.NoError(t, err)
		require.Equal(t, []uint64{order.Id}, ids(byAddress))

		byAddress, err = repo.GetByAddress(ctx, "tb1qcarolto")
		require.NoError(t, err)
		require.Equal(t, []uint64{deposited.Id}, ids(byAddress))

		byPrincipal, err := repo.GetByPrincipal(ctx, "carol")
		require.NoError(t, err)
		require.Equal(t, []uint64{order.Id, deposited.Id}, ids(byPrincipal))

		byTxid, err := repo.GetByDepositTxid(ctx, "dave-deposit")
		require.NoError(t, err)
		require.Equal(t, deposited.Id, byTxid.Id)

		_, err = repo.GetByDepositTxid(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		require.Subset(t, ids(all), []uint64{order.Id, deposited.Id})
	})
}

func ids(orders []domain.Order) []uint64 {
	list := make([]uint64, 0, len(orders))
	for _, o := range orders {
		list = append(list, o.Id)
	}
	return list
}

func requireOrderEqual(t *testing.T, expected, got domain.Order) {
	t.Helper()

	require.Equal(t, expected.Id, got.Id)
	require.Equal(t, expected.CreatorPrincipal, got.CreatorPrincipal)
	require.Equal(t, expected.CreatorFromAddress, got.CreatorFromAddress)
	require.Equal(t, expected.CreatorToAddress, got.CreatorToAddress)
	require.Equal(t, expected.ResolverPrincipal, got.ResolverPrincipal)
	require.Equal(t, expected.ResolverFromAddress, got.ResolverFromAddress)
	require.Equal(t, expected.ResolverToAddress, got.ResolverToAddress)
	require.Equal(t, expected.FromAsset, got.FromAsset)
	require.Equal(t, expected.ToAsset, got.ToAsset)
	require.Equal(t, expected.FromAmount, got.FromAmount)
	require.Equal(t, expected.ToAmount, got.ToAmount)
	require.Equal(t, expected.SecretHash, got.SecretHash)
	require.Equal(t, expected.Secret, got.Secret)
	require.Equal(t, expected.Status, got.Status)
	require.True(t, expected.CreatedAt.Equal(got.CreatedAt))
	require.True(t, expected.TimeoutAt.Equal(got.TimeoutAt))
	require.Equal(t, expected.CreatorDepositTxid, got.CreatorDepositTxid)
	require.Equal(t, expected.ResolverDepositTxid, got.ResolverDepositTxid)
	require.Equal(t, expected.CustodyFromAddress, got.CustodyFromAddress)
	require.Equal(t, expected.CustodyToAddress, got.CustodyToAddress)
	require.Equal(t, expected.SettlementError, got.SettlementError)
	require.Len(t, got.Transfers, len(expected.Transfers))
	for _, want := range expected.Transfers {
		have, ok := got.Transfer(want.Leg)
		require.True(t, ok)
		require.Equal(t, want.Asset, have.Asset)
		require.Equal(t, want.Destination, have.Destination)
		require.Equal(t, want.Amount, have.Amount)
		require.Equal(t, want.Txid, have.Txid)
		require.Equal(t, want.Status, have.Status)
		require.Equal(t, want.Error, have.Error)
	}
}
