package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrder() *domain.Order {
	hash, _ := domain.ParseSecretHash(
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	)
	return &domain.Order{
		Id:                 1,
		CreatorPrincipal:   "alice",
		CreatorFromAddress: "alice-btc",
		CreatorToAddress:   "alice-sol",
		FromAsset:          domain.NativeAsset(domain.ChainBitcoin),
		ToAsset:            domain.NativeAsset(domain.ChainSolana),
		FromAmount:         100000000,
		ToAmount:           1000000000,
		SecretHash:         hash,
		Status:             domain.OrderAwaitingDeposit,
		CreatedAt:          now,
		TimeoutAt:          now.Add(time.Hour),
	}
}

func TestOrderTransitions(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		require.Equal(t, domain.OrderDepositReceived, o.Status)

		require.NoError(t, o.Accepted("bob", "bob-sol", "bob-btc"))
		require.Equal(t, domain.OrderDepositReceived, o.Status)
		require.True(t, o.HasResolver())

		require.NoError(t, o.ResolverDeposited("rdep"))
		require.Equal(t, domain.OrderResolverDeposited, o.Status)

		require.NoError(t, o.Completed("hello"))
		require.Equal(t, domain.OrderCompleted, o.Status)
		require.Equal(t, "hello", o.Secret)
		require.True(t, o.Status.IsTerminal())
	})

	t.Run("deposit twice", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		err := o.DepositReceived("other")
		require.True(t, domain.IsKind(err, domain.KindValidation))
		require.Equal(t, "dep", o.CreatorDepositTxid)
	})

	t.Run("accept", func(t *testing.T) {
		o := newOrder()
		require.Error(t, o.Accepted("bob", "bob-sol", "bob-btc"))

		require.NoError(t, o.DepositReceived("dep"))
		err := o.Accepted("alice", "alice-sol", "alice-btc")
		require.ErrorContains(t, err, "own order")

		require.NoError(t, o.Accepted("bob", "bob-sol", "bob-btc"))
		require.Error(t, o.Accepted("carol", "carol-sol", "carol-btc"))
		require.Equal(t, "bob", o.ResolverPrincipal)
	})

	t.Run("resolver deposit requires a resolver", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		require.Error(t, o.ResolverDeposited("rdep"))
		require.Equal(t, domain.OrderDepositReceived, o.Status)
	})

	t.Run("refund blocks acceptance", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		require.False(t, o.RefundStarted())
		o.StartTransfer(domain.CreatorRefund, o.FromAsset, o.CreatorFromAddress, o.FromAmount, now).
			Signed("refund", now)
		require.True(t, o.RefundStarted())

		err := o.Accepted("bob", "bob-sol", "bob-btc")
		require.True(t, domain.IsKind(err, domain.KindValidation))
		require.False(t, o.HasResolver())

		o.ResolverPrincipal = "bob"
		err = o.ResolverDeposited("rdep")
		require.True(t, domain.IsKind(err, domain.KindValidation))
		require.Equal(t, domain.OrderDepositReceived, o.Status)
		require.Empty(t, o.ResolverDepositTxid)
	})

	t.Run("complete requires both deposits", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		err := o.Completed("hello")
		require.True(t, domain.IsKind(err, domain.KindInvariantViolation))
	})

	t.Run("cancel", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, o.Cancelled())
		require.Equal(t, domain.OrderCancelled, o.Status)
		require.Error(t, o.Cancelled())

		o = newOrder()
		require.NoError(t, o.DepositReceived("dep"))
		require.NoError(t, o.Accepted("bob", "bob-sol", "bob-btc"))
		require.Error(t, o.Cancelled())
	})

	t.Run("expire", func(t *testing.T) {
		for _, status := range domain.NonTerminalStatuses {
			o := newOrder()
			o.Status = status
			require.NoError(t, o.Expired())
			require.Equal(t, domain.OrderExpired, o.Status)
		}
		o := newOrder()
		o.Status = domain.OrderCompleted
		require.Error(t, o.Expired())
	})

	t.Run("timeout", func(t *testing.T) {
		o := newOrder()
		require.False(t, o.IsExpired(now.Add(time.Hour-time.Second)))
		require.True(t, o.IsExpired(now.Add(time.Hour)))
	})
}

func TestOrderTransfers(t *testing.T) {
	o := newOrder()
	_, ok := o.Transfer(domain.CreatorRefund)
	require.False(t, ok)

	tr := o.StartTransfer(domain.CreatorRefund, o.FromAsset, o.CreatorFromAddress, o.FromAmount, now)
	require.Equal(t, domain.TransferPending, tr.Status)
	require.False(t, tr.InDoubt())

	tr.Signed("txid", now)
	require.True(t, tr.InDoubt())

	// Starting again returns the same entry.
	again := o.StartTransfer(domain.CreatorRefund, o.FromAsset, o.CreatorFromAddress, o.FromAmount, now)
	require.Equal(t, "txid", again.Txid)
	require.Len(t, o.Transfers, 1)

	tr.Failed("rejected", now)
	require.False(t, tr.InDoubt())
	tr.Restart(now)
	require.Equal(t, domain.TransferPending, tr.Status)
	require.Empty(t, tr.Txid)
	require.Empty(t, tr.Error)

	tr.Broadcast("txid2", now)
	require.Equal(t, domain.TransferBroadcast, tr.Status)
	got, ok := o.Transfer(domain.CreatorRefund)
	require.True(t, ok)
	require.Equal(t, "txid2", got.Txid)
}

func TestHasParticipant(t *testing.T) {
	o := newOrder()
	require.True(t, o.HasParticipant("alice-btc"))
	require.False(t, o.HasParticipant("bob-btc"))
	require.False(t, o.HasParticipant(""))
}

func TestParseSecretHash(t *testing.T) {
	_, err := domain.ParseSecretHash("abcd")
	require.Error(t, err)
	_, err = domain.ParseSecretHash(fmt.Sprintf("%064s", "zz"))
	require.Error(t, err)

	h, err := domain.ParseSecretHash(
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	)
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h.String())
}

func TestAssetValidate(t *testing.T) {
	fixtures := []struct {
		name  string
		asset domain.Asset
		valid bool
	}{
		{"bitcoin", domain.NativeAsset(domain.ChainBitcoin), true},
		{"solana", domain.NativeAsset(domain.ChainSolana), true},
		{"spl token", domain.FungibleToken(domain.ChainSolana, "mint", 6), true},
		{"token on bitcoin", domain.FungibleToken(domain.ChainBitcoin, "mint", 6), false},
		{"token without mint", domain.FungibleToken(domain.ChainSolana, "", 6), false},
		{"native with mint", domain.Asset{Chain: domain.ChainSolana, Mint: "mint"}, false},
		{"unknown chain", domain.Asset{}, false},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			err := f.asset.Validate()
			if f.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", domain.NewError(domain.KindPartialSettlement, nil, "order %d", 1))
	require.Equal(t, domain.KindPartialSettlement, domain.KindOf(err))
	require.True(t, domain.IsKind(err, domain.KindPartialSettlement))
	require.False(t, domain.IsKind(nil, domain.KindValidation))
	require.Equal(t, domain.KindInvariantViolation, domain.KindOf(errors.New("boom")))
	require.Equal(t, domain.KindValidation, domain.KindOf(domain.ErrOrderNotFound))
}
