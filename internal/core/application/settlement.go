package application

import (
	"context"
	"fmt"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type transferPlan struct {
	leg         domain.TransferLeg
	asset       domain.Asset
	destination string
	amount      uint64
}

// settlementPlan pays the creator first, out of the resolver's deposit, then
// the resolver out of the creator's deposit.
func settlementPlan(order *domain.Order) []transferPlan {
	return []transferPlan{
		{domain.CreatorPayout, order.ToAsset, order.CreatorToAddress, order.ToAmount},
		{domain.ResolverPayout, order.FromAsset, order.ResolverToAddress, order.FromAmount},
	}
}

func creatorRefund(order *domain.Order) transferPlan {
	return transferPlan{domain.CreatorRefund, order.FromAsset, order.CreatorFromAddress, order.FromAmount}
}

func resolverRefund(order *domain.Order) transferPlan {
	return transferPlan{domain.ResolverRefund, order.ToAsset, order.ResolverFromAddress, order.ToAmount}
}

// refundPlan returns the refunds of the deposits actually received.
func refundPlan(order *domain.Order) []transferPlan {
	plans := make([]transferPlan, 0, 2)
	if order.CreatorDepositTxid != "" {
		plans = append(plans, creatorRefund(order))
	}
	if order.ResolverDepositTxid != "" {
		plans = append(plans, resolverRefund(order))
	}
	return plans
}

// settle pays out both legs of the order and completes it. If the first
// payout definitively did not go out, nothing changes and the error is
// returned. Any other failure leaves the order partially settled.
func (m *OrderStateMachine) settle(
	ctx context.Context, order *domain.Order, secret string, allowResend bool,
) error {
	for i, plan := range settlementPlan(order) {
		err := m.executeLeg(ctx, order, plan, allowResend)
		if err == nil {
			continue
		}

		// The first payout can be retried by the creator as long as it is
		// known not to be on chain, or it could not be looked up at all.
		transfer, _ := order.Transfer(plan.leg)
		if i == 0 && !order.IsPartiallySettled() &&
			(!transfer.InDoubt() || domain.IsKind(err, domain.KindExternalUnavailable)) {
			return err
		}

		// The secret is kept so that reconciliation can complete the order.
		order.Secret = secret
		order.PartiallySettled(fmt.Sprintf("%s: %s", plan.leg, err))
		if updateErr := m.repo.Update(ctx, *order); updateErr != nil {
			log.WithError(updateErr).WithField("order_id", order.Id).Error(
				"failed to persist partial settlement",
			)
		}
		m.alerts.PartialSettlement(ctx, *order, err)
		return domain.NewError(
			domain.KindPartialSettlement, err, "order %d partially settled", order.Id,
		)
	}

	return m.transition(ctx, order, func() error {
		return order.Completed(secret)
	})
}

// executeLeg sends one transfer of the order unless the ledger shows it was
// already sent. A transfer signed but not known to be on chain is looked up
// instead of rebuilt, and sent again only if allowResend is set and the
// chain does not know it.
func (m *OrderStateMachine) executeLeg(
	ctx context.Context, order *domain.Order, plan transferPlan, allowResend bool,
) error {
	adapter := m.adapters[plan.asset.Chain]
	logger := log.WithField("order_id", order.Id).WithField("leg", plan.leg.String())

	transfer := order.StartTransfer(plan.leg, plan.asset, plan.destination, plan.amount, m.now())
	switch {
	case transfer.Status == domain.TransferBroadcast:
		return nil
	case transfer.InDoubt():
		status, err := adapter.GetTransactionStatus(ctx, transfer.Txid)
		if err != nil {
			return chainError(err, "failed to look up %s transfer %s", plan.leg, transfer.Txid)
		}
		switch status {
		case ports.TxInMempool, ports.TxConfirmed:
			transfer.Broadcast("", m.now())
			logger.WithField("txid", transfer.Txid).Info("transfer found on chain")
			return m.persist(ctx, order)
		case ports.TxRejected:
			transfer.Failed("rejected on chain", m.now())
			if err := m.persist(ctx, order); err != nil {
				return err
			}
			if !allowResend {
				return domain.NewError(
					domain.KindCustodyExecution, nil,
					"%s transfer %s was rejected on chain", plan.leg, transfer.Txid,
				)
			}
		default:
			if !allowResend {
				return domain.NewError(
					domain.KindCustodyExecution, nil,
					"%s transfer %s is not known to the chain", plan.leg, transfer.Txid,
				)
			}
			logger.WithField("txid", transfer.Txid).Warn("transfer not on chain, sending again")
		}
		transfer.Restart(m.now())
	case transfer.Status == domain.TransferFailed:
		transfer.Restart(m.now())
	}

	if err := m.persist(ctx, order); err != nil {
		return err
	}

	signed := false
	txid, err := adapter.SendFunds(ctx, ports.SendRequest{
		SourceTag:   m.custodyTag,
		Destination: plan.destination,
		Asset:       plan.asset,
		Amount:      plan.amount,
		OnSigned: func(txid string) error {
			transfer.Signed(txid, m.now())
			if err := m.persist(ctx, order); err != nil {
				return err
			}
			signed = true
			return nil
		},
	})
	m.metrics.TransferExecuted(plan.asset.Chain, plan.leg, err)

	if err != nil {
		if !signed || ports.ChainErrKind(err) != ports.ChainErrTransient {
			transfer.Failed(err.Error(), m.now())
		}
		if persistErr := m.persist(ctx, order); persistErr != nil {
			logger.WithError(persistErr).Error("failed to persist transfer failure")
		}
		logger.WithError(err).Warnf("failed to send %d %s to %s", plan.amount, plan.asset, plan.destination)

		if !transfer.InDoubt() && ports.ChainErrKind(err) == ports.ChainErrTransient {
			return domain.NewError(domain.KindExternalUnavailable, err, "%s transfer failed", plan.leg)
		}
		return domain.NewError(domain.KindCustodyExecution, err, "%s transfer failed", plan.leg)
	}

	transfer.Broadcast(txid, m.now())
	logger.WithField("txid", txid).Infof("sent %d %s to %s", plan.amount, plan.asset, plan.destination)
	return m.persist(ctx, order)
}

func (m *OrderStateMachine) persist(ctx context.Context, order *domain.Order) error {
	if err := m.repo.Update(ctx, *order); err != nil {
		return storeError(err)
	}
	return nil
}
