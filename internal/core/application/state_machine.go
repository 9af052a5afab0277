package application

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// OrderStateMachine executes every order transition. Transitions of the same
// order are serialized, each one reads the order from the store after
// taking the order's lock. Deposit claims are also serialized by txid so
// that a transaction can fund at most one order.
type OrderStateMachine struct {
	repo     domain.OrderRepository
	adapters map[domain.ChainKind]ports.ChainAdapter
	metrics  ports.MetricsService
	alerts   ports.AlertService
	locker   *keyedLocker[uint64]
	claims   *keyedLocker[string]

	minTimeout time.Duration
	custodyTag string
	now        func() time.Time
}

func NewOrderStateMachine(
	repo domain.OrderRepository, adapters []ports.ChainAdapter, cfg Config,
	metrics ports.MetricsService, alerts ports.AlertService,
) (*OrderStateMachine, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing order repository")
	}
	byChain := make(map[domain.ChainKind]ports.ChainAdapter, len(adapters))
	for _, a := range adapters {
		if _, ok := byChain[a.Chain()]; ok {
			return nil, fmt.Errorf("duplicate adapter for chain %s", a.Chain())
		}
		byChain[a.Chain()] = a
	}
	for _, chain := range []domain.ChainKind{domain.ChainBitcoin, domain.ChainSolana} {
		if _, ok := byChain[chain]; !ok {
			return nil, fmt.Errorf("missing adapter for chain %s", chain)
		}
	}

	minTimeout := cfg.MinOrderTimeout
	if minTimeout <= 0 {
		minTimeout = DefaultMinOrderTimeout
	}
	custodyTag := cfg.CustodyTag
	if custodyTag == "" {
		custodyTag = DefaultCustodyTag
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if alerts == nil {
		alerts = logAlerts{}
	}

	return &OrderStateMachine{
		repo:       repo,
		adapters:   byChain,
		metrics:    metrics,
		alerts:     alerts,
		locker:     newKeyedLocker[uint64](),
		claims:     newKeyedLocker[string](),
		minTimeout: minTimeout,
		custodyTag: custodyTag,
		now:        time.Now,
	}, nil
}

func (m *OrderStateMachine) CreateOrder(
	ctx context.Context, principal string, req CreateOrderRequest,
) (*domain.Order, error) {
	if principal == "" {
		return nil, domain.Validationf("missing principal")
	}
	if req.FromAmount == 0 || req.ToAmount == 0 {
		return nil, domain.Validationf("amounts must be greater than zero")
	}
	if req.Timeout < m.minTimeout {
		return nil, domain.Validationf(
			"timeout %s is below the minimum of %s", req.Timeout, m.minTimeout,
		)
	}
	secretHash, err := domain.ParseSecretHash(strings.ToLower(req.SecretHash))
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, err, "invalid secret hash")
	}
	if err := req.FromAsset.Validate(); err != nil {
		return nil, domain.NewError(domain.KindValidation, err, "invalid from asset")
	}
	if err := req.ToAsset.Validate(); err != nil {
		return nil, domain.NewError(domain.KindValidation, err, "invalid to asset")
	}
	if req.FromAsset.Chain == req.ToAsset.Chain {
		return nil, domain.Validationf("both legs are on %s", req.FromAsset.Chain)
	}

	fromAdapter := m.adapters[req.FromAsset.Chain]
	toAdapter := m.adapters[req.ToAsset.Chain]
	if err := validateAddress(fromAdapter, "creator refund", req.CreatorFromAddress); err != nil {
		return nil, err
	}
	if err := validateAddress(toAdapter, "creator payout", req.CreatorToAddress); err != nil {
		return nil, err
	}

	custodyFrom, err := fromAdapter.DeriveCustodyAddress(ctx, m.custodyTag)
	if err != nil {
		return nil, chainError(err, "failed to derive %s custody address", fromAdapter.Chain())
	}
	custodyTo, err := toAdapter.DeriveCustodyAddress(ctx, m.custodyTag)
	if err != nil {
		return nil, chainError(err, "failed to derive %s custody address", toAdapter.Chain())
	}

	id, err := m.repo.NextId(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	createdAt := m.now().Truncate(time.Second)
	order := domain.Order{
		Id:                 id,
		CreatorPrincipal:   principal,
		CreatorFromAddress: req.CreatorFromAddress,
		CreatorToAddress:   req.CreatorToAddress,
		FromAsset:          req.FromAsset,
		ToAsset:            req.ToAsset,
		FromAmount:         req.FromAmount,
		ToAmount:           req.ToAmount,
		SecretHash:         secretHash,
		Status:             domain.OrderAwaitingDeposit,
		CreatedAt:          createdAt,
		TimeoutAt:          createdAt.Add(req.Timeout).Truncate(time.Second),
		CustodyFromAddress: custodyFrom,
		CustodyToAddress:   custodyTo,
	}
	if err := m.repo.Add(ctx, order); err != nil {
		return nil, storeError(err)
	}

	log.WithField("order_id", id).Infof(
		"order created: %d %s for %d %s, timeout at %s",
		order.FromAmount, order.FromAsset, order.ToAmount, order.ToAsset,
		order.TimeoutAt.Format(time.RFC3339),
	)
	return &order, nil
}

// ConfirmDeposit verifies the creator's deposit. Anyone can submit it, the
// first verified transaction wins.
func (m *OrderStateMachine) ConfirmDeposit(ctx context.Context, id uint64, txid string) error {
	txid = strings.TrimSpace(txid)
	if txid == "" {
		return domain.Validationf("missing txid")
	}

	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderAwaitingDeposit {
		return domain.Validationf(
			"order %d is %s, expected %s", id, order.Status, domain.OrderAwaitingDeposit,
		)
	}
	release := m.claims.Lock(txid)
	defer release()

	if err := m.checkUnclaimed(ctx, txid); err != nil {
		return err
	}
	if err := m.verify(
		ctx, txid, order.CustodyFromAddress, order.FromAsset, order.FromAmount,
	); err != nil {
		return err
	}

	return m.transition(ctx, order, func() error {
		return order.DepositReceived(txid)
	})
}

func (m *OrderStateMachine) AcceptOrder(
	ctx context.Context, principal string, id uint64, req AcceptOrderRequest,
) (*domain.Order, error) {
	if principal == "" {
		return nil, domain.Validationf("missing principal")
	}

	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderDepositReceived && order.IsExpired(m.now()) {
		return nil, domain.Validationf("order %d has timed out", id)
	}
	if err := validateAddress(
		m.adapters[order.ToAsset.Chain], "resolver refund", req.ResolverFromAddress,
	); err != nil {
		return nil, err
	}
	if err := validateAddress(
		m.adapters[order.FromAsset.Chain], "resolver payout", req.ResolverToAddress,
	); err != nil {
		return nil, err
	}

	if err := order.Accepted(principal, req.ResolverFromAddress, req.ResolverToAddress); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, *order); err != nil {
		return nil, storeError(err)
	}

	log.WithField("order_id", id).Infof("order accepted by %s", principal)
	return order, nil
}

func (m *OrderStateMachine) ConfirmResolverDeposit(
	ctx context.Context, principal string, id uint64, txid string,
) error {
	txid = strings.TrimSpace(txid)
	if txid == "" {
		return domain.Validationf("missing txid")
	}

	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderDepositReceived {
		return domain.Validationf(
			"order %d is %s, expected %s", id, order.Status, domain.OrderDepositReceived,
		)
	}
	if !order.HasResolver() {
		return domain.Validationf("order %d has not been accepted", id)
	}
	if principal != order.ResolverPrincipal {
		return domain.Validationf("only the resolver can confirm the resolver deposit")
	}
	if order.RefundStarted() {
		return domain.Validationf("order %d is being cancelled", id)
	}
	release := m.claims.Lock(txid)
	defer release()

	if err := m.checkUnclaimed(ctx, txid); err != nil {
		return err
	}
	if err := m.verify(
		ctx, txid, order.CustodyToAddress, order.ToAsset, order.ToAmount,
	); err != nil {
		return err
	}

	return m.transition(ctx, order, func() error {
		return order.ResolverDeposited(txid)
	})
}

// RevealSecret checks the secret against the order's hashlock and pays out
// both legs. Once started, settlement is not interrupted by ctx cancellation.
func (m *OrderStateMachine) RevealSecret(
	ctx context.Context, principal string, id uint64, secret string,
) error {
	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderCompleted {
		return domain.Validationf("order %d already completed", id)
	}
	if order.IsPartiallySettled() {
		return domain.NewError(
			domain.KindPartialSettlement, nil,
			"order %d is partially settled and needs reconciliation: %s", id, order.SettlementError,
		)
	}
	if principal != order.CreatorPrincipal {
		return domain.Validationf("only the creator can reveal the secret")
	}
	if order.Status != domain.OrderResolverDeposited {
		return domain.Validationf(
			"order %d is %s, expected %s", id, order.Status, domain.OrderResolverDeposited,
		)
	}
	if order.IsExpired(m.now()) {
		return domain.Validationf("order %d has timed out", id)
	}
	digest := sha256.Sum256([]byte(secret))
	if subtle.ConstantTimeCompare(digest[:], order.SecretHash[:]) != 1 {
		return domain.Validationf("secret does not match the order's hash")
	}
	if order.CreatorToAddress == "" || order.ResolverToAddress == "" {
		return domain.NewError(
			domain.KindInvariantViolation, nil, "order %d is missing a payout address", id,
		)
	}

	return m.settle(context.WithoutCancel(ctx), order, secret, false)
}

func (m *OrderStateMachine) CancelOrder(ctx context.Context, principal string, id uint64) error {
	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return err
	}
	if principal != order.CreatorPrincipal {
		return domain.Validationf("only the creator can cancel the order")
	}
	switch order.Status {
	case domain.OrderAwaitingDeposit:
	case domain.OrderDepositReceived:
		if order.HasResolver() {
			return domain.Validationf("order %d already accepted by a resolver", id)
		}
	default:
		return domain.Validationf("order %d is %s and cannot be cancelled", id, order.Status)
	}

	return m.finishCancel(context.WithoutCancel(ctx), order, false)
}

// finishCancel returns the creator's deposit, if any, and cancels the order.
// Once started the refund blocks acceptance until the order is cancelled.
func (m *OrderStateMachine) finishCancel(ctx context.Context, order *domain.Order, allowResend bool) error {
	if order.CreatorDepositTxid != "" {
		if err := m.executeLeg(ctx, order, creatorRefund(order), allowResend); err != nil {
			return err
		}
	}

	return m.transition(ctx, order, order.Cancelled)
}

// SweepExpired refunds and expires every non-terminal order past its timeout.
// Refunds already sent are never sent again, so running it repeatedly is
// safe. Orders that fail are left for the next run.
func (m *OrderStateMachine) SweepExpired(ctx context.Context) (int, error) {
	ctx = context.WithoutCancel(ctx)

	orders, err := m.repo.GetByStatus(ctx, domain.NonTerminalStatuses...)
	if err != nil {
		err = storeError(err)
		m.metrics.SweepCompleted(0, err)
		return 0, err
	}

	now := m.now()
	count := 0
	var failures []error
	for _, o := range orders {
		if !o.IsExpired(now) {
			continue
		}
		if o.IsPartiallySettled() {
			log.WithField("order_id", o.Id).Warn("skipping expiry of partially settled order")
			continue
		}

		expired, err := m.expire(ctx, o.Id, false)
		if err != nil {
			log.WithError(err).WithField("order_id", o.Id).Warn("failed to expire order")
			failures = append(failures, fmt.Errorf("order %d: %w", o.Id, err))
			continue
		}
		if expired {
			count++
		}
	}

	sweepErr := errors.Join(failures...)
	m.metrics.SweepCompleted(count, sweepErr)
	if count > 0 {
		log.Infof("expired %d orders", count)
	}
	return count, nil
}

// ReconcileSettlement resolves an order whose transfers were left in doubt.
// Transfers found on chain are marked sent, those the chain never saw are
// sent again.
func (m *OrderStateMachine) ReconcileSettlement(ctx context.Context, id uint64) (*domain.Order, error) {
	ctx = context.WithoutCancel(ctx)

	unlock := m.locker.Lock(id)
	order, err := m.getOrder(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}

	switch {
	case order.IsPartiallySettled():
		err := m.settle(ctx, order, order.Secret, true)
		unlock()
		if err != nil {
			return nil, err
		}
	case !order.Status.IsTerminal() && order.IsExpired(m.now()):
		unlock()
		if _, err := m.expire(ctx, id, true); err != nil {
			return nil, err
		}
	case !order.Status.IsTerminal() && order.RefundStarted():
		err := m.finishCancel(ctx, order, true)
		unlock()
		if err != nil {
			return nil, err
		}
	default:
		unlock()
		return nil, domain.Validationf("order %d has nothing to reconcile", id)
	}

	return m.getOrder(ctx, id)
}

func (m *OrderStateMachine) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	return m.getOrder(ctx, id)
}

// ListPendingOrders returns the funded orders still waiting for a resolver.
func (m *OrderStateMachine) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := m.repo.GetByStatus(ctx, domain.OrderDepositReceived)
	if err != nil {
		return nil, storeError(err)
	}
	now := m.now()
	pending := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if !o.HasResolver() && !o.RefundStarted() && !o.IsExpired(now) {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// ListExpiredOrders returns the funded orders past their timeout that still
// hold deposits.
func (m *OrderStateMachine) ListExpiredOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := m.repo.GetByStatus(ctx, domain.OrderDepositReceived, domain.OrderResolverDeposited)
	if err != nil {
		return nil, storeError(err)
	}
	now := m.now()
	expired := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.IsExpired(now) {
			expired = append(expired, o)
		}
	}
	return expired, nil
}

func (m *OrderStateMachine) ListOrdersByParticipantAddress(
	ctx context.Context, address string,
) ([]domain.Order, error) {
	if address == "" {
		return nil, domain.Validationf("missing address")
	}
	orders, err := m.repo.GetByAddress(ctx, address)
	if err != nil {
		return nil, storeError(err)
	}
	matching := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.HasParticipant(address) {
			matching = append(matching, o)
		}
	}
	return matching, nil
}

func (m *OrderStateMachine) ListOrdersByPrincipal(
	ctx context.Context, principal string,
) ([]domain.Order, error) {
	if principal == "" {
		return nil, domain.Validationf("missing principal")
	}
	orders, err := m.repo.GetByPrincipal(ctx, principal)
	if err != nil {
		return nil, storeError(err)
	}
	return orders, nil
}

func (m *OrderStateMachine) GetCustodyAddresses(ctx context.Context) (CustodyAddresses, error) {
	var addrs CustodyAddresses
	for chain, adapter := range m.adapters {
		addr, err := adapter.DeriveCustodyAddress(ctx, m.custodyTag)
		if err != nil {
			return CustodyAddresses{}, chainError(err, "failed to derive %s custody address", chain)
		}
		addrs.set(chain, addr)
	}
	return addrs, nil
}

// GetCustodyBalances returns the pool balance of each native asset and of
// every token held by an open order.
func (m *OrderStateMachine) GetCustodyBalances(ctx context.Context) ([]CustodyBalance, error) {
	assets := []domain.Asset{
		domain.NativeAsset(domain.ChainBitcoin), domain.NativeAsset(domain.ChainSolana),
	}
	orders, err := m.repo.GetByStatus(ctx, domain.NonTerminalStatuses...)
	if err != nil {
		return nil, storeError(err)
	}
	seen := make(map[domain.Asset]bool)
	for _, o := range orders {
		for _, asset := range []domain.Asset{o.FromAsset, o.ToAsset} {
			if !asset.IsNative() && !seen[asset] {
				seen[asset] = true
				assets = append(assets, asset)
			}
		}
	}

	addrs, err := m.GetCustodyAddresses(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]CustodyBalance, 0, len(assets))
	for _, asset := range assets {
		addr := addrs.Bitcoin
		if asset.Chain == domain.ChainSolana {
			addr = addrs.Solana
		}
		balance, err := m.adapters[asset.Chain].GetBalance(ctx, addr, asset)
		if err != nil {
			return nil, chainError(err, "failed to get %s balance", asset)
		}
		balances = append(balances, CustodyBalance{Asset: asset, Address: addr, Balance: balance})
	}
	return balances, nil
}

// expire refunds the deposits of an expired order and marks it expired. It
// returns false if the order no longer needs to expire.
func (m *OrderStateMachine) expire(ctx context.Context, id uint64, allowResend bool) (bool, error) {
	unlock := m.locker.Lock(id)
	defer unlock()

	order, err := m.getOrder(ctx, id)
	if err != nil {
		return false, err
	}
	if order.Status.IsTerminal() || !order.IsExpired(m.now()) || order.IsPartiallySettled() {
		return false, nil
	}

	for _, plan := range refundPlan(order) {
		if err := m.executeLeg(ctx, order, plan, allowResend); err != nil {
			return false, err
		}
	}

	if err := m.transition(ctx, order, order.Expired); err != nil {
		return false, err
	}
	return true, nil
}

// transition applies fn to the order and persists the result.
func (m *OrderStateMachine) transition(ctx context.Context, order *domain.Order, fn func() error) error {
	from := order.Status
	if err := fn(); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, *order); err != nil {
		return storeError(err)
	}
	m.metrics.OrderTransition(from, order.Status)
	log.WithField("order_id", order.Id).Infof("order %s -> %s", from, order.Status)
	return nil
}

func (m *OrderStateMachine) getOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	order, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return order, nil
}

func (m *OrderStateMachine) checkUnclaimed(ctx context.Context, txid string) error {
	claimed, err := m.repo.GetByDepositTxid(ctx, txid)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		return storeError(err)
	}
	return domain.Validationf("transaction %s already claimed by order %d", txid, claimed.Id)
}

func (m *OrderStateMachine) verify(
	ctx context.Context, txid, address string, asset domain.Asset, amount uint64,
) error {
	ok, err := m.adapters[asset.Chain].VerifyIncomingTransaction(ctx, txid, address, asset, amount)
	if err != nil {
		return chainError(err, "failed to verify %s transaction %s", asset.Chain, txid)
	}
	if !ok {
		return domain.NewError(
			domain.KindVerificationFailed, nil,
			"transaction %s does not pay %d %s to %s", txid, amount, asset, address,
		)
	}
	return nil
}

func validateAddress(adapter ports.ChainAdapter, name, address string) error {
	if address == "" {
		return domain.Validationf("missing %s address", name)
	}
	if err := adapter.ValidateAddress(address); err != nil {
		return domain.NewError(
			domain.KindValidation, err, "invalid %s address for %s", name, adapter.Chain(),
		)
	}
	return nil
}

// chainError maps an adapter failure to the error kind reported to callers.
func chainError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch ports.ChainErrKind(err) {
	case ports.ChainErrTransient:
		return domain.NewError(domain.KindExternalUnavailable, err, "%s", msg)
	case ports.ChainErrMalformed:
		return domain.NewError(domain.KindValidation, err, "%s", msg)
	default:
		return domain.NewError(domain.KindCustodyExecution, err, "%s", msg)
	}
}

func storeError(err error) error {
	var e *domain.Error
	if errors.As(err, &e) {
		return err
	}
	return domain.NewError(domain.KindExternalUnavailable, err, "order store unavailable")
}
