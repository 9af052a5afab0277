package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	badgerdb "github.com/ArkLabsHQ/escrowd/internal/infrastructure/db/badger"
	"github.com/stretchr/testify/require"
)

const (
	secret = "correct horse battery staple"

	creator  = "alice"
	resolver = "bob"

	creatorBtc  = "alice-btc"
	creatorSol  = "alice-sol"
	resolverBtc = "bob-btc"
	resolverSol = "bob-sol"

	btcAmount = uint64(100000000)
	solAmount = uint64(1000000000)

	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var (
	ctx       = context.Background()
	startTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	btc = domain.NativeAsset(domain.ChainBitcoin)
	sol = domain.NativeAsset(domain.ChainSolana)
)

func secretHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type deposit struct {
	address string
	asset   domain.Asset
	amount  uint64
}

type sentTx struct {
	txid string
	req  ports.SendRequest
}

type sendFailure struct {
	// afterSign makes the send fail once the transaction id is known.
	afterSign bool
	err       error
}

// fakeAdapter is an in-memory chain. Addresses starting with "bad" are
// malformed, deposits must be registered before they can be verified.
type fakeAdapter struct {
	chain domain.ChainKind

	mu       sync.Mutex
	deposits map[string]deposit
	sent     []sentTx
	statuses map[string]ports.TxStatus
	failures []sendFailure
	balances map[domain.Asset]uint64
	txCount  int
	// err is returned by every chain query when set.
	err error
}

func newFakeAdapter(chain domain.ChainKind) *fakeAdapter {
	return &fakeAdapter{
		chain:    chain,
		deposits: make(map[string]deposit),
		statuses: make(map[string]ports.TxStatus),
		balances: make(map[domain.Asset]uint64),
	}
}

func (a *fakeAdapter) custodyAddress(tag string) string {
	return fmt.Sprintf("custody-%s-%s", a.chain, tag)
}

func (a *fakeAdapter) deposit(txid string, asset domain.Asset, amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits[txid] = deposit{a.custodyAddress(DefaultCustodyTag), asset, amount}
}

func (a *fakeAdapter) failNextSend(afterSign bool, kind ports.ChainErrorKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, sendFailure{
		afterSign: afterSign,
		err:       ports.ChainErrorf(a.chain, kind, "send failed"),
	})
}

func (a *fakeAdapter) setStatus(txid string, status ports.TxStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[txid] = status
}

func (a *fakeAdapter) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAdapter) sentTxs() []sentTx {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentTx(nil), a.sent...)
}

func (a *fakeAdapter) Chain() domain.ChainKind {
	return a.chain
}

func (a *fakeAdapter) ValidateAddress(address string) error {
	if address == "" || strings.HasPrefix(address, "bad") {
		return ports.ChainErrorf(a.chain, ports.ChainErrMalformed, "invalid address %s", address)
	}
	return nil
}

func (a *fakeAdapter) DeriveCustodyAddress(_ context.Context, tag string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return a.custodyAddress(tag), nil
}

func (a *fakeAdapter) VerifyIncomingTransaction(
	_ context.Context, txid, address string, asset domain.Asset, amount uint64,
) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	d, ok := a.deposits[txid]
	if !ok {
		return false, nil
	}
	return d.address == address && d.asset == asset && d.amount >= amount, nil
}

func (a *fakeAdapter) SendFunds(ctx context.Context, req ports.SendRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ports.NewChainError(a.chain, ports.ChainErrTransient, err)
	}
	if err := a.ValidateAddress(req.Destination); err != nil {
		return "", err
	}

	a.mu.Lock()
	a.txCount++
	txid := fmt.Sprintf("%s-out-%d", a.chain, a.txCount)
	var failure *sendFailure
	if len(a.failures) > 0 {
		failure = &a.failures[0]
		a.failures = a.failures[1:]
	}
	a.mu.Unlock()

	if failure != nil && !failure.afterSign {
		return "", failure.err
	}
	if req.OnSigned != nil {
		if err := req.OnSigned(txid); err != nil {
			return "", err
		}
	}
	if failure != nil {
		return "", failure.err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sentTx{txid, req})
	a.statuses[txid] = ports.TxInMempool
	return txid, nil
}

func (a *fakeAdapter) GetBalance(_ context.Context, _ string, asset domain.Asset) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	return a.balances[asset], nil
}

func (a *fakeAdapter) GetTransactionStatus(_ context.Context, txid string) (ports.TxStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return ports.TxNotFound, a.err
	}
	return a.statuses[txid], nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	orders []uint64
}

func (a *fakeAlerts) PartialSettlement(_ context.Context, order domain.Order, _ error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, order.Id)
}

type fakeMetrics struct {
	mu          sync.Mutex
	transitions map[domain.OrderStatus]int
	transfers   int
	sweeps      int
}

func (m *fakeMetrics) OrderTransition(_, to domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[to]++
}

func (m *fakeMetrics) TransferExecuted(domain.ChainKind, domain.TransferLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers++
}

func (m *fakeMetrics) SweepCompleted(int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
}

// looseRepo answers address queries with every stored order.
type looseRepo struct {
	domain.OrderRepository
}

func (r looseRepo) GetByAddress(ctx context.Context, _ string) ([]domain.Order, error) {
	return r.GetAll(ctx)
}

type testEnv struct {
	machine *OrderStateMachine
	repo    domain.OrderRepository
	btc     *fakeAdapter
	sol     *fakeAdapter
	clock   *clock
	alerts  *fakeAlerts
	metrics *fakeMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := badgerdb.NewOrderRepository("", nil)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	env := &testEnv{
		repo:    repo,
		btc:     newFakeAdapter(domain.ChainBitcoin),
		sol:     newFakeAdapter(domain.ChainSolana),
		clock:   &clock{now: startTime},
		alerts:  &fakeAlerts{},
		metrics: &fakeMetrics{transitions: make(map[domain.OrderStatus]int)},
	}
	machine, err := NewOrderStateMachine(
		repo, []ports.ChainAdapter{env.btc, env.sol}, Config{}, env.metrics, env.alerts,
	)
	require.NoError(t, err)
	machine.now = env.clock.Now
	env.machine = machine
	return env
}

func (e *testEnv) adapter(chain domain.ChainKind) *fakeAdapter {
	if chain == domain.ChainBitcoin {
		return e.btc
	}
	return e.sol
}

// btcToSol returns the request of an order swapping 1 BTC for 1 SOL.
func btcToSol() CreateOrderRequest {
	return CreateOrderRequest{
		FromAsset:          btc,
		ToAsset:            sol,
		FromAmount:         btcAmount,
		ToAmount:           solAmount,
		SecretHash:         secretHash(secret),
		Timeout:            time.Hour,
		CreatorFromAddress: creatorBtc,
		CreatorToAddress:   creatorSol,
	}
}

func resolverAddresses() AcceptOrderRequest {
	return AcceptOrderRequest{
		ResolverFromAddress: resolverSol,
		ResolverToAddress:   resolverBtc,
	}
}

func (e *testEnv) createOrder(t *testing.T, req CreateOrderRequest) *domain.Order {
	t.Helper()
	order, err := e.machine.CreateOrder(ctx, creator, req)
	require.NoError(t, err)
	return order
}

func (e *testEnv) fund(t *testing.T, order *domain.Order, txid string) {
	t.Helper()
	e.adapter(order.FromAsset.Chain).deposit(txid, order.FromAsset, order.FromAmount)
	require.NoError(t, e.machine.ConfirmDeposit(ctx, order.Id, txid))
}

func (e *testEnv) accept(t *testing.T, order *domain.Order) {
	t.Helper()
	_, err := e.machine.AcceptOrder(ctx, resolver, order.Id, resolverAddresses())
	require.NoError(t, err)
}

func (e *testEnv) fundResolver(t *testing.T, order *domain.Order, txid string) {
	t.Helper()
	e.adapter(order.ToAsset.Chain).deposit(txid, order.ToAsset, order.ToAmount)
	require.NoError(t, e.machine.ConfirmResolverDeposit(ctx, resolver, order.Id, txid))
}

// lockedOrder creates an order and drives it to ResolverDeposited.
func (e *testEnv) lockedOrder(t *testing.T, prefix string) *domain.Order {
	t.Helper()
	order := e.createOrder(t, btcToSol())
	e.fund(t, order, prefix+"-creator-dep")
	e.accept(t, order)
	e.fundResolver(t, order, prefix+"-resolver-dep")
	return e.get(t, order.Id)
}

func (e *testEnv) get(t *testing.T, id uint64) *domain.Order {
	t.Helper()
	order, err := e.machine.GetOrder(ctx, id)
	require.NoError(t, err)
	return order
}
