package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// EscrowService is the external facade of the escrow. It only dispatches to
// the state machine and owns the periodic expiry sweep.
type EscrowService struct {
	buildInfo BuildInfo

	orders        *OrderStateMachine
	schedulerSvc  ports.SchedulerService
	sweepInterval time.Duration

	lock    sync.Mutex
	started bool
}

func NewService(
	buildInfo BuildInfo, orders *OrderStateMachine,
	schedulerSvc ports.SchedulerService, sweepInterval time.Duration,
) (*EscrowService, error) {
	if orders == nil {
		return nil, fmt.Errorf("missing order state machine")
	}
	if sweepInterval > 0 && schedulerSvc == nil {
		return nil, fmt.Errorf("missing scheduler for sweep interval %s", sweepInterval)
	}
	return &EscrowService{
		buildInfo:     buildInfo,
		orders:        orders,
		schedulerSvc:  schedulerSvc,
		sweepInterval: sweepInterval,
	}, nil
}

func (s *EscrowService) BuildInfo() BuildInfo {
	return s.buildInfo
}

// Start schedules the expiry sweep, if enabled.
func (s *EscrowService) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started {
		return nil
	}
	if s.sweepInterval <= 0 {
		log.Info("periodic sweep disabled")
		s.started = true
		return nil
	}

	if err := s.schedulerSvc.ScheduleEvery(s.sweepInterval, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.schedulerSvc.Start()
	s.started = true

	log.Infof("sweeping expired orders every %s", s.sweepInterval)
	return nil
}

func (s *EscrowService) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.started {
		return
	}
	if s.schedulerSvc != nil && s.sweepInterval > 0 {
		s.schedulerSvc.Stop()
	}
	s.started = false
	log.Info("escrow service stopped")
}

// WhenNextSweep returns the zero time if the sweep is not scheduled.
func (s *EscrowService) WhenNextSweep() time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.started || s.sweepInterval <= 0 {
		return time.Time{}
	}
	return s.schedulerSvc.WhenNextRun()
}

func (s *EscrowService) CreateOrder(
	ctx context.Context, principal string, req CreateOrderRequest,
) (uint64, CustodyAddresses, error) {
	order, err := s.orders.CreateOrder(ctx, principal, req)
	if err != nil {
		return 0, CustodyAddresses{}, err
	}
	return order.Id, custodyAddressesOf(order), nil
}

func (s *EscrowService) ConfirmDeposit(ctx context.Context, id uint64, txid string) error {
	return s.orders.ConfirmDeposit(ctx, id, txid)
}

func (s *EscrowService) AcceptOrder(
	ctx context.Context, principal string, id uint64, req AcceptOrderRequest,
) (CustodyAddresses, error) {
	order, err := s.orders.AcceptOrder(ctx, principal, id, req)
	if err != nil {
		return CustodyAddresses{}, err
	}
	return custodyAddressesOf(order), nil
}

func (s *EscrowService) ConfirmResolverDeposit(
	ctx context.Context, principal string, id uint64, txid string,
) error {
	return s.orders.ConfirmResolverDeposit(ctx, principal, id, txid)
}

func (s *EscrowService) RevealSecret(
	ctx context.Context, principal string, id uint64, secret string,
) error {
	return s.orders.RevealSecret(ctx, principal, id, secret)
}

func (s *EscrowService) CancelOrder(ctx context.Context, principal string, id uint64) error {
	return s.orders.CancelOrder(ctx, principal, id)
}

func (s *EscrowService) SweepExpired(ctx context.Context) (int, error) {
	return s.orders.SweepExpired(ctx)
}

func (s *EscrowService) ReconcileSettlement(ctx context.Context, id uint64) (*domain.Order, error) {
	return s.orders.ReconcileSettlement(ctx, id)
}

func (s *EscrowService) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

func (s *EscrowService) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListPendingOrders(ctx)
}

func (s *EscrowService) ListExpiredOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListExpiredOrders(ctx)
}

func (s *EscrowService) ListOrdersByParticipantAddress(
	ctx context.Context, address string,
) ([]domain.Order, error) {
	return s.orders.ListOrdersByParticipantAddress(ctx, address)
}

func (s *EscrowService) ListOrdersByPrincipal(
	ctx context.Context, principal string,
) ([]domain.Order, error) {
	return s.orders.ListOrdersByPrincipal(ctx, principal)
}

func (s *EscrowService) GetCustodyAddresses(ctx context.Context) (CustodyAddresses, error) {
	return s.orders.GetCustodyAddresses(ctx)
}

func (s *EscrowService) GetCustodyBalances(ctx context.Context) ([]CustodyBalance, error) {
	return s.orders.GetCustodyBalances(ctx)
}

func (s *EscrowService) sweep() {
	if _, err := s.orders.SweepExpired(context.Background()); err != nil {
		log.WithError(err).Warn("expiry sweep failed")
	}
}
