package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/application"
	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// EscrowService is what the HTTP surface needs from the application.
type EscrowService interface {
	BuildInfo() application.BuildInfo
	WhenNextSweep() time.Time

	CreateOrder(
		ctx context.Context, principal string, req application.CreateOrderRequest,
	) (uint64, application.CustodyAddresses, error)
	ConfirmDeposit(ctx context.Context, id uint64, txid string) error
	AcceptOrder(
		ctx context.Context, principal string, id uint64, req application.AcceptOrderRequest,
	) (application.CustodyAddresses, error)
	ConfirmResolverDeposit(ctx context.Context, principal string, id uint64, txid string) error
	RevealSecret(ctx context.Context, principal string, id uint64, secret string) error
	CancelOrder(ctx context.Context, principal string, id uint64) error
	SweepExpired(ctx context.Context) (int, error)
	ReconcileSettlement(ctx context.Context, id uint64) (*domain.Order, error)

	GetOrder(ctx context.Context, id uint64) (*domain.Order, error)
	ListPendingOrders(ctx context.Context) ([]domain.Order, error)
	ListExpiredOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByParticipantAddress(ctx context.Context, address string) ([]domain.Order, error)
	ListOrdersByPrincipal(ctx context.Context, principal string) ([]domain.Order, error)
	GetCustodyAddresses(ctx context.Context) (application.CustodyAddresses, error)
	GetCustodyBalances(ctx context.Context) ([]application.CustodyBalance, error)
}

type Config struct {
	HTTPPort uint32
}

func (c Config) Validate() error {
	lis, err := net.Listen("tcp", c.httpAddress())
	if err != nil {
		return fmt.Errorf("invalid http port: %s", err)
	}
	// nolint:all
	lis.Close()
	return nil
}

func (c Config) httpAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

type service struct {
	cfg        Config
	httpServer *http.Server
}

// NewService serves the escrow API. metrics, if not nil, is mounted on
// /metrics.
func NewService(
	cfg Config, appSvc EscrowService, metrics http.Handler, sentryEnabled bool,
) (*service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if appSvc == nil {
		return nil, fmt.Errorf("missing escrow service")
	}

	httpServer := &http.Server{
		Addr:              cfg.httpAddress(),
		Handler:           NewRouter(appSvc, metrics, sentryEnabled),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Settlement may wait for two chains.
		WriteTimeout: 3 * time.Minute,
	}

	return &service{cfg, httpServer}, nil
}

func (s *service) Start() error {
	listener, err := net.Listen("tcp", s.cfg.httpAddress())
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	log.Infof("started HTTP server at %s", s.cfg.httpAddress())
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// nolint:all
	s.httpServer.Shutdown(ctx)
	log.Info("stopped HTTP server")
}

// NewRouter returns the gin engine exposing the escrow API.
func NewRouter(appSvc EscrowService, metrics http.Handler, sentryEnabled bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIdMiddleware(), LoggerMiddleware())
	if sentryEnabled {
		router.Use(SentryMiddleware())
	}

	h := &handler{appSvc}

	router.GET("/healthz", h.health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/pending", h.listPendingOrders)
		v1.GET("/orders/expired", h.listExpiredOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/deposit", h.confirmDeposit)
		v1.POST("/orders/:id/accept", h.acceptOrder)
		v1.POST("/orders/:id/resolver-deposit", h.confirmResolverDeposit)
		v1.POST("/orders/:id/reveal", h.revealSecret)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/reconcile", h.reconcileSettlement)
		v1.POST("/sweep", h.sweepExpired)
		v1.GET("/custody", h.getCustody)
	}

	return router
}
