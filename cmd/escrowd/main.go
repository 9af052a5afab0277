package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/config"
	"github.com/ArkLabsHQ/escrowd/internal/core/application"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/chain/bitcoin"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/chain/solana"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/db"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/esplora"
	scheduler "github.com/ArkLabsHQ/escrowd/internal/infrastructure/scheduler/gocron"
	localsigner "github.com/ArkLabsHQ/escrowd/internal/infrastructure/signer/local"
	remotesigner "github.com/ArkLabsHQ/escrowd/internal/infrastructure/signer/remote"
	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/telemetry"
	"github.com/ArkLabsHQ/escrowd/internal/interface/web"
	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	sentryEnabled := cfg.SentryEnabled()

	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDsn,
			Environment:      "prod",
			AttachStacktrace: true,
			Release:          version,
		}); err != nil {
			log.Fatal(err)
		}

		sentryLevels := []log.Level{log.ErrorLevel, log.FatalLevel, log.PanicLevel}
		sentryHook, err := sentrylogrus.New(sentryLevels, sentry.ClientOptions{
			Dsn:              cfg.SentryDsn,
			AttachStacktrace: true,
			Release:          version,
		})
		if err != nil {
			log.Fatal(err)
		}

		log.AddHook(sentryHook)

		defer func() {
			sentry.Flush(5 * time.Second)
			sentryHook.Flush(5 * time.Second)
		}()
	}

	log.Info("starting escrowd...")

	dbConfig := []any{cfg.Datadir}
	if cfg.DbType == "badger" {
		dbConfig = append(dbConfig, nil)
	}
	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: dbConfig,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	signerSvc, err := newSigner(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init signer")
	}

	btcAdapter, err := bitcoin.NewAdapter(bitcoin.Config{
		Network:          cfg.BtcNetwork,
		Explorer:         esplora.NewService(cfg.EsploraURL),
		Signer:           signerSvc,
		MinConfirmations: cfg.BtcMinConfirmations,
		FeeTarget:        cfg.BtcFeeTarget,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to init bitcoin adapter")
	}

	solAdapter, err := solana.NewAdapter(solana.Config{
		RpcUrl:         cfg.SolanaRpcURL,
		Commitment:     cfg.SolanaCommitment,
		Signer:         signerSvc,
		ConfirmTimeout: cfg.SolanaConfirmTimeoutDuration(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to init solana adapter")
	}

	metrics := telemetry.NewMetrics()

	orders, err := application.NewOrderStateMachine(
		dbSvc.Orders(), []ports.ChainAdapter{btcAdapter, solAdapter},
		application.Config{
			MinOrderTimeout: cfg.MinOrderTimeoutDuration(),
			CustodyTag:      cfg.CustodyTag,
		},
		metrics, telemetry.NewAlertService(sentryEnabled),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init order state machine")
	}

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	appSvc, err := application.NewService(
		buildInfo, orders, scheduler.NewScheduler(), cfg.SweepIntervalDuration(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init application service")
	}

	svc, err := web.NewService(
		web.Config{HTTPPort: cfg.HTTPPort}, appSvc, metrics.Handler(), sentryEnabled,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init interface service")
	}

	log.RegisterExitHandler(func() {
		svc.Stop()
		appSvc.Stop()
		dbSvc.Close()
	})

	log.Info("starting service...")
	if err := appSvc.Start(); err != nil {
		log.Fatal(err)
	}
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

func newSigner(cfg *config.Config) (ports.SignerService, error) {
	if cfg.SignerType == "remote" {
		return remotesigner.NewService(cfg.SignerURL)
	}
	return localsigner.NewService(cfg.SignerMnemonic, cfg.SignerPassphrase)
}
