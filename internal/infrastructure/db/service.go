package db

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	badgerdb "github.com/ArkLabsHQ/escrowd/internal/infrastructure/db/badger"
	sqlitedb "github.com/ArkLabsHQ/escrowd/internal/infrastructure/db/sqlite"
	"github.com/dgraph-io/badger/v4"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	sqliteDbFile = "escrowd.db"
)

var (
	//go:embed sqlite/migration/*
	migrations   embed.FS
	allowedTypes = strings.Join([]string{"badger", "sqlite"}, ",")
)

type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	orderRepo domain.OrderRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		orderRepo domain.OrderRepository
		err       error
	)

	switch config.DbType {
	case "badger":
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		orderRepo, err = badgerdb.NewOrderRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open order db: %s", err)
		}

	case "sqlite":
		if len(config.DbConfig) != 1 {
			return nil, fmt.Errorf("sqlite db config must have 1 element, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		source, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "escrowdb", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %s", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %s", err)
		}

		orderRepo, err = sqlitedb.NewOrderRepository(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open order db: %s", err)
		}

	default:
		return nil, fmt.Errorf("unsupported db type %s, please select one of %s", config.DbType, allowedTypes)
	}

	return &service{orderRepo}, nil
}

func (s *service) Orders() domain.OrderRepository {
	return s.orderRepo
}

func (s *service) Close() {
	s.orderRepo.Close()
}
