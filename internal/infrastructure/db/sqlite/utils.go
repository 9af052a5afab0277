package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ArkLabsHQ/escrowd/internal/infrastructure/db/sqlite/sqlc/queries"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func OpenDb(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent transactions.
	db.SetMaxOpenConns(1)

	return db, nil
}

func execTx(
	ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	qtx := queries.New(db).WithTx(tx)

	if err := txBody(qtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toNullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: len(s) > 0}
}

func fromNullableString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
