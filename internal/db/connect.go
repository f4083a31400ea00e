package db

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sqlx.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:handin.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/handin?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sqlx.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sqlx.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS reconciliation_runs (
  id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  owner TEXT NOT NULL DEFAULT '',
  roster_total INTEGER NOT NULL,
  submitted INTEGER NOT NULL,
  missing INTEGER NOT NULL,
  rate REAL NOT NULL,
  duplicate_groups INTEGER NOT NULL DEFAULT 0,
  anomalous INTEGER NOT NULL DEFAULT 0,
  summary_json TEXT NOT NULL        -- full report, for listing only
);

CREATE INDEX IF NOT EXISTS idx_runs_owner_created ON reconciliation_runs (owner, created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS reconciliation_runs (
  id TEXT PRIMARY KEY,
  created_at BIGINT NOT NULL,
  owner TEXT NOT NULL DEFAULT '',
  roster_total INTEGER NOT NULL,
  submitted INTEGER NOT NULL,
  missing INTEGER NOT NULL,
  rate DOUBLE PRECISION NOT NULL,
  duplicate_groups INTEGER NOT NULL DEFAULT 0,
  anomalous INTEGER NOT NULL DEFAULT 0,
  summary_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_owner_created ON reconciliation_runs (owner, created_at);
`
