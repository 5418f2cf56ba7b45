// Package store opens the durable record store and owns its schema.
//
// The rest of the CRUD surface (users, files, sharing) belongs to the portal and is not
// modelled here; this package only creates the tables the call-event pipeline reads and writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"callcenter/internal/config"
	"callcenter/pkg/utils"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	var (
		db      *sql.DB
		err     error
		dialect Dialect
	)
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		dialect = DialectSQLite
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent webhooks.
		db, err = utils.OpenDB(ctx, "sqlite", sqliteDSN(cfg.DB.SQLitePath), utils.PoolConfig{MaxOpenConns: 1})
	default:
		dialect = DialectPostgres
		db, err = utils.OpenDB(ctx, "pgx", cfg.PostgresDSN(), utils.PoolConfig{})
	}
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory returns a private in-memory sqlite store with the schema applied.
func OpenMemory(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:mem_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := utils.OpenDB(ctx, "sqlite", dsn, utils.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range schema(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func schema(dialect Dialect) []string {
	pk, bigint, ts := "BIGSERIAL PRIMARY KEY", "BIGINT", "TIMESTAMPTZ"
	if dialect == DialectSQLite {
		pk, bigint, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "TIMESTAMP"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS call_logs (
  id ` + pk + `,
  employee_id ` + bigint + ` NOT NULL,
  call_date TEXT NOT NULL,
  call_time TEXT NOT NULL,
  status TEXT NOT NULL,
  duration INTEGER,
  customer_phone TEXT,
  notes TEXT,
  provider_call_id TEXT,
  from_number TEXT,
  to_number TEXT,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS call_logs_provider_call_id_key ON call_logs (provider_call_id)`,
		`CREATE INDEX IF NOT EXISTS call_logs_employee_id_idx ON call_logs (employee_id)`,

		`CREATE TABLE IF NOT EXISTS contacts (
  id ` + pk + `,
  name TEXT NOT NULL,
  phone_number TEXT NOT NULL,
  assigned_employee_id ` + bigint + `,
  call_status TEXT,
  call_time ` + ts + `,
  call_duration_sec INTEGER,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS contacts_phone_number_idx ON contacts (phone_number)`,

		`CREATE TABLE IF NOT EXISTS phone_endpoints (
  id ` + pk + `,
  provider TEXT NOT NULL,
  endpoint TEXT NOT NULL,
  employee_id ` + bigint + ` NOT NULL,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS phone_endpoints_provider_endpoint_key ON phone_endpoints (provider, endpoint)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  actor_user_id TEXT,
  actor_role TEXT,
  ip_address TEXT,
  call_sid TEXT,
  message TEXT,
  metadata TEXT,
  created_at ` + ts + ` NOT NULL
)`,
	}
}
