// Package database centralises sqlx connection helpers.
//
// Two drivers are linked in: go-sql-driver/mysql for a shared master
// registry, and modernc.org/sqlite (pure Go, no cgo) for per-tenant files
// and single-box deployments.  Both accept `?` placeholders, so queries
// built on sqlx work unchanged across them.
//
// Public entry points:
//
//	Open(driver, dsn)                             – conservative pool sizes.
//	OpenWithOptions(driver, dsn, maxOpen, maxIdle) – fine-grained control.
//	OpenSQLiteFile(path)                          – tenant file with pragmas.
//
// Every helper Pings before returning so callers fail fast during boot.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Driver names as registered with database/sql.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Open returns a *sqlx.DB with 15 max open, 5 idle, and a 30-minute
// connection lifetime.
func Open(driver, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(driver, dsn, 15, 5)
}

// OpenWithOptions lets callers tune maxOpen and maxIdle per pool.
func OpenWithOptions(driver, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLiteFile opens (creating if needed) a SQLite database file with WAL
// journaling, a busy timeout, and foreign keys on.  SQLite serialises
// writers, so the pool stays small.
func OpenSQLiteFile(path string) (*sqlx.DB, error) {
	return OpenWithOptions(DriverSQLite, SQLiteDSN(path), 4, 2)
}

// SQLiteDSN builds a modernc DSN for path with the pragmas OpenSQLiteFile
// uses.
func SQLiteDSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}
