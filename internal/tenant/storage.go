// internal/tenant/storage.go
//
// Tenant database provisioning.
//
// Context
// -------
// Registration creates a fresh SQLite file, applies the embedded goose
// migrations, and inserts the first administrator.  The goose Provider API
// is used rather than the package-level helpers so concurrent
// registrations never share global dialect or filesystem state.
//
// Notes
// -----
//   - The handle opened here is closed before returning.  Request traffic
//     goes through the pool set in pools.go.
//   - Callers remove the file on error; provision never leaves that to
//     chance by itself.
package tenant

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/yanizio/cardeal/internal/database"
	"github.com/yanizio/cardeal/internal/tenant/migrations"
)

// adminUser is the first identity written into a new tenant database.
type adminUser struct {
	Name         string
	Phone        string
	PasswordHash string
}

func provision(ctx context.Context, path string, admin adminUser) error {
	db, err := database.OpenSQLiteFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (name, phone, password, role, permissions) VALUES (?, ?, ?, 'admin', '["all"]')`,
		admin.Name, admin.Phone, admin.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// migrate brings a tenant database up to the latest schema.  It is also
// run when a pool is first opened so older tenants pick up new tables.
func migrate(ctx context.Context, db *sqlx.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db.DB, migrations.Tenant())
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// MigrateMaster applies the registry schema for driver to db.
func MigrateMaster(ctx context.Context, db *sqlx.DB, driver string) error {
	fsys, dialect, err := migrations.Master(driver)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate master: %w", err)
	}
	return nil
}
