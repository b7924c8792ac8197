// internal/tenant/repository.go
//
// Master-table queries.
//
// Context
// -------
// Every statement uses `?` placeholders, which both linked drivers (MySQL
// and SQLite) accept, so one query string serves either backing store.
// Helpers take a sqlx.ExtContext so they run on the pool or inside a
// registration transaction alike.
//
// Notes
// -----
//   - `byCode` returns ErrNotFound for a missing row and leaves status
//     filtering to the caller.
//   - Unique-key violations are recognised per driver without string
//     matching.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const tenantColumns = `id, code, name, db_path, plan, plan_expires,
       owner_name, owner_phone, status, created_at`

func byCode(ctx context.Context, q sqlx.QueryerContext, code string) (*Tenant, error) {
	var t Tenant
	err := sqlx.GetContext(ctx, q, &t,
		`SELECT `+tenantColumns+` FROM tenants WHERE code = ? LIMIT 1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func allActive(ctx context.Context, q sqlx.QueryerContext) ([]Tenant, error) {
	var out []Tenant
	err := sqlx.SelectContext(ctx, q, &out,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = ? ORDER BY code`, StatusActive)
	return out, err
}

func insertTenant(ctx context.Context, x sqlx.ExecerContext, t *Tenant) (int64, error) {
	res, err := x.ExecContext(ctx,
		`INSERT INTO tenants (code, name, db_path, plan, owner_name, owner_phone, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Code, t.Name, t.DBPath, t.Plan, t.OwnerName, t.OwnerPhone, t.Status, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return res.LastInsertId()
}

func setStatus(ctx context.Context, x sqlx.ExecerContext, code, status string) error {
	res, err := x.ExecContext(ctx, `UPDATE tenants SET status = ? WHERE code = ?`, status, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// user is one row of a tenant's users table.
type user struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Password    string `db:"password"`
	Role        string `db:"role"`
	Permissions string `db:"permissions"`
}

func activeUserByPhone(ctx context.Context, q sqlx.QueryerContext, phone string) (*user, error) {
	var u user
	err := sqlx.GetContext(ctx, q, &u,
		`SELECT id, name, password, role, permissions FROM users
		 WHERE phone = ? AND status = 'active' LIMIT 1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func touchLastLogin(ctx context.Context, x sqlx.ExecerContext, userID int64, at time.Time) error {
	_, err := x.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at, userID)
	return err
}
