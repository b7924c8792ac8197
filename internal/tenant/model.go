// internal/tenant/model.go
//
// Tenant record and registration input.
//
// Context
// -------
// A tenant is one dealership.  Its row in the master `tenants` table names
// it and points at an isolated SQLite file under the data directory.  The
// code is chosen at registration, never changes, and determines the file
// path, so a lost path column can always be recomputed.
//
// Tenants are never deleted; Deactivate flips status to inactive and
// Resolve stops returning them.
//
// Notes
// -----
//   - Column list in repository.go matches the db tags here; update both
//     together.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"errors"
	"time"
)

// Status values stored in tenants.status.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// DefaultPlan is assigned at registration.
const DefaultPlan = "free"

var (
	// ErrNotFound is returned for unknown or inactive tenant codes.
	ErrNotFound = errors.New("tenant: not found")
	// ErrAlreadyExists is returned when registering a code already in use.
	ErrAlreadyExists = errors.New("tenant: code already exists")
	// ErrInvalidCode is returned for codes outside [a-z0-9]{3,20}.
	ErrInvalidCode = errors.New("tenant: invalid code")
	// ErrInvalidInput wraps any other registration validation failure.
	ErrInvalidInput = errors.New("tenant: invalid registration input")
	// ErrInvalidCredentials is returned by VerifyLogin for an unknown
	// phone, wrong password, or disabled user.
	ErrInvalidCredentials = errors.New("tenant: invalid credentials")
)

// Tenant mirrors one row of the master tenants table.
type Tenant struct {
	ID          int64      `db:"id"           json:"id"`
	Code        string     `db:"code"         json:"code"`
	Name        string     `db:"name"         json:"name"`
	DBPath      string     `db:"db_path"      json:"-"`
	Plan        string     `db:"plan"         json:"plan"`
	PlanExpires *time.Time `db:"plan_expires" json:"plan_expires,omitempty"`
	OwnerName   string     `db:"owner_name"   json:"owner_name"`
	OwnerPhone  string     `db:"owner_phone"  json:"-"`
	Status      string     `db:"status"       json:"status"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}

// Active reports whether the tenant may serve requests.
func (t *Tenant) Active() bool { return t.Status == StatusActive }

// RegisterInput is everything needed to open a new tenant.
type RegisterInput struct {
	Code          string `json:"code"           validate:"required,tenantcode"`
	Name          string `json:"name"           validate:"required,max=100"`
	AdminName     string `json:"admin_name"     validate:"max=100"`
	AdminPhone    string `json:"admin_phone"    validate:"required,min=6,max=20,numeric"`
	AdminPassword string `json:"admin_password" validate:"required,min=4,max=128"`
	Plan          string `json:"plan"           validate:"omitempty,oneof=free basic pro"`
}

// Login is the identity returned by VerifyLogin.
type Login struct {
	Tenant      *Tenant  `json:"tenant"`
	UserID      int64    `json:"user_id"`
	UserName    string   `json:"user_name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
