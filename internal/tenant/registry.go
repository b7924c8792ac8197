// internal/tenant/registry.go
//
// Tenant registry.
//
// Context
// -------
// Every authenticated request needs its tenant: the session names a tenant
// code, Resolve turns it into a Tenant, and Open hands back the pool for
// that tenant's SQLite file.  Resolve is on the hot path and read-only:
// recently seen records come from a small TTL cache, and concurrent misses
// for one code are collapsed into a single master query.
//
// Register is the only writer.  The master row and the tenant database
// are created together: the row is inserted inside a transaction, the
// file is provisioned, and only then is the transaction committed.  Any
// failure rolls back the row and deletes the file, so either both exist
// or neither does.
//
// Notes
// -----
//   - Inactive tenants resolve as ErrNotFound.
//   - Codes are validated before any query, so junk from a cookie never
//     reaches the database.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/cardeal/internal/auth"
	"github.com/yanizio/cardeal/internal/cache"
	"github.com/yanizio/cardeal/internal/database"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/metrics"
)

// Defaults for Options zero values.
const (
	DefaultRecordTTL  = time.Minute
	DefaultMaxRecords = 500
	DefaultMaxPools   = 100
	DefaultPoolIdle   = 30 * time.Minute
)

// Options tunes a Registry.
type Options struct {
	DataDir    string
	Logger     *zap.SugaredLogger
	RecordTTL  time.Duration
	MaxRecords int
	MaxPools   int
	// HashPassword defaults to auth.HashPassword.
	HashPassword func(string) (string, error)
	Now          func() time.Time
}

// Registry resolves, registers, and opens tenants.  Safe for concurrent
// use.  Construct with New.
type Registry struct {
	master  *sqlx.DB
	dataDir string
	log     *zap.SugaredLogger
	now     func() time.Time
	hash    func(string) (string, error)

	records *cache.LRU[string, *Tenant]
	sfg     singleflight.Group

	// recMu orders record caching against Deactivate.  gen moves on every
	// deactivation so a load that started earlier cannot re-cache a stale
	// active row.
	recMu sync.Mutex
	gen   uint64
	pools   *poolSet
	valid   *validator.Validate
}

// New returns a Registry over master, creating DataDir if needed.
func New(master *sqlx.DB, opts Options) (*Registry, error) {
	if opts.DataDir == "" {
		return nil, errors.New("tenant: data dir required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("tenant: data dir: %w", err)
	}
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = DefaultRecordTTL
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	if opts.MaxPools <= 0 {
		opts.MaxPools = DefaultMaxPools
	}
	if opts.HashPassword == nil {
		opts.HashPassword = auth.HashPassword
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Registry{
		master:  master,
		dataDir: opts.DataDir,
		log:     logger.OrNop(opts.Logger),
		now:     opts.Now,
		hash:    opts.HashPassword,
		records: cache.New[string, *Tenant]("tenant", opts.MaxRecords, opts.RecordTTL),
		valid:   newValidator(),
	}
	r.pools = newPoolSet(r.openPool, opts.MaxPools)
	return r, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tenantcode", func(fl validator.FieldLevel) bool {
		return ValidCode(fl.Field().String())
	})
	return v
}

// DataDir returns the directory holding tenant files.
func (r *Registry) DataDir() string { return r.dataDir }

// Resolve returns the active tenant for code, or ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, code string) (*Tenant, error) {
	if !ValidCode(code) {
		metrics.TenantResolveTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}
	if t, ok := r.records.Get(code); ok {
		metrics.TenantResolveTotal.WithLabelValues("hit").Inc()
		return t, nil
	}

	v, err, _ := r.sfg.Do(code, func() (any, error) {
		gen := r.generation()
		t, err := byCode(ctx, r.master, code)
		if err != nil {
			return nil, err
		}
		if !t.Active() {
			return nil, ErrNotFound
		}
		r.cacheRecord(code, t, gen)
		return t, nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.TenantResolveTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	case err != nil:
		metrics.TenantResolveTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tenant: resolve %s: %w", code, err)
	}
	metrics.TenantResolveTotal.WithLabelValues("load").Inc()
	return v.(*Tenant), nil
}

func (r *Registry) generation() uint64 {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return r.gen
}

// cacheRecord stores t unless a deactivation happened after gen was read.
func (r *Registry) cacheRecord(code string, t *Tenant, gen uint64) bool {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	if r.gen != gen {
		return false
	}
	r.records.Set(code, t)
	return true
}

// Register creates a tenant row and its provisioned database atomically.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*Tenant, error) {
	t, err := r.register(ctx, in)
	switch {
	case err == nil:
		metrics.TenantRegisterTotal.WithLabelValues("ok").Inc()
		r.log.Infow("tenant registered", "tenant", t.Code, "id", t.ID)
	case errors.Is(err, ErrAlreadyExists):
		metrics.TenantRegisterTotal.WithLabelValues("conflict").Inc()
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidInput):
		metrics.TenantRegisterTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.TenantRegisterTotal.WithLabelValues("error").Inc()
		r.log.Errorw("tenant registration failed", "tenant", in.Code, "err", err)
	}
	return t, err
}

func (r *Registry) register(ctx context.Context, in RegisterInput) (*Tenant, error) {
	if err := r.validate(in); err != nil {
		return nil, err
	}

	if _, err := byCode(ctx, r.master, in.Code); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := r.hash(in.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("tenant: hash admin password: %w", err)
	}

	t := &Tenant{
		Code:       in.Code,
		Name:       in.Name,
		DBPath:     DBPath(r.dataDir, in.Code),
		Plan:       in.Plan,
		OwnerName:  in.AdminName,
		OwnerPhone: in.AdminPhone,
		Status:     StatusActive,
		CreatedAt:  r.now().UTC().Truncate(time.Second),
	}
	if t.Plan == "" {
		t.Plan = DefaultPlan
	}
	if t.OwnerName == "" {
		t.OwnerName = "Owner"
	}

	tx, err := r.master.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	id, err := insertTenant(ctx, tx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	// No row with this code exists, so any file at the path is debris from
	// an earlier failed attempt.
	_ = RemoveFiles(t.DBPath)

	admin := adminUser{Name: t.OwnerName, Phone: in.AdminPhone, PasswordHash: hash}
	if err := provision(ctx, t.DBPath, admin); err != nil {
		_ = RemoveFiles(t.DBPath)
		return nil, fmt.Errorf("tenant: provision %s: %w", t.Code, err)
	}

	if err := tx.Commit(); err != nil {
		_ = RemoveFiles(t.DBPath)
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("tenant: commit %s: %w", t.Code, err)
	}
	committed = true
	return t, nil
}

func (r *Registry) validate(in RegisterInput) error {
	if !ValidCode(in.Code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, in.Code)
	}
	if err := r.valid.Struct(in); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s (%s)", ErrInvalidInput, ve[0].Field(), ve[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Deactivate flips code to inactive, drops it from the cache, and closes
// its pool.
func (r *Registry) Deactivate(ctx context.Context, code string) error {
	if err := setStatus(ctx, r.master, code, StatusInactive); err != nil {
		return err
	}
	r.recMu.Lock()
	r.gen++
	r.records.Delete(code)
	r.recMu.Unlock()
	r.sfg.Forget(code)
	r.pools.drop(code)
	r.log.Infow("tenant deactivated", "tenant", code)
	return nil
}

// Active lists every active tenant ordered by code.
func (r *Registry) Active(ctx context.Context) ([]Tenant, error) {
	return allActive(ctx, r.master)
}

// Open returns the shared pool for t's database.
func (r *Registry) Open(ctx context.Context, t *Tenant) (*sqlx.DB, error) {
	return r.pools.get(ctx, t.Code, t.DBPath)
}

func (r *Registry) openPool(ctx context.Context, path string) (*sqlx.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("tenant: database missing: %w", err)
	}
	db, err := database.OpenSQLiteFile(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// VerifyLogin checks phone and password against code's users table and
// records the login time.
func (r *Registry) VerifyLogin(ctx context.Context, code, phone, password string) (*Login, error) {
	t, err := r.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	db, err := r.Open(ctx, t)
	if err != nil {
		return nil, err
	}

	u, err := activeUserByPhone(ctx, db, phone)
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(password, u.Password)
	if err != nil {
		r.log.Warnw("unreadable password hash", "tenant", code, "user", u.ID, "err", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := touchLastLogin(ctx, db, u.ID, r.now().UTC()); err != nil {
		r.log.Warnw("last_login update failed", "tenant", code, "user", u.ID, "err", err)
	}

	var perms []string
	if err := json.Unmarshal([]byte(u.Permissions), &perms); err != nil {
		perms = nil
	}
	return &Login{
		Tenant:      t,
		UserID:      u.ID,
		UserName:    u.Name,
		Role:        u.Role,
		Permissions: perms,
	}, nil
}

// CloseIdlePools closes pools unused for longer than idle and returns how
// many were closed.
func (r *Registry) CloseIdlePools(idle time.Duration) int {
	if idle <= 0 {
		idle = DefaultPoolIdle
	}
	return r.pools.closeIdle(idle)
}

// OpenPools reports how many tenant pools are open.
func (r *Registry) OpenPools() int { return r.pools.len() }

// Close closes every tenant pool.  The master handle belongs to the caller.
func (r *Registry) Close() error {
	r.pools.closeAll()
	return nil
}
