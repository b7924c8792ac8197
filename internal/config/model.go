// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs define the configuration tree that loader.go builds from
// three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `CARDEAL_`-prefixed environment overrides – highest precedence.
//
// Any string value that begins with `vault:` is resolved through Vault
// before unmarshalling, so the model only ever holds plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`.  Durations accept Go syntax ("90s").
//   • Zero values are filled by applyDefaults, then validated.
//   • The `Paths` block is filled at runtime; YAML must not set it.

package config

import "time"

// HTTP holds web-server tunables.
//
// AdminToken guards /api/system; leave it empty to leave those routes
// unmounted.  TrustProxy lets X-Forwarded-For and X-Real-IP pick the client
// address, which is only safe behind a proxy that overwrites them.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	TrustProxy      bool          `koanf:"trust_proxy"`
	AdminToken      string        `koanf:"admin_token"      validate:"omitempty,min=16"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// Database locates the master tenant registry and the per-tenant files.
//
// Driver is "sqlite" for single-box installs or "mysql" for a shared
// registry.  Tenant databases are always SQLite files under DataDir.
type Database struct {
	Driver    string `koanf:"driver"     validate:"required,oneof=sqlite mysql"`
	MasterDSN string `koanf:"master_dsn" validate:"required"`
	DataDir   string `koanf:"data_dir"   validate:"required"`
}

// Session controls the in-memory session store and its cookie.
type Session struct {
	TTL          time.Duration `koanf:"ttl"           validate:"gt=0"`
	CookieName   string        `koanf:"cookie_name"   validate:"required"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// CachePool sizes one named cache pool.
type CachePool struct {
	Name    string        `koanf:"name"     validate:"required"`
	MaxSize int           `koanf:"max_size" validate:"gte=0"`
	TTL     time.Duration `koanf:"ttl"      validate:"gte=0"`
}

// Cache lists the named pools.  Empty means the built-in defaults.
type Cache struct {
	Pools []CachePool `koanf:"pools" validate:"dive"`
}

// RateRule is one (max requests, window) pair.
type RateRule struct {
	Max    int           `koanf:"max"    validate:"gt=0"`
	Window time.Duration `koanf:"window" validate:"gt=0"`
}

// RateLimit overrides or extends the built-in rules by name.
type RateLimit struct {
	Rules map[string]RateRule `koanf:"rules" validate:"dive"`
}

// CSRF controls one-time token lifetime.
type CSRF struct {
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

// Scheduler controls the maintenance loop.
type Scheduler struct {
	Tick time.Duration `koanf:"tick" validate:"gt=0"`
}

// Jobs sizes the background job queue.
type Jobs struct {
	Workers int           `koanf:"workers" validate:"gt=0"`
	Idle    time.Duration `koanf:"idle"    validate:"gt=0"`
}

// S3 configures optional off-site copies of backup files.  Empty Bucket
// disables the upload.
type S3 struct {
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// Backup controls the daily database copy.
type Backup struct {
	Enabled       bool   `koanf:"enabled"`
	Dir           string `koanf:"dir"            validate:"required_if=Enabled true"`
	RetentionDays int    `koanf:"retention_days" validate:"gte=0"` // 0 keeps every file
	WindowStart   int    `koanf:"window_start"   validate:"gte=0,lte=23"`
	WindowEnd     int    `koanf:"window_end"     validate:"gte=0,lte=23,gtefield=WindowStart"`
	S3            S3     `koanf:"s3"`
}

// Redis is optional.  Empty Addr disables Redis-backed rate-limit stats.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Log controls the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// GeoIP points at an optional MaxMind country database.
type GeoIP struct {
	DBPath string `koanf:"db_path"`
}

// Paths is resolved at runtime.
type Paths struct {
	Root string
}

// Config is the immutable aggregate returned by Load and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Session   Session   `koanf:"session"`
	Cache     Cache     `koanf:"cache"`
	RateLimit RateLimit `koanf:"ratelimit"`
	CSRF      CSRF      `koanf:"csrf"`
	Scheduler Scheduler `koanf:"scheduler"`
	Jobs      Jobs      `koanf:"jobs"`
	Backup    Backup    `koanf:"backup"`
	Redis     Redis     `koanf:"redis"`
	Log       Log       `koanf:"log"`
	GeoIP     GeoIP     `koanf:"geoip"`
	Paths     Paths     `koanf:"-"`
}

// applyDefaults fills zero values with production defaults.  isSet reports
// whether a dotted key was present in any layer.
func applyDefaults(c *Config, isSet func(key string) bool) {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "cardeal_session"
	}
	if c.CSRF.TTL == 0 {
		c.CSRF.TTL = time.Hour
	}
	if c.Scheduler.Tick == 0 {
		c.Scheduler.Tick = time.Second
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.Idle == 0 {
		c.Jobs.Idle = 100 * time.Millisecond
	}
	// Zero is meaningful for these (keep every backup, midnight window), so
	// only an absent key gets the default.
	if !isSet("backup.retention_days") {
		c.Backup.RetentionDays = 7
	}
	if !isSet("backup.window_start") && !isSet("backup.window_end") {
		c.Backup.WindowStart, c.Backup.WindowEnd = 2, 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
