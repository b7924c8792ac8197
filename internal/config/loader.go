// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` from three layers (highest
precedence last):

  1. Optional `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `CARDEAL_`, where `__` maps to "."
     (e.g., `CARDEAL_DATABASE__DATA_DIR → database.data_dir`).

After merging, every string value written as `vault:<path>#<key>` is
swapped for the secret it names, then the tree is unmarshalled, defaults
are filled, validated, and cached in an `atomic.Pointer`.

Notes
-----
  • `rootDir()` climbs from the cwd until it finds `conf/global.yaml`, so
    `go run ./cmd/web` works from any sub-directory.
  • Logs use `zap.S()` so early boot issues surface before the file logger
    is installed.
  • A vault reference with no resolver configured is a load error.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/vault"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CARDEAL_"

// SecretResolver turns a `vault:` reference into its value.
// *vault.Client satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var current atomic.Pointer[Config]

// RootDir resolves CARDEAL_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to the executable's parent when
// installed under bin/.
func RootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

// Load discovers the root and calls LoadFrom.
func Load(ctx context.Context, secrets SecretResolver) (*Config, error) {
	return LoadFrom(ctx, RootDir(), secrets)
}

// LoadFrom reads .env, YAML, and env overrides under root, resolves vault
// references through secrets (may be nil), validates, and caches Config.
func LoadFrom(ctx context.Context, root string, secrets SecretResolver) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	applyDefaults(&cfg, k.Exists)
	if !filepath.IsAbs(cfg.Database.DataDir) && cfg.Database.DataDir != "" {
		cfg.Database.DataDir = filepath.Join(root, cfg.Database.DataDir)
	}
	if !filepath.IsAbs(cfg.Backup.Dir) && cfg.Backup.Dir != "" {
		cfg.Backup.Dir = filepath.Join(root, cfg.Backup.Dir)
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"db_driver", cfg.Database.Driver,
		"data_dir", cfg.Database.DataDir,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps CARDEAL_HTTP__LISTEN_ADDR to http.listen_addr.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets SecretResolver) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !vault.IsRef(s) {
			continue
		}
		if secrets == nil {
			return fmt.Errorf("config: %s references vault but no vault client is configured", key)
		}
		plain, err := secrets.Resolve(ctx, s)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the most recently loaded Config, or nil before Load.
func Get() *Config { return current.Load() }
