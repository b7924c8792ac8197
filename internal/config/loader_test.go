package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("no such secret")
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(body), 0o644))
	return root
}

const minimal = `
database:
  driver: sqlite
  master_dsn: "file:master.db"
  data_dir: data
`

func TestLoadFromAppliesDefaults(t *testing.T) {
	root := writeYAML(t, minimal)

	cfg, err := LoadFrom(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "cardeal_session", cfg.Session.CookieName)
	assert.Equal(t, time.Hour, cfg.CSRF.TTL)
	assert.Equal(t, time.Second, cfg.Scheduler.Tick)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Empty(t, cfg.HTTP.AdminToken)
	assert.Equal(t, filepath.Join(root, "data"), cfg.Database.DataDir)
	assert.Same(t, cfg, Get())
}

func TestLoadFromEnvOverride(t *testing.T) {
	root := writeYAML(t, minimal+`
ratelimit:
  rules:
    login:
      max: 5
      window: 60s
`)
	t.Setenv("CARDEAL_HTTP__LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := LoadFrom(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.ListenAddr)
	assert.Equal(t, RateRule{Max: 5, Window: time.Minute}, cfg.RateLimit.Rules["login"])
}

func TestLoadFromResolvesVaultRefs(t *testing.T) {
	root := writeYAML(t, `
database:
  driver: mysql
  master_dsn: "vault:kv/cardeal/db#dsn"
  data_dir: /var/lib/cardeal
`)
	secrets := fakeSecrets{"vault:kv/cardeal/db#dsn": "u:p@tcp(db:3306)/cardeal"}

	cfg, err := LoadFrom(context.Background(), root, secrets)
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/cardeal", cfg.Database.MasterDSN)
}

func TestLoadFromBackupDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), writeYAML(t, minimal), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, 2, cfg.Backup.WindowStart)
	assert.Equal(t, 4, cfg.Backup.WindowEnd)
}

func TestLoadFromBackupExplicitZeros(t *testing.T) {
	root := writeYAML(t, minimal+`
backup:
  dir: backups
  retention_days: 0
  window_start: 0
  window_end: 0
`)
	cfg, err := LoadFrom(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Backup.RetentionDays, "0 keeps every backup")
	assert.Equal(t, 0, cfg.Backup.WindowStart)
	assert.Equal(t, 0, cfg.Backup.WindowEnd, "midnight-only window")
}

func TestLoadFromShortAdminToken(t *testing.T) {
	root := writeYAML(t, minimal+`
http:
  admin_token: short
`)
	_, err := LoadFrom(context.Background(), root, nil)
	assert.ErrorContains(t, err, "Config.HTTP.AdminToken")
}

func TestLoadFromVaultRefWithoutResolver(t *testing.T) {
	root := writeYAML(t, `
database:
  master_dsn: "vault:kv/cardeal/db#dsn"
  data_dir: data
`)
	_, err := LoadFrom(context.Background(), root, nil)
	assert.ErrorContains(t, err, "no vault client")
}

func TestLoadFromValidationFails(t *testing.T) {
	root := writeYAML(t, `
database:
  driver: postgres
  master_dsn: x
  data_dir: data
`)
	_, err := LoadFrom(context.Background(), root, nil)
	assert.ErrorContains(t, err, "Config.Database.Driver")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "backup.s3.bucket", envKey("CARDEAL_BACKUP__S3__BUCKET"))
}
