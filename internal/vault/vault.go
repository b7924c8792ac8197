// internal/vault/vault.go
//
// Vault client wrapper.
//
// Context
// -------
// Secrets (master DB password, S3 keys, Redis password) may be written in
// config as references of the form `vault:<mount>/<path>#<key>`.  The
// config loader hands each reference to Client.Resolve, which reads the
// KV-v2 secret and caches the value for a short TTL.  A background loop
// keeps the token renewed for the life of the process.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, log)            // during boot, if VAULT_ADDR set.
//  2. v, err := cli.Resolve(ctx, "vault:kv/cardeal/db#password")
//
// Notes
// -----
//   - Environment: VAULT_ADDR, VAULT_TOKEN (falls back to ~/.vault-token).
//   - Oxford commas, two spaces after periods.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/logger"
)

// RefPrefix marks a config value that must be resolved through Vault.
const RefPrefix = "vault:"

// ErrBadRef is returned for references that are not `vault:<path>#<key>`.
var ErrBadRef = errors.New("vault: malformed secret reference")

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cached // path#key → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the environment and starts the token
// renewal loop, which exits when ctx is cancelled.
func New(ctx context.Context, log *zap.SugaredLogger) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{
		api:   apiCli,
		log:   logger.OrNop(log),
		ttl:   5 * time.Minute,
		cache: make(map[string]cached),
	}
	go c.renewLoop(ctx)
	return c, nil
}

// IsRef reports whether s is a Vault reference.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// ParseRef splits `vault:<path>#<key>` into its path and key.
func ParseRef(ref string) (path, key string, err error) {
	if !IsRef(ref) {
		return "", "", ErrBadRef
	}
	body := strings.TrimPrefix(ref, RefPrefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	return path, key, nil
}

// Resolve fetches the secret a reference points at.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return c.GetKV(ctx, path, key)
}

// GetKV fetches a single key from a KV-v2 secret, serving repeated reads
// from the in-process cache until the TTL passes.
func (c *Client) GetKV(ctx context.Context, secretPath, key string) (string, error) {
	canonical := secretPath + "#" + key

	c.mu.RLock()
	cv, ok := c.cache[canonical]
	c.mu.RUnlock()
	if ok && time.Now().Before(cv.exp) {
		return cv.val, nil
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("vault: key %q not found in %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: value at %s is not a string", canonical)
	}

	c.mu.Lock()
	c.cache[canonical] = cached{val: sval, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return sval, nil
}

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.log.Warnw("vault token renew failed", "err", err)
			sleepCtx(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token not renewable")
			sleepCtx(ctx, time.Hour)
			continue
		}

		w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
		if err != nil {
			c.log.Warnw("vault watcher init failed", "err", err)
			sleepCtx(ctx, 30*time.Second)
			continue
		}
		c.watch(ctx, w)
	}
}

// watch blocks until the watcher finishes or ctx is done.
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	go w.Start()
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			sleepCtx(ctx, 15*time.Second)
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
