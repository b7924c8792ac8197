// internal/ratelimit/stats_redis.go
//
// Redis-backed decision counters.
//
// Layout under Prefix (default "cardeal:ratelimit"):
//
//	<prefix>:total              hash  allowed|denied
//	<prefix>:rule               hash  <rule>:allowed|<rule>:denied
//	<prefix>:minute:<yyyymmddHHMM>  hash  allowed|denied, expires after TTL
//
// Keys (client IPs, phone numbers) are never written to Redis.  The limiter
// itself stays in memory; Redis only aggregates counts across restarts and
// across several instances.

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats writes decision counts with one pipelined round trip.
type RedisStats struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOption configures RedisStats.
type RedisOption func(*RedisStats)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(p string) RedisOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(p, ":") }
}

// WithRedisTTL sets the lifetime of per-minute buckets.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStats) { s.ttl = d }
}

// NewRedisStats wraps rdb.
func NewRedisStats(rdb redis.Cmdable, opts ...RedisOption) *RedisStats {
	s := &RedisStats{rdb: rdb, prefix: "cardeal:ratelimit", ttl: 24 * time.Hour}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record implements StatsRecorder.
func (s *RedisStats) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if ev.Rule != "" {
		pipe.HIncrBy(ctx, s.prefix+":rule", ev.Rule+":"+field, 1)
	}
	bucket := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucket, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucket, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Total reads the overall counters back.
func (s *RedisStats) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	_, _ = fmt.Sscan(vals["allowed"], &c.Allowed)
	_, _ = fmt.Sscan(vals["denied"], &c.Denied)
	return c, nil
}
