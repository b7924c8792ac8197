package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// Recording against an unreachable server surfaces the error so the caller
// can log it; the limiter never sees it.
func TestRedisStatsUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	s := NewRedisStats(rdb, WithRedisPrefix("test:rl:"), WithRedisTTL(time.Minute))
	assert.Equal(t, "test:rl", s.prefix)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, s.Record(ctx, Event{Rule: Login, Allowed: true}))
}
