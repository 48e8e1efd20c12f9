package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lumos-Programming/profile-api/internal/adapters/contracttest"
	memclock "github.com/Lumos-Programming/profile-api/internal/adapters/memory/clock"
	idempotencyport "github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
)

func TestContract_RedisIdempotencyStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(rdb, memclock.NewManualClock(time.Unix(1000, 0).UTC()), time.Hour), nil
	})
}

func TestRedisKey_EscapesSeparators(t *testing.T) {
	t.Parallel()

	a := idempotencyport.Fingerprint{Key: "a|b", Subject: "s", Method: "PUT", Route: "/r"}
	b := idempotencyport.Fingerprint{Key: "a", Subject: "s", Method: "PUT", Route: "/r|b"}
	if redisKey(a) == redisKey(b) {
		t.Fatalf("redisKey collision: %q", redisKey(a))
	}
}
