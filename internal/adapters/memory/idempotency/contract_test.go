package idempotency

import (
	"testing"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/adapters/contracttest"
	memclock "github.com/Lumos-Programming/profile-api/internal/adapters/memory/clock"
	idempotencyport "github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
)

func TestContract_IdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(memclock.NewManualClock(time.Unix(1000, 0).UTC()), 24*time.Hour), nil
	})
}
