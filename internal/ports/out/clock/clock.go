package clock

import "time"

// Clock provides time to the application: profile timestamps and idempotency expiry.
// Tests substitute a manual implementation.
type Clock interface {
	Now() time.Time
}
