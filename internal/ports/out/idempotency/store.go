package idempotency

import (
	"context"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint scopes a key to one caller and one route, e.g. "PUT /api/profile/basic-info".
// The request body is not part of the fingerprint: replaying a key with a different
// body is detected by comparing Record.BodyHash.
type Fingerprint struct {
	Key     Key
	Subject domain.SubjectID
	Method  string
	Route   string
}

// Record is the stored response replayed for a duplicate request.
type Record struct {
	BodyHash    string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Store persists idempotency records. Put overwrites; Get reports ok=false for unknown
// or expired fingerprints.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
}
