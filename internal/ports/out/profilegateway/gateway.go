package profilegateway

import (
	"context"

	"github.com/Lumos-Programming/profile-api/internal/domain"
)

// Ack acknowledges a completed save.
type Ack struct {
	// IdempotencyKey is the key the save was sent with.
	IdempotencyKey string
	StatusCode     int
}

// Gateway loads and replaces the owner's profile on the remote persistence collaborator.
//
// Load fails with *NetworkError or *SchemaError. Save fails with *NetworkError or
// *ValidationError. Neither retries on its own.
type Gateway interface {
	Load(ctx context.Context) (*domain.Profile, error)
	Save(ctx context.Context, p *domain.Profile) (Ack, error)
}
