package accountlink

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when the provider has no client credentials.
var ErrNotConfigured = errors.New("account link provider is not configured")

// Identity is the external account behind an authorization code.
type Identity struct {
	ExternalID  string
	DisplayName string
}

// Provider turns an OAuth authorization code into the identity it was issued for.
type Provider interface {
	Exchange(ctx context.Context, code string) (Identity, error)
}

// RejectedError is the provider refusing a step of the exchange, typically an
// expired or reused code.
type RejectedError struct {
	Step       string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("account link %s rejected (%d): %s", e.Step, e.StatusCode, e.Body)
}
