package gateway

import (
	"context"

	"raffle-system/internal/status"
)

// Provider represents the configured payment gateway provider.
type Provider string

const (
	ProviderFalconPay Provider = "falconpay"
	ProviderSandbox   Provider = "sandbox"
)

// Gateway is the common interface for payment gateway providers. Authorize is
// synchronous from the caller's point of view: a business decline is returned
// as an Authorization with Approved=false and a nil error, while transport and
// protocol failures are returned as errors.
type Gateway interface {
	// GetProvider returns the provider type
	GetProvider() Provider

	// Authorize attempts to charge the given amount against the credential
	Authorize(ctx context.Context, form *status.AuthorizationForm) (*status.Authorization, error)

	// CheckAuthorization looks up a previous authorization by its uuid
	CheckAuthorization(ctx context.Context, uuid string) (*status.Authorization, error)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}
