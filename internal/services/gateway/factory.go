package gateway

import (
	"context"
	"fmt"

	"raffle-system/internal/services/gateway/falconpay"
)

// New creates the gateway for the configured provider.
func New(ctx context.Context, provider Provider, falconCfg *falconpay.Config) (Gateway, error) {
	switch provider {
	case ProviderFalconPay:
		return NewFalconPayAdapter(ctx, falconCfg)

	case ProviderSandbox:
		return NewSandbox(), nil

	default:
		return nil, fmt.Errorf("unsupported payment provider: %q", provider)
	}
}

// SupportedProviders lists the providers this build knows about.
func SupportedProviders() []Provider {
	return []Provider{ProviderFalconPay, ProviderSandbox}
}
