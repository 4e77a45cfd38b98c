package gateway

import (
	"context"
	"fmt"

	"raffle-system/internal/services/gateway/falconpay"
	"raffle-system/internal/status"
)

// FalconPayAdapter wraps the FalconPay client to conform to Gateway
type FalconPayAdapter struct {
	client *falconpay.FalconPay
}

// NewFalconPayAdapter creates a new FalconPay adapter
func NewFalconPayAdapter(ctx context.Context, config *falconpay.Config) (*FalconPayAdapter, error) {
	client, err := falconpay.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create FalconPay client: %w", err)
	}

	return &FalconPayAdapter{
		client: client,
	}, nil
}

func (f *FalconPayAdapter) GetProvider() Provider {
	return ProviderFalconPay
}

func (f *FalconPayAdapter) Authorize(ctx context.Context, form *status.AuthorizationForm) (*status.Authorization, error) {
	return f.client.Authorize(ctx, form)
}

func (f *FalconPayAdapter) CheckAuthorization(ctx context.Context, uuid string) (*status.Authorization, error) {
	return f.client.CheckAuthorization(ctx, uuid)
}

func (f *FalconPayAdapter) Close(ctx context.Context) error {
	return f.client.Close(ctx)
}
