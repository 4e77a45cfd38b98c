// Package falconpay implements the FalconPay acquiring API client: token-based
// authentication with automatic refresh and HMAC-signed requests.
package falconpay

import (
	"context"

	"raffle-system/internal/status"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID  string `json:"partnerId" mapstructure:"partner_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
}

type FalconPay struct {
	MerchantID string

	client *Client
}

// New returns a new FalconPay instance.
func New(ctx context.Context, cfg *Config) (*FalconPay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	// Connect to the FalconPay backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	return &FalconPay{
		MerchantID: cfg.MerchantID,
		client:     client,
	}, nil
}

func (f *FalconPay) Authorize(ctx context.Context, form *status.AuthorizationForm) (*status.Authorization, error) {
	if form.MerchantID == "" {
		form.MerchantID = f.MerchantID
	}
	return f.client.authorize(ctx, form)
}

func (f *FalconPay) CheckAuthorization(ctx context.Context, uuid string) (*status.Authorization, error) {
	return f.client.checkAuthorization(ctx, uuid)
}

func (f *FalconPay) Close(_ context.Context) error {
	return nil
}
