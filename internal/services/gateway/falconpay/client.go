package falconpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"raffle-system/internal/status"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the FalconPay backend.
	baseURL string

	// partnerID is the partner id of the FalconPay backend.
	partnerID string

	// clientID is the client id of the FalconPay backend.
	clientID string

	// clientKey is the client key of the FalconPay backend.
	clientKey string

	// hmacKey is the hmac key of the FalconPay backend.
	hmacKey string

	// access token is used to authenticate with the FalconPay backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

// newClient creates new instance of the FalconPay client.
func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired do infinite loop with period of time
// to perform auto renew token from the FalconPay backend with
// exponential backOff strategy.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken get access token from client.
func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect makes http call to perform authentication with the FalconPay backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connectFalconPay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientSecret":%q}`, number, c.partnerID, c.clientID, c.clientKey)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/acquiring/authenticate"), bodyReader)
	if err != nil {
		return "", fmt.Errorf("connectFalconPay: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectFalconPay: http.Do: %v", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return "", errors.New("connectFalconPay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connectFalconPay: http.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectFalconPay: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectFalconPay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	accessToken := fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken)
	return accessToken, nil
}

// authorize posts an authorization request to the FalconPay acquiring api. A
// business decline comes back as a well-formed reply with result "declined"
// and maps to Approved=false with a nil error.
func (c *Client) authorize(ctx context.Context, f *status.AuthorizationForm) (*status.Authorization, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("authorizeFalconPay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"merchantId":%q,"billNumber":%q,"txnAmount":%s,"currency":%q,"paymentToken":%q,"description":%q}`,
		number, c.partnerID, f.MerchantID, f.UUID, f.Amount, f.Currency, f.Credential, f.Description)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/acquiring/authorize"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("authorizeFalconPay: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authorizeFalconPay: http.Do: %v", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("authorizeFalconPay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authorizeFalconPay: http.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Result string `json:"result"`
			RefNo  string `json:"refNo"`
			Reason string `json:"reason"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("authorizeFalconPay: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("authorizeFalconPay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	switch reply.Data.Result {
	case "approved":
		return &status.Authorization{
			Approved: true,
			RefID:    reply.Data.RefNo,
			Amount:   f.Amount,
			Currency: f.Currency,
		}, nil

	case "declined":
		return &status.Authorization{
			Approved: false,
			Message:  reply.Data.Reason,
			Amount:   f.Amount,
			Currency: f.Currency,
		}, nil

	default:
		return nil, fmt.Errorf("authorizeFalconPay: unknown result: %q", reply.Data.Result)
	}
}

// checkAuthorization looks up an authorization by bill number.
func (c *Client) checkAuthorization(ctx context.Context, uuid string) (*status.Authorization, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("checkAuthorizationFalconPay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"billNumber":%q}`, number, uuid)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/acquiring/checkTransaction"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("checkAuthorizationFalconPay: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkAuthorizationFalconPay: http.Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("checkAuthorizationFalconPay: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Result   string          `json:"result"`
			RefNo    string          `json:"refNo"`
			Amount   json.RawMessage `json:"txnAmount"`
			Currency string          `json:"currency"`
			Reason   string          `json:"reason"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkAuthorizationFalconPay: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("checkAuthorizationFalconPay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	auth := &status.Authorization{
		Approved: reply.Data.Result == "approved",
		RefID:    reply.Data.RefNo,
		Message:  reply.Data.Reason,
		Currency: reply.Data.Currency,
	}
	return auth, nil
}
