package falconpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/status"
)

const testHMACKey = "test-hmac-key"

// newTestBackend serves the authenticate endpoint plus a scripted authorize
// result, verifying the HMAC signature of every request body.
func newTestBackend(t *testing.T, authorizeResult string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		if !VerifyHMAC(body, []byte(testHMACKey), r.Header.Get("SignedHash")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/api/acquiring/authenticate":
			fmt.Fprint(w, `{"status":"OK","message":"","data":{"accessToken":"token-123","tokenType":"Bearer"}}`)

		case "/api/acquiring/authorize":
			assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			assert.NotEmpty(t, req["requestId"])
			assert.NotEmpty(t, req["billNumber"])

			fmt.Fprint(w, authorizeResult)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestFalconPay(t *testing.T, backend *httptest.Server) *FalconPay {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fp, err := New(ctx, &Config{
		BaseURL:    backend.URL,
		PartnerID:  "partner-1",
		ClientID:   "client-1",
		ClientKey:  "secret",
		HMACKey:    testHMACKey,
		MerchantID: "merchant-1",
	})
	require.NoError(t, err)
	return fp
}

func testForm() *status.AuthorizationForm {
	return &status.AuthorizationForm{
		UUID:        "BILL-1",
		Credential:  "tok_visa",
		Amount:      decimal.NewFromInt(42),
		Currency:    "USD",
		Description: "raffle ticket #42",
	}
}

func TestAuthorize_Approved(t *testing.T) {
	backend := newTestBackend(t,
		`{"status":"OK","message":"","data":{"result":"approved","refNo":"FP-REF-77"}}`)
	defer backend.Close()

	fp := newTestFalconPay(t, backend)

	auth, err := fp.Authorize(context.Background(), testForm())
	require.NoError(t, err)

	assert.True(t, auth.Approved)
	assert.Equal(t, "FP-REF-77", auth.RefID)
	assert.True(t, auth.Amount.Equal(decimal.NewFromInt(42)))
}

func TestAuthorize_Declined(t *testing.T) {
	backend := newTestBackend(t,
		`{"status":"OK","message":"","data":{"result":"declined","reason":"insufficient funds"}}`)
	defer backend.Close()

	fp := newTestFalconPay(t, backend)

	auth, err := fp.Authorize(context.Background(), testForm())
	require.NoError(t, err)

	// Business decline: resolved outcome, nil error
	assert.False(t, auth.Approved)
	assert.Equal(t, "insufficient funds", auth.Message)
}

func TestAuthorize_ProtocolError(t *testing.T) {
	backend := newTestBackend(t,
		`{"status":"ERROR","message":"merchant suspended","data":{}}`)
	defer backend.Close()

	fp := newTestFalconPay(t, backend)

	_, err := fp.Authorize(context.Background(), testForm())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merchant suspended")
}

func TestAuthorize_BackendDown(t *testing.T) {
	backend := newTestBackend(t, "")
	fp := newTestFalconPay(t, backend)
	backend.Close()

	_, err := fp.Authorize(context.Background(), testForm())
	assert.Error(t, err)
}

func TestAuthorize_FillsMerchantID(t *testing.T) {
	backend := newTestBackend(t,
		`{"status":"OK","message":"","data":{"result":"approved","refNo":"FP-REF-1"}}`)
	defer backend.Close()

	fp := newTestFalconPay(t, backend)

	form := testForm()
	_, err := fp.Authorize(context.Background(), form)
	require.NoError(t, err)

	assert.Equal(t, "merchant-1", form.MerchantID)
}

func TestNew_AuthenticationFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"ERROR","message":"bad credentials","data":{}}`)
	}))
	defer backend.Close()

	_, err := New(context.Background(), &Config{
		BaseURL:   backend.URL,
		PartnerID: "partner-1",
		ClientID:  "client-1",
		ClientKey: "wrong",
		HMACKey:   testHMACKey,
	})
	assert.Error(t, err)
}
