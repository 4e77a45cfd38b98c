// Package status holds the types shared between the raffle core, the payment
// gateway providers and the HTTP layer.
package status

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies a failed raffle entry. Every kind is recoverable; none is
// fatal to the process.
type Kind string

const (
	KindSoldOut          Kind = "sold_out"
	KindAllocationFailed Kind = "allocation_failed"
	KindPaymentFailed    Kind = "payment_failed"
	KindValidationError  Kind = "validation_error"
	KindBlocked          Kind = "blocked"
)

// EntryError is a structured raffle entry failure reported to the caller.
type EntryError struct {
	Kind    Kind
	Message string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewEntryError(kind Kind, message string) *EntryError {
	return &EntryError{Kind: kind, Message: message}
}

// KindOf extracts the entry error kind, if err carries one.
func KindOf(err error) (Kind, bool) {
	var entryErr *EntryError
	if errors.As(err, &entryErr) {
		return entryErr.Kind, true
	}
	return "", false
}

// AuthorizationForm is a payment authorization request to a gateway provider.
type AuthorizationForm struct {
	UUID        string          `json:"uuid"`
	Credential  string          `json:"credential"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	MerchantID  string          `json:"merchant_id,omitempty"`
}

// Authorization is the resolved outcome of an authorization attempt. A business
// decline is reported with Approved=false and a nil error from the gateway; a
// transport or protocol failure is reported as a non-nil error instead. The
// raffle core treats both the same way: the reserved ticket is released.
type Authorization struct {
	Approved bool            `json:"approved"`
	RefID    string          `json:"ref_id"`
	Message  string          `json:"message"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
