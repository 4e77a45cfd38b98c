package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyer_Validate(t *testing.T) {
	valid := Buyer{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Phone: "02055551234",
	}
	assert.NoError(t, valid.Validate())
}

func TestBuyer_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		buyer Buyer
	}{
		{"missing name", Buyer{Email: "ada@example.com", Phone: "02055551234"}},
		{"missing email", Buyer{Name: "Ada", Phone: "02055551234"}},
		{"malformed email", Buyer{Name: "Ada", Email: "not-an-email", Phone: "02055551234"}},
		{"missing phone", Buyer{Name: "Ada", Email: "ada@example.com"}},
		{"phone too short", Buyer{Name: "Ada", Email: "ada@example.com", Phone: "12"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.buyer.Validate())
		})
	}
}

func TestTicket_ValidStates(t *testing.T) {
	validStates := []TicketState{StateAvailable, StateReserved, StateSold}

	for _, state := range validStates {
		ticket := Ticket{
			ID:    "test-ticket",
			State: state,
		}

		assert.Equal(t, state, ticket.State)
	}
}

func TestTicket_AvailableHasNoBuyer(t *testing.T) {
	ticket := Ticket{
		ID:     "abc123",
		Number: 42,
		State:  StateAvailable,
	}

	jsonData, err := json.Marshal(ticket)
	require.NoError(t, err)

	var unmarshaled Ticket
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))

	// Optional fields stay absent for an available ticket
	assert.Empty(t, unmarshaled.BuyerName)
	assert.Empty(t, unmarshaled.PaymentRef)
	assert.Nil(t, unmarshaled.AmountCharged)
	assert.Nil(t, unmarshaled.ReservedAt)
	assert.Nil(t, unmarshaled.SoldAt)
}

func TestTicket_SoldCarriesChargeEqualToNumber(t *testing.T) {
	soldAt := time.Now()
	amount := int64(42)

	ticket := Ticket{
		ID:            "abc123",
		Number:        42,
		State:         StateSold,
		BuyerName:     "Ada Lovelace",
		BuyerEmail:    "ada@example.com",
		BuyerPhone:    "02055551234",
		PaymentRef:    "FP-REF-1",
		AmountCharged: &amount,
		SoldAt:        &soldAt,
	}

	require.NotNil(t, ticket.AmountCharged)
	assert.Equal(t, int64(ticket.Number), *ticket.AmountCharged)
}
