package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type TicketState string

const (
	StateAvailable TicketState = "available"
	StateReserved  TicketState = "reserved"
	StateSold      TicketState = "sold"
)

// Ticket is one allocatable unit of the pool. Number is unique and immutable;
// when the ticket is sold, AmountCharged always equals Number.
type Ticket struct {
	ID            string      `db:"id" json:"id"`
	Number        int         `db:"number" json:"number"`
	State         TicketState `db:"state" json:"state"`
	BuyerName     string      `db:"buyer_name" json:"buyer_name,omitempty"`
	BuyerEmail    string      `db:"buyer_email" json:"buyer_email,omitempty"`
	BuyerPhone    string      `db:"buyer_phone" json:"buyer_phone,omitempty"`
	PaymentRef    string      `db:"payment_ref" json:"payment_ref,omitempty"`
	AmountCharged *int64      `db:"amount_charged" json:"amount_charged,omitempty"`
	ReservedAt    *time.Time  `db:"reserved_at" json:"reserved_at,omitempty"`
	SoldAt        *time.Time  `db:"sold_at" json:"sold_at,omitempty"`
}

// Buyer is the identity bundle attached to a reserved or sold ticket.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (b Buyer) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&b.Email, validation.Required, is.Email),
		validation.Field(&b.Phone, validation.Required, validation.Length(4, 32)),
	)
}

// Entry is the successful outcome of a raffle entry.
type Entry struct {
	TicketNumber     int    `json:"ticket_number"`
	AmountCharged    int64  `json:"amount_charged"`
	PaymentReference string `json:"payment_reference"`
}

// BoardEntry is one row of the public ticket board.
type BoardEntry struct {
	Number int         `db:"number" json:"number"`
	State  TicketState `db:"state" json:"state"`
}

type BoardSummary struct {
	Total     int `json:"total"`
	Sold      int `json:"sold"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

// InitResult reports the outcome of a pool initialization attempt.
type InitResult struct {
	AlreadyInitialized bool `json:"already_initialized"`
	Count              int  `json:"count"`
}
