package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultRoutingCode = "BANK1234567"
	DefaultCreditScore = 600
	MinCreditScore     = 0
	MaxCreditScore     = 900
)

// Account is a customer row. Balance and LoanAmount never go negative.
type Account struct {
	UserID        string          `json:"user_id"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	Address       string          `json:"address"`
	MobileNumber  string          `json:"mobile_number"`
	NationalID    string          `json:"national_id"`
	AccountNumber string          `json:"account_number"`
	RoutingCode   string          `json:"routing_code"`
	CardNumber    string          `json:"card_number"`
	PinHash       string          `json:"-"`
	Balance       decimal.Decimal `json:"balance"`
	CreditScore   int             `json:"credit_score"`
	LoanAmount    decimal.Decimal `json:"loan_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a copy safe to mutate.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// OpenAccountRequest is the input for account opening.
type OpenAccountRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Address      string `json:"address"`
	MobileNumber string `json:"mobile_number"`
	NationalID   string `json:"national_id"`
}

// OpenedAccount is returned once at opening; Pin is never stored in clear.
type OpenedAccount struct {
	Account *Account `json:"account"`
	Pin     string   `json:"pin"`
}
