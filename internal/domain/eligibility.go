package domain

import "github.com/shopspring/decimal"

// Eligibility is the outcome of a loan eligibility check.
// Reason is set only when Eligible is false.
type Eligibility struct {
	Eligible     bool            `json:"eligible"`
	Score        int             `json:"credit_score"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	MaxLoan      decimal.Decimal `json:"max_loan"`
	Reason       string          `json:"reason,omitempty"`
}
