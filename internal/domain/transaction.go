package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit       TransactionType = "Deposit"
	TransactionWithdrawal    TransactionType = "Withdrawal"
	TransactionTransferOut   TransactionType = "Transfer-Out"
	TransactionTransferIn    TransactionType = "Transfer-In"
	TransactionLoanTaken     TransactionType = "Loan-Taken"
	TransactionLoanRepayment TransactionType = "Loan-Repayment"

	// recorded by external settlement, only read by the scorer
	TransactionFailed  TransactionType = "Failed"
	TransactionBounced TransactionType = "Bounced"
)

// IsPenalty reports whether the type counts against the credit score.
func (t TransactionType) IsPenalty() bool {
	return t == TransactionFailed || t == TransactionBounced
}

// Transaction is an append-only ledger record. Debits carry a negative amount.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"transaction_type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// MutationResult is the reconciled state of one account after a committed operation.
type MutationResult struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	LoanAmount    decimal.Decimal `json:"loan_amount"`
	CreditScore   int             `json:"credit_score"`
	Transaction   *Transaction    `json:"transaction"`
}

type TransferResult struct {
	From *MutationResult `json:"from"`
	To   *MutationResult `json:"to"`
}

type LoanResult struct {
	*MutationResult
	InterestRate decimal.Decimal `json:"interest_rate"`
	MaxLoan      decimal.Decimal `json:"max_loan"`
}
