package repository

import (
	"context"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerStore is the authoritative record of customers and their transactions.
type LedgerStore interface {
	BeginTx(ctx context.Context) (LedgerTx, error)

	InsertCustomer(ctx context.Context, account *domain.Account) error
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// DeleteCustomer removes the customer and its whole transaction history atomically.
	DeleteCustomer(ctx context.Context, accountNumber string) error

	// RecentTransactions returns at most limit records, newest first.
	RecentTransactions(ctx context.Context, accountNumber string, limit int) ([]*domain.Transaction, error)

	Close()
}

// LedgerTx groups every write of one logical operation. Nothing is visible
// to other callers until Commit; Rollback after Commit is a no-op.
type LedgerTx interface {
	// LockAccounts locks the rows in ascending account number order and
	// returns them keyed by account number. Missing rows yield ErrNotFound.
	LockAccounts(ctx context.Context, accountNumbers ...string) (map[string]*domain.Account, error)
	GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error)

	UpdateCustomer(ctx context.Context, accountNumber string, balance decimal.Decimal, creditScore int, loanAmount decimal.Decimal) error
	UpdateCreditScore(ctx context.Context, accountNumber string, creditScore int) error
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	// TransactionsSince returns records with Timestamp >= since, newest first.
	TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]*domain.Transaction, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DefaultHistoryLimit is how many records history views return.
const DefaultHistoryLimit = 10
