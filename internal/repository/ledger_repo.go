package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ledgerRepo struct {
	db *pgxpool.Pool
}

// NewLedgerRepo creates the postgres backed ledger store.
func NewLedgerRepo(db *pgxpool.Pool) LedgerStore {
	return &ledgerRepo{db: db}
}

// Query helpers to reduce duplication
const (
	baseCustomerQuery = `
		SELECT user_id, username, email, password_hash, address, mobile_number,
		       national_id, account_number, routing_code, card_number, pin_hash,
		       balance::text, credit_score, loan_amount::text, created_at, updated_at
		FROM customers`

	baseTransactionQuery = `
		SELECT id, user_id, account_number, transaction_type, amount::text,
		       description, created_at
		FROM transaction_records`
)

func storeErr(op string, err error) error {
	if xerrors.IsNumericOverflow(err) {
		return fmt.Errorf("%w: %s: %w", xerrors.ErrInvalidAmount, op, err)
	}
	return fmt.Errorf("%w: %s: %w", xerrors.ErrStoreUnavailable, op, err)
}

// scanCustomer scans a row into a domain.Account
func scanCustomer(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance, loan string

	err := row.Scan(
		&a.UserID, &a.Username, &a.Email, &a.PasswordHash, &a.Address, &a.MobileNumber,
		&a.NationalID, &a.AccountNumber, &a.RoutingCode, &a.CardNumber, &a.PinHash,
		&balance, &a.CreditScore, &loan, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, storeErr("scan customer", err)
	}

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	if a.LoanAmount, err = decimal.NewFromString(loan); err != nil {
		return nil, fmt.Errorf("invalid loan amount %q: %w", loan, err)
	}
	return &a, nil
}

// scanTransactionRows scans multiple rows into domain.Transaction slice
func scanTransactionRows(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()
	var txns []*domain.Transaction

	for rows.Next() {
		var t domain.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountNumber, &t.Type, &amount, &t.Description, &t.Timestamp); err != nil {
			return nil, storeErr("scan transaction", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction amount %q: %w", amount, err)
		}
		t.Amount = d
		txns = append(txns, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate transactions", err)
	}
	return txns, nil
}

func (r *ledgerRepo) BeginTx(ctx context.Context) (LedgerTx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted, // row locks give the ordering we need
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, storeErr("begin transaction", err)
	}
	return &pgLedgerTx{tx: tx}, nil
}

func (r *ledgerRepo) InsertCustomer(ctx context.Context, a *domain.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customers (
			user_id, username, email, password_hash, address, mobile_number,
			national_id, account_number, routing_code, card_number, pin_hash,
			balance, credit_score, loan_amount, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::numeric,$13,$14::numeric,$15,$16)`,
		a.UserID, a.Username, a.Email, a.PasswordHash, a.Address, a.MobileNumber,
		a.NationalID, a.AccountNumber, a.RoutingCode, a.CardNumber, a.PinHash,
		a.Balance.String(), a.CreditScore, a.LoanAmount.String(), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if xerrors.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", xerrors.ErrAccountExists, err)
		}
		return storeErr("insert customer", err)
	}
	return nil
}

func (r *ledgerRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanCustomer(r.db.QueryRow(ctx, baseCustomerQuery+` WHERE account_number = $1`, accountNumber))
}

func (r *ledgerRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanCustomer(r.db.QueryRow(ctx, baseCustomerQuery+` WHERE email = $1`, email))
}

func (r *ledgerRepo) DeleteCustomer(ctx context.Context, accountNumber string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transaction_records WHERE account_number = $1`, accountNumber); err != nil {
		return storeErr("delete transactions", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM customers WHERE account_number = $1`, accountNumber)
	if err != nil {
		return storeErr("delete customer", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (r *ledgerRepo) RecentTransactions(ctx context.Context, accountNumber string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.db.Query(ctx, baseTransactionQuery+`
		WHERE account_number = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountNumber, limit)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	return scanTransactionRows(rows)
}

func (r *ledgerRepo) Close() {
	r.db.Close()
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) LockAccounts(ctx context.Context, accountNumbers ...string) (map[string]*domain.Account, error) {
	wanted := uniqueSorted(accountNumbers)

	rows, err := t.tx.Query(ctx, baseCustomerQuery+`
		WHERE account_number = ANY($1)
		ORDER BY account_number
		FOR UPDATE`, wanted)
	if err != nil {
		return nil, storeErr("lock accounts", err)
	}
	defer rows.Close()

	locked := make(map[string]*domain.Account, len(wanted))
	for rows.Next() {
		a, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		locked[a.AccountNumber] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("lock accounts", err)
	}
	if len(locked) != len(wanted) {
		return nil, xerrors.ErrNotFound
	}
	return locked, nil
}

func (t *pgLedgerTx) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanCustomer(t.tx.QueryRow(ctx, baseCustomerQuery+` WHERE account_number = $1`, accountNumber))
}

func (t *pgLedgerTx) UpdateCustomer(ctx context.Context, accountNumber string, balance decimal.Decimal, creditScore int, loanAmount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE customers
		SET balance = $2::numeric, credit_score = $3, loan_amount = $4::numeric, updated_at = NOW()
		WHERE account_number = $1`,
		accountNumber, balance.String(), creditScore, loanAmount.String(),
	)
	if err != nil {
		return storeErr("update customer", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (t *pgLedgerTx) UpdateCreditScore(ctx context.Context, accountNumber string, creditScore int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE customers SET credit_score = $2, updated_at = NOW()
		WHERE account_number = $1`, accountNumber, creditScore)
	if err != nil {
		return storeErr("update credit score", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (t *pgLedgerTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transaction_records (id, user_id, account_number, transaction_type, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		txn.ID, txn.UserID, txn.AccountNumber, string(txn.Type), txn.Amount.String(), txn.Description, txn.Timestamp,
	)
	if err != nil {
		return storeErr("insert transaction", err)
	}
	return nil
}

func (t *pgLedgerTx) TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]*domain.Transaction, error) {
	rows, err := t.tx.Query(ctx, baseTransactionQuery+`
		WHERE account_number = $1 AND created_at >= $2
		ORDER BY created_at DESC`, accountNumber, since)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	return scanTransactionRows(rows)
}

func (t *pgLedgerTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (t *pgLedgerTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return storeErr("rollback", err)
	}
	return nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
