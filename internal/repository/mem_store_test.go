package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s LedgerStore, accNo, email string, balance int64) {
	t.Helper()
	require.NoError(t, s.InsertCustomer(context.Background(), &domain.Account{
		UserID:        "user-" + accNo,
		Username:      "user " + accNo,
		Email:         email,
		AccountNumber: accNo,
		RoutingCode:   domain.DefaultRoutingCode,
		Balance:       decimal.NewFromInt(balance),
		CreditScore:   domain.DefaultCreditScore,
		LoanAmount:    decimal.Zero,
	}))
}

func TestMemoryStore_CommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 100)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	require.NoError(t, tx.UpdateCustomer(ctx, "1000000001", decimal.NewFromInt(150), 610, decimal.Zero))
	require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{
		ID: "t1", AccountNumber: "1000000001", Type: domain.TransactionDeposit,
		Amount: decimal.NewFromInt(50), Timestamp: time.Now(),
	}))

	// not visible before commit
	before, err := s.GetByAccountNumber(ctx, "1000000001")
	require.NoError(t, err)
	require.True(t, before.Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, tx.Commit(ctx))

	after, err := s.GetByAccountNumber(ctx, "1000000001")
	require.NoError(t, err)
	require.True(t, after.Balance.Equal(decimal.NewFromInt(150)))
	require.Equal(t, 610, after.CreditScore)

	recent, err := s.RecentTransactions(ctx, "1000000001", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestMemoryStore_RollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 100)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdateCustomer(ctx, "1000000001", decimal.NewFromInt(1), 600, decimal.Zero))
	require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{ID: "t1", AccountNumber: "1000000001", Timestamp: time.Now()}))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	a, err := s.GetByAccountNumber(ctx, "1000000001")
	require.NoError(t, err)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(100)))

	recent, err := s.RecentTransactions(ctx, "1000000001", 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestMemoryStore_FailureHookWrapsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 100)
	s.FailOn(func(op, accNo string) error {
		if op == "InsertTransaction" {
			return errors.New("disk full")
		}
		return nil
	})

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = tx.InsertTransaction(ctx, &domain.Transaction{ID: "t1", AccountNumber: "1000000001"})
	require.ErrorIs(t, err, xerrors.ErrStoreUnavailable)
}

func TestMemoryStore_SecondTxWaitsForFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.BeginTx(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginTx(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, xerrors.ErrStoreUnavailable)

	require.NoError(t, first.Rollback(ctx))
	second, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Rollback(ctx))
}

func TestMemoryStore_LockAccountsMissingRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 100)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = tx.LockAccounts(ctx, "1000000001", "9999999999")
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestMemoryStore_TransactionsSinceFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 0)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	for i, ts := range []time.Time{now.AddDate(0, -7, 0), now.AddDate(0, -1, 0), now} {
		require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{
			ID: string(rune('a' + i)), AccountNumber: "1000000001", Type: domain.TransactionDeposit, Timestamp: ts,
		}))
	}
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	got, err := tx.TransactionsSince(ctx, "1000000001", now.AddDate(0, -6, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, now, got[0].Timestamp)
}

func TestMemoryStore_DeleteCustomerPurgesHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 0)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{ID: "t1", AccountNumber: "1000000001", Timestamp: time.Now()}))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, s.DeleteCustomer(ctx, "1000000001"))
	_, err = s.GetByAccountNumber(ctx, "1000000001")
	require.ErrorIs(t, err, xerrors.ErrNotFound)
	_, err = s.GetByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, xerrors.ErrNotFound)

	recent, err := s.RecentTransactions(ctx, "1000000001", 10)
	require.NoError(t, err)
	require.Empty(t, recent)

	require.ErrorIs(t, s.DeleteCustomer(ctx, "1000000001"), xerrors.ErrNotFound)
}

func TestMemoryStore_InsertCustomerRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "1000000001", "a@example.com", 0)

	err := s.InsertCustomer(context.Background(), &domain.Account{AccountNumber: "1000000002", Email: "a@example.com"})
	require.ErrorIs(t, err, xerrors.ErrAccountExists)
}
