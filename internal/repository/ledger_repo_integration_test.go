package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Skips unless DB_DSN points at a disposable postgres database.
func TestLedgerRepo_Postgres(t *testing.T) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureSchema(ctx, pool))

	repo := NewLedgerRepo(pool)
	accNo := time.Now().Format("0102150405")
	acc := &domain.Account{
		UserID:        ulid.Make().String(),
		Username:      "integration",
		Email:         accNo + "@example.com",
		PasswordHash:  "x",
		MobileNumber:  "9876543210",
		NationalID:    "123412341234",
		AccountNumber: accNo,
		RoutingCode:   domain.DefaultRoutingCode,
		CardNumber:    "4000000000000001",
		PinHash:       "x",
		Balance:       decimal.RequireFromString("100.50"),
		CreditScore:   domain.DefaultCreditScore,
		LoanAmount:    decimal.Zero,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, repo.InsertCustomer(ctx, acc))
	defer repo.DeleteCustomer(context.Background(), accNo)

	require.ErrorIs(t, repo.InsertCustomer(ctx, acc), xerrors.ErrAccountExists)

	// rolled back writes leave the row untouched
	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	locked, err := tx.LockAccounts(ctx, accNo)
	require.NoError(t, err)
	require.True(t, locked[accNo].Balance.Equal(decimal.RequireFromString("100.50")))
	require.NoError(t, tx.UpdateCustomer(ctx, accNo, decimal.Zero, 600, decimal.Zero))
	require.NoError(t, tx.Rollback(ctx))

	got, err := repo.GetByAccountNumber(ctx, accNo)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("100.50")))

	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdateCustomer(ctx, accNo, decimal.RequireFromString("1100.50"), 600, decimal.Zero))
	require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{
		ID: ulid.Make().String(), UserID: acc.UserID, AccountNumber: accNo,
		Type: domain.TransactionDeposit, Amount: decimal.NewFromInt(1000), Timestamp: time.Now(),
	}))
	require.NoError(t, tx.UpdateCreditScore(ctx, accNo, 621))
	require.NoError(t, tx.Commit(ctx))

	got, err = repo.GetByEmail(ctx, acc.Email)
	require.NoError(t, err)
	require.Equal(t, 621, got.CreditScore)

	recent, err := repo.RecentTransactions(ctx, accNo, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.True(t, recent[0].Amount.Equal(decimal.NewFromInt(1000)))
}
