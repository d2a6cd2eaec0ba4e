package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/metrics"
	"github.com/Izanagi078/Final-Work/internal/pub"
	"github.com/Izanagi078/Final-Work/internal/repository"
	"github.com/Izanagi078/Final-Work/pkg/cache"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ===============================
// TRANSACTION BOUNDARY
// ===============================

// run executes fn inside one bounded store transaction. Any error from fn or
// from the commit rolls the whole transaction back.
func (e *LedgerEngine) run(ctx context.Context, op string, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return classify(ctx, op, err)
	}
	// rollback must still reach the store after the deadline fired
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(ctx, tx); err != nil {
		return classify(ctx, op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, op, err)
	}
	return nil
}

func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, xerrors.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func lockOne(ctx context.Context, tx repository.LedgerTx, accountNumber string) (*domain.Account, error) {
	locked, err := tx.LockAccounts(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return locked[accountNumber], nil
}

// apply writes the new balance and loan, records the transaction, then
// recomputes the score so the new record is part of the scoring window.
// acc is updated in place to the committed-to-be state.
func (e *LedgerEngine) apply(
	ctx context.Context,
	tx repository.LedgerTx,
	acc *domain.Account,
	txType domain.TransactionType,
	balanceDelta, loanDelta decimal.Decimal,
	description string,
) (*domain.MutationResult, error) {
	newBalance := acc.Balance.Add(balanceDelta)
	newLoan := acc.LoanAmount.Add(loanDelta)
	if newBalance.IsNegative() || newLoan.IsNegative() ||
		newBalance.GreaterThan(MaxAmount) || newLoan.GreaterThan(MaxAmount) {
		return nil, xerrors.ErrInvalidAmount
	}

	if err := tx.UpdateCustomer(ctx, acc.AccountNumber, newBalance, acc.CreditScore, newLoan); err != nil {
		return nil, err
	}
	txn := e.newTransaction(acc, txType, balanceDelta, description)
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	score, err := e.scorer.RecomputeAndPersist(ctx, tx, acc.AccountNumber)
	if err != nil {
		return nil, err
	}

	acc.Balance = newBalance
	acc.LoanAmount = newLoan
	acc.CreditScore = score
	return &domain.MutationResult{
		AccountNumber: acc.AccountNumber,
		Balance:       newBalance,
		LoanAmount:    newLoan,
		CreditScore:   score,
		Transaction:   txn,
	}, nil
}

func (e *LedgerEngine) newTransaction(acc *domain.Account, txType domain.TransactionType, amount decimal.Decimal, description string) *domain.Transaction {
	return &domain.Transaction{
		ID:            e.ids.TransactionID(),
		UserID:        acc.UserID,
		AccountNumber: acc.AccountNumber,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		Timestamp:     e.clock(),
	}
}

// ===============================
// CACHE
// ===============================

// precheck rejects early when a fresh cache entry already shows the amount
// cannot be covered. Stale entries and misses never reject.
func (e *LedgerEngine) precheck(accountNumber string, amount decimal.Decimal, againstLoan bool) error {
	if e.cache == nil {
		return nil
	}
	l := e.cache.Get(accountNumber)
	metrics.ObservePrecheck(l.State.String())
	if !l.Fresh() {
		return nil
	}
	if amount.GreaterThan(decimal.NewFromFloat(l.Summary.Balance)) {
		return xerrors.ErrInsufficientFunds
	}
	if againstLoan && amount.GreaterThan(decimal.NewFromFloat(l.Summary.LoanAmount)) {
		return xerrors.ErrInsufficientFunds
	}
	return nil
}

// SummaryOf projects an account into its cache summary.
func SummaryOf(acc *domain.Account) cache.Summary {
	return cache.Summary{
		AccountNumber: acc.AccountNumber,
		Username:      acc.Username,
		Balance:       acc.Balance.InexactFloat64(),
		CreditScore:   acc.CreditScore,
		LoanAmount:    acc.LoanAmount.InexactFloat64(),
		Email:         acc.Email,
		Address:       acc.Address,
	}
}

func (e *LedgerEngine) refreshCache(ctx context.Context, acc *domain.Account) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(context.WithoutCancel(ctx), SummaryOf(acc)); err != nil {
		metrics.SideEffectFailed("cache")
		e.logger.Warn("cache update failed after commit",
			zap.String("account_number", acc.AccountNumber),
			zap.Error(err))
	}
}

// afterCommit runs the best effort side effects of a committed mutation.
func (e *LedgerEngine) afterCommit(ctx context.Context, eventType string, acc *domain.Account, res *domain.MutationResult, counterparty string) {
	if e.cache != nil && res.Transaction != nil {
		e.cache.AppendTransaction(acc.AccountNumber, cache.Record{
			Type:        string(res.Transaction.Type),
			Amount:      res.Transaction.Amount.InexactFloat64(),
			Description: res.Transaction.Description,
			Timestamp:   res.Transaction.Timestamp,
		})
	}
	e.refreshCache(ctx, acc)

	if err := e.publisher.Publish(context.WithoutCancel(ctx), pub.NewMutationEvent(eventType, res, counterparty)); err != nil {
		metrics.SideEffectFailed("publish")
		e.logger.Warn("failed to publish ledger event",
			zap.String("event_type", eventType),
			zap.String("account_number", acc.AccountNumber),
			zap.Error(err))
	}
}

// ===============================
// OUTCOME REPORTING
// ===============================

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xerrors.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, xerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, xerrors.ErrSameAccount):
		return "same_account"
	case errors.Is(err, xerrors.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, xerrors.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, xerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, xerrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, xerrors.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

func (e *LedgerEngine) fail(op, accountNumber string, started time.Time, err error) error {
	label := resultLabel(err)
	metrics.ObserveOperation(op, label, started)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("account_number", accountNumber),
		zap.String("result", label),
		zap.Error(err),
	}
	switch label {
	case "timeout", "store_unavailable", "error":
		e.logger.Error("ledger operation failed", fields...)
	default:
		e.logger.Info("ledger operation rejected", fields...)
	}
	return err
}

func (e *LedgerEngine) succeed(op, accountNumber string, started time.Time, res *domain.MutationResult) {
	metrics.ObserveOperation(op, "ok", started)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("account_number", accountNumber),
		zap.Duration("took", time.Since(started)),
	}
	if res != nil {
		fields = append(fields,
			zap.String("balance", res.Balance.String()),
			zap.String("loan_amount", res.LoanAmount.String()),
			zap.Int("credit_score", res.CreditScore),
		)
	}
	e.logger.Info("ledger operation committed", fields...)
}
