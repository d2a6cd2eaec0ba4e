package usecase

import (
	"context"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/pub"
	"github.com/Izanagi078/Final-Work/internal/repository"
	"github.com/Izanagi078/Final-Work/pkg/cache"
	"github.com/Izanagi078/Final-Work/pkg/utils"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultOpTimeout = 5 * time.Second

// Money columns are NUMERIC(15,2): at most two decimal places and below 10^13.
const amountScale = 2

var MaxAmount = decimal.New(1, 13).Sub(decimal.New(1, -amountScale))

// validAmount rejects amounts the store cannot hold exactly.
func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return xerrors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return xerrors.ErrInvalidAmount
	}
	return nil
}

type EngineConfig struct {
	OpTimeout time.Duration
	Clock     func() time.Time
}

// LedgerEngine applies the five money movements. Each one runs in a single
// store transaction; the cache and event publishers are only touched after
// the commit and their failures never undo it.
type LedgerEngine struct {
	store       repository.LedgerStore
	cache       *cache.Cache
	scorer      *CreditScorer
	eligibility *LoanEligibility
	publisher   pub.Publisher
	ids         *utils.IDGenerator

	opTimeout time.Duration
	clock     func() time.Time
	logger    *zap.Logger
}

func NewLedgerEngine(
	store repository.LedgerStore,
	c *cache.Cache,
	publisher pub.Publisher,
	ids *utils.IDGenerator,
	cfg EngineConfig,
	logger *zap.Logger,
) *LedgerEngine {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if publisher == nil {
		publisher = pub.Nop{}
	}
	if ids == nil {
		ids = utils.NewIDGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer := NewCreditScorer(cfg.Clock, logger)
	return &LedgerEngine{
		store:       store,
		cache:       c,
		scorer:      scorer,
		eligibility: NewLoanEligibility(scorer, logger),
		publisher:   publisher,
		ids:         ids,
		opTimeout:   cfg.OpTimeout,
		clock:       cfg.Clock,
		logger:      logger,
	}
}

// Deposit credits amount to the account.
func (e *LedgerEngine) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.MutationResult, error) {
	const op = "deposit"
	started := time.Now()

	if err := validAmount(amount); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	var acc *domain.Account
	var res *domain.MutationResult
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountNumber); err != nil {
			return err
		}
		res, err = e.apply(ctx, tx, acc, domain.TransactionDeposit, amount, decimal.Zero, "Deposit")
		return err
	})
	if err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	e.afterCommit(ctx, "ledger.deposit", acc, res, "")
	e.succeed(op, accountNumber, started, res)
	return res, nil
}

// Withdraw debits amount from the account.
func (e *LedgerEngine) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.MutationResult, error) {
	const op = "withdraw"
	started := time.Now()

	if err := validAmount(amount); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}
	if err := e.precheck(accountNumber, amount, false); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	var acc *domain.Account
	var res *domain.MutationResult
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountNumber); err != nil {
			return err
		}
		if amount.GreaterThan(acc.Balance) {
			return xerrors.ErrInvalidAmount
		}
		res, err = e.apply(ctx, tx, acc, domain.TransactionWithdrawal, amount.Neg(), decimal.Zero, "Withdrawal")
		return err
	})
	if err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	e.afterCommit(ctx, "ledger.withdrawal", acc, res, "")
	e.succeed(op, accountNumber, started, res)
	return res, nil
}

// Transfer moves amount from one account to another. Both rows are locked in
// account number order and every write commits together or not at all.
func (e *LedgerEngine) Transfer(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal) (*domain.TransferResult, error) {
	const op = "transfer"
	started := time.Now()

	if fromAccount == toAccount {
		return nil, e.fail(op, fromAccount, started, xerrors.ErrSameAccount)
	}
	if err := validAmount(amount); err != nil {
		return nil, e.fail(op, fromAccount, started, err)
	}
	if err := e.precheck(fromAccount, amount, false); err != nil {
		return nil, e.fail(op, fromAccount, started, err)
	}

	var sender, receiver *domain.Account
	result := &domain.TransferResult{}
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		locked, err := tx.LockAccounts(ctx, fromAccount, toAccount)
		if err != nil {
			return err
		}
		sender, receiver = locked[fromAccount], locked[toAccount]

		if amount.GreaterThan(sender.Balance) {
			return xerrors.ErrInvalidAmount
		}

		if result.From, err = e.apply(ctx, tx, sender, domain.TransactionTransferOut, amount.Neg(), decimal.Zero, "Transfer to "+toAccount); err != nil {
			return err
		}
		if result.To, err = e.apply(ctx, tx, receiver, domain.TransactionTransferIn, amount, decimal.Zero, "Transfer from "+fromAccount); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(op, fromAccount, started, err)
	}

	e.afterCommit(ctx, "ledger.transfer_out", sender, result.From, toAccount)
	e.afterCommit(ctx, "ledger.transfer_in", receiver, result.To, fromAccount)
	e.succeed(op, fromAccount, started, result.From)
	return result, nil
}

// TakeLoan issues a loan after an eligibility check on the same locked
// snapshot. The score from the check is the one stored.
func (e *LedgerEngine) TakeLoan(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.LoanResult, error) {
	const op = "take_loan"
	started := time.Now()

	if amount.LessThan(MinLoanAmount) {
		return nil, e.fail(op, accountNumber, started, xerrors.ErrBelowMinimum)
	}
	if err := validAmount(amount); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	var acc *domain.Account
	var res *domain.LoanResult
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountNumber); err != nil {
			return err
		}

		elig, err := e.eligibility.Check(ctx, tx, accountNumber, amount)
		if err != nil {
			return err
		}
		if !elig.Eligible {
			return &xerrors.EligibilityError{Reason: elig.Reason}
		}

		acc.CreditScore = elig.Score
		newBalance := acc.Balance.Add(amount)
		newLoan := acc.LoanAmount.Add(amount)
		if newBalance.GreaterThan(MaxAmount) || newLoan.GreaterThan(MaxAmount) {
			return xerrors.ErrInvalidAmount
		}
		if err := tx.UpdateCustomer(ctx, accountNumber, newBalance, elig.Score, newLoan); err != nil {
			return err
		}
		txn := e.newTransaction(acc, domain.TransactionLoanTaken, amount, "Loan taken")
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		acc.Balance = newBalance
		acc.LoanAmount = newLoan

		res = &domain.LoanResult{
			MutationResult: &domain.MutationResult{
				AccountNumber: accountNumber,
				Balance:       newBalance,
				LoanAmount:    newLoan,
				CreditScore:   elig.Score,
				Transaction:   txn,
			},
			InterestRate: elig.InterestRate,
			MaxLoan:      elig.MaxLoan,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	e.afterCommit(ctx, "ledger.loan_taken", acc, res.MutationResult, "")
	e.succeed(op, accountNumber, started, res.MutationResult)
	return res, nil
}

// ReturnLoan repays part or all of the outstanding loan from the balance.
func (e *LedgerEngine) ReturnLoan(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.MutationResult, error) {
	const op = "return_loan"
	started := time.Now()

	if err := validAmount(amount); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}
	if err := e.precheck(accountNumber, amount, true); err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	var acc *domain.Account
	var res *domain.MutationResult
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountNumber); err != nil {
			return err
		}
		if amount.GreaterThan(acc.Balance) || amount.GreaterThan(acc.LoanAmount) {
			return xerrors.ErrInvalidAmount
		}
		res, err = e.apply(ctx, tx, acc, domain.TransactionLoanRepayment, amount.Neg(), amount.Neg(), "Loan repayment")
		return err
	})
	if err != nil {
		return nil, e.fail(op, accountNumber, started, err)
	}

	e.afterCommit(ctx, "ledger.loan_repaid", acc, res, "")
	e.succeed(op, accountNumber, started, res)
	return res, nil
}

// CheckEligibility evaluates a loan request without issuing it. The refreshed
// score is committed.
func (e *LedgerEngine) CheckEligibility(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Eligibility, error) {
	const op = "check_eligibility"
	started := time.Now()

	if err := validAmount(amount); err != nil {
		return domain.Eligibility{}, e.fail(op, accountNumber, started, err)
	}

	var acc *domain.Account
	var elig domain.Eligibility
	err := e.run(ctx, op, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		if acc, err = lockOne(ctx, tx, accountNumber); err != nil {
			return err
		}
		elig, err = e.eligibility.Check(ctx, tx, accountNumber, amount)
		return err
	})
	if err != nil {
		return domain.Eligibility{}, e.fail(op, accountNumber, started, err)
	}

	acc.CreditScore = elig.Score
	e.refreshCache(ctx, acc)
	e.succeed(op, accountNumber, started, nil)
	return elig, nil
}
