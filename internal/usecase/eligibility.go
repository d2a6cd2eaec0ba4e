package usecase

import (
	"context"
	"fmt"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	MinLoanAmount = decimal.NewFromInt(500)

	minInterestRate  = decimal.NewFromInt(8)
	baseInterestRate = decimal.NewFromInt(15)
	hundred          = decimal.NewFromInt(100)
)

// loanMultiplier maps a score to how many times the balance may be borrowed.
func loanMultiplier(score int) (decimal.Decimal, bool) {
	switch {
	case score >= 800:
		return decimal.NewFromInt(3), true
	case score >= 700:
		return decimal.NewFromInt(2), true
	case score >= 600:
		return decimal.NewFromInt(1), true
	default:
		return decimal.Zero, false
	}
}

// Evaluate decides a loan request from a score and balance taken from the
// same snapshot.
func Evaluate(score int, balance, requested decimal.Decimal) domain.Eligibility {
	mult, ok := loanMultiplier(score)
	if !ok {
		return domain.Eligibility{
			Score:  score,
			Reason: fmt.Sprintf("credit score too low (%d/%d)", score, domain.MaxCreditScore),
		}
	}

	maxLoan := balance.Mul(mult)
	if requested.GreaterThan(maxLoan) {
		return domain.Eligibility{
			Score:   score,
			MaxLoan: maxLoan,
			Reason:  "maximum loan amount allowed: " + maxLoan.StringFixed(2),
		}
	}

	// 15 - (score-600)/100, never below 8
	rate := baseInterestRate.Sub(decimal.NewFromInt(int64(score - baseScore)).Div(hundred))
	if rate.LessThan(minInterestRate) {
		rate = minInterestRate
	}
	return domain.Eligibility{
		Eligible:     true,
		Score:        score,
		InterestRate: rate,
		MaxLoan:      maxLoan,
	}
}

// LoanEligibility refreshes the score and evaluates a request inside the
// caller's transaction, so score and balance come from one snapshot.
type LoanEligibility struct {
	scorer *CreditScorer
	logger *zap.Logger
}

func NewLoanEligibility(scorer *CreditScorer, logger *zap.Logger) *LoanEligibility {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanEligibility{scorer: scorer, logger: logger}
}

func (e *LoanEligibility) Check(ctx context.Context, tx repository.LedgerTx, accountNumber string, requested decimal.Decimal) (domain.Eligibility, error) {
	score, err := e.scorer.RecomputeAndPersist(ctx, tx, accountNumber)
	if err != nil {
		return domain.Eligibility{}, err
	}
	acc, err := tx.GetAccount(ctx, accountNumber)
	if err != nil {
		return domain.Eligibility{}, err
	}

	result := Evaluate(score, acc.Balance, requested)
	e.logger.Info("loan eligibility evaluated",
		zap.String("account_number", accountNumber),
		zap.String("requested", requested.String()),
		zap.Int("score", score),
		zap.Bool("eligible", result.Eligible),
		zap.String("reason", result.Reason),
	)
	return result, nil
}
