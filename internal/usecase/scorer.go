package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	baseScore = 600

	maxBalanceFactor  = 200
	maxDepositScore   = 100
	maxRepaymentScore = 150
	maxPenalty        = 200

	depositPoints   = 20
	repaymentPoints = 30
	penaltyPoints   = 50

	scoreWindowMonths = 6
)

var (
	balanceFactorUnit   = decimal.NewFromInt(1000)
	qualifyingDepositAt = decimal.NewFromInt(1000)
)

// ScoreBreakdown lists every clamped term that went into a score.
type ScoreBreakdown struct {
	Base           int `json:"base"`
	BalanceFactor  int `json:"balance_factor"`
	DepositScore   int `json:"deposit_score"`
	RepaymentScore int `json:"repayment_score"`
	Penalty        int `json:"penalty"`
	Score          int `json:"score"`
}

// ComputeScore derives the credit score from the current balance and the
// transactions in the scoring window. Records older than six months before
// now are ignored. The loan amount carries no weight today.
func ComputeScore(balance, _ decimal.Decimal, history []*domain.Transaction, now time.Time) ScoreBreakdown {
	since := now.AddDate(0, -scoreWindowMonths, 0)

	var deposits, repayments, penalties int
	for _, t := range history {
		if t.Timestamp.Before(since) {
			continue
		}
		switch {
		case t.Type == domain.TransactionDeposit && t.Amount.GreaterThanOrEqual(qualifyingDepositAt):
			deposits++
		case t.Type == domain.TransactionLoanRepayment:
			repayments++
		case t.Type.IsPenalty():
			penalties++
		}
	}

	b := ScoreBreakdown{
		Base:           baseScore,
		BalanceFactor:  min(maxBalanceFactor, balanceFactor(balance)),
		DepositScore:   min(maxDepositScore, depositPoints*deposits),
		RepaymentScore: min(maxRepaymentScore, repaymentPoints*repayments),
		Penalty:        min(maxPenalty, penaltyPoints*penalties),
	}
	total := b.Base + b.BalanceFactor + b.DepositScore + b.RepaymentScore - b.Penalty
	b.Score = max(domain.MinCreditScore, min(domain.MaxCreditScore, total))
	return b
}

// floor(balance / 1000), saturating so huge balances cannot overflow int.
func balanceFactor(balance decimal.Decimal) int {
	if !balance.IsPositive() {
		return 0
	}
	units := balance.Div(balanceFactorUnit).Floor()
	if units.GreaterThan(decimal.NewFromInt(maxBalanceFactor)) {
		return maxBalanceFactor
	}
	return int(units.IntPart())
}

// CreditScorer recomputes scores from store state and writes them back.
type CreditScorer struct {
	clock  func() time.Time
	logger *zap.Logger
}

func NewCreditScorer(clock func() time.Time, logger *zap.Logger) *CreditScorer {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditScorer{clock: clock, logger: logger}
}

// RecomputeAndPersist reads the account and its scoring window through tx,
// computes the score and stores it through the same tx.
func (s *CreditScorer) RecomputeAndPersist(ctx context.Context, tx repository.LedgerTx, accountNumber string) (int, error) {
	acc, err := tx.GetAccount(ctx, accountNumber)
	if err != nil {
		return 0, err
	}

	now := s.clock()
	history, err := tx.TransactionsSince(ctx, accountNumber, now.AddDate(0, -scoreWindowMonths, 0))
	if err != nil {
		return 0, fmt.Errorf("load scoring window: %w", err)
	}

	b := ComputeScore(acc.Balance, acc.LoanAmount, history, now)
	if err := tx.UpdateCreditScore(ctx, accountNumber, b.Score); err != nil {
		return 0, err
	}

	s.logger.Debug("credit score recomputed",
		zap.String("account_number", accountNumber),
		zap.Int("previous", acc.CreditScore),
		zap.Int("score", b.Score),
		zap.Int("balance_factor", b.BalanceFactor),
		zap.Int("deposit_score", b.DepositScore),
		zap.Int("repayment_score", b.RepaymentScore),
		zap.Int("penalty", b.Penalty),
	)
	return b.Score, nil
}
