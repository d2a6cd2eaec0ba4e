package usecase

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/pub"
	"github.com/Izanagi078/Final-Work/internal/repository"
	"github.com/Izanagi078/Final-Work/pkg/cache"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*pub.LedgerEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev *pub.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

type brokenSnapshot struct{}

func (brokenSnapshot) Load(context.Context) (*cache.Snapshot, error) { return nil, nil }
func (brokenSnapshot) Save(context.Context, *cache.Snapshot) error {
	return errors.New("read-only file system")
}

type fixture struct {
	engine *LedgerEngine
	store  *repository.MemoryStore
	cache  *cache.Cache
	clock  *fakeClock
	pub    *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, cache.NewFileSnapshot(filepath.Join(t.TempDir(), "cache.json")), time.Second)
}

func newFixtureWith(t *testing.T, snap cache.Snapshotter, timeout time.Duration) *fixture {
	t.Helper()
	clock := &fakeClock{t: scoreNow}
	store := repository.NewMemoryStore()
	c := cache.New(snap, nil, cache.Options{Clock: clock.Now})
	p := &capturePublisher{}
	engine := NewLedgerEngine(store, c, p, nil, EngineConfig{OpTimeout: timeout, Clock: clock.Now}, nil)
	return &fixture{engine: engine, store: store, cache: c, clock: clock, pub: p}
}

func seed(t *testing.T, store repository.LedgerStore, accNo string, balance int64, score int) {
	t.Helper()
	require.NoError(t, store.InsertCustomer(context.Background(), &domain.Account{
		UserID:        "user-" + accNo,
		Username:      "holder " + accNo,
		Email:         accNo + "@bank.test",
		AccountNumber: accNo,
		RoutingCode:   domain.DefaultRoutingCode,
		Balance:       decimal.NewFromInt(balance),
		CreditScore:   score,
		LoanAmount:    decimal.Zero,
	}))
}

func (f *fixture) account(t *testing.T, accNo string) *domain.Account {
	t.Helper()
	acc, err := f.store.GetByAccountNumber(context.Background(), accNo)
	require.NoError(t, err)
	return acc
}

func (f *fixture) history(t *testing.T, accNo string) []*domain.Transaction {
	t.Helper()
	recent, err := f.store.RecentTransactions(context.Background(), accNo, 100)
	require.NoError(t, err)
	return recent
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

const (
	accA = "1000000001"
	accB = "1000000002"
)

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 0, domain.DefaultCreditScore)

	res, err := f.engine.Deposit(context.Background(), accA, dec(1000))
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(dec(1000)))
	assert.Equal(t, 621, res.CreditScore)
	assert.Equal(t, domain.TransactionDeposit, res.Transaction.Type)

	acc := f.account(t, accA)
	assert.True(t, acc.Balance.Equal(dec(1000)))
	assert.Equal(t, 621, acc.CreditScore)
	require.Len(t, f.history(t, accA), 1)

	l := f.cache.Get(accA)
	require.True(t, l.Fresh())
	assert.Equal(t, 1000.0, l.Summary.Balance)
	assert.Equal(t, 621, l.Summary.CreditScore)
	require.Len(t, f.cache.Recent(accA), 1)
	assert.Equal(t, "Deposit", f.cache.Recent(accA)[0].Type)

	assert.Equal(t, []string{"ledger.deposit"}, f.pub.types())
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 100, domain.DefaultCreditScore)

	for _, amount := range []decimal.Decimal{decimal.Zero, dec(-5)} {
		_, err := f.engine.Deposit(context.Background(), accA, amount)
		require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	}
	assert.True(t, f.account(t, accA).Balance.Equal(dec(100)))
	assert.Empty(t, f.history(t, accA))
	assert.Empty(t, f.pub.types())
}

func TestAmountsBeyondCentsAreRejected(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 0, domain.DefaultCreditScore)
	seed(t, f.store, accB, 0, domain.DefaultCreditScore)
	ctx := context.Background()

	_, err := f.engine.Deposit(ctx, accA, decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	half := decimal.RequireFromString("0.005")
	_, err = f.engine.Deposit(ctx, accA, half)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = f.engine.Withdraw(ctx, accA, half)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = f.engine.Transfer(ctx, accA, accB, half)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = f.engine.ReturnLoan(ctx, accA, half)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = f.engine.CheckEligibility(ctx, accA, half)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = f.engine.TakeLoan(ctx, accA, decimal.RequireFromString("500.001"))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	assert.True(t, f.account(t, accA).Balance.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, f.account(t, accB).Balance.IsZero())
	assert.Len(t, f.history(t, accA), 1)
	assert.Empty(t, f.history(t, accB))

	// trailing zeros are still whole cents
	_, err = f.engine.Withdraw(ctx, accA, decimal.RequireFromString("0.010"))
	require.NoError(t, err)
	assert.True(t, f.account(t, accA).Balance.IsZero())
}

func TestAmountsBeyondColumnRangeAreRejected(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 0, domain.DefaultCreditScore)
	ctx := context.Background()

	_, err := f.engine.Deposit(ctx, accA, decimal.New(1, 13))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	_, err = f.engine.Deposit(ctx, accA, MaxAmount)
	require.NoError(t, err)
	_, err = f.engine.Deposit(ctx, accA, decimal.RequireFromString("0.01"))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	assert.True(t, f.account(t, accA).Balance.Equal(MaxAmount))
}

func TestDeposit_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Deposit(context.Background(), "9999999999", dec(10))
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	res, err := f.engine.Withdraw(context.Background(), accA, dec(1000))
	require.NoError(t, err)
	assert.True(t, res.Balance.IsZero())
	assert.True(t, res.Transaction.Amount.Equal(dec(-1000)))
	assert.Equal(t, 600, res.CreditScore)
}

func TestWithdraw_OverBalanceLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.Withdraw(context.Background(), accA, dec(1500))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	acc := f.account(t, accA)
	assert.True(t, acc.Balance.Equal(dec(1000)))
	assert.Equal(t, domain.DefaultCreditScore, acc.CreditScore)
	assert.Empty(t, f.history(t, accA))
	assert.Equal(t, cache.Miss, f.cache.Get(accA).State)
}

func TestWithdraw_FreshCacheRejectsWithoutStore(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	ctx := context.Background()

	require.NoError(t, f.cache.Put(ctx, cache.Summary{AccountNumber: accA, Balance: 100}))

	// hold the only store transaction; touching the store would time out
	held, err := f.store.BeginTx(ctx)
	require.NoError(t, err)

	_, err = f.engine.Withdraw(ctx, accA, dec(500))
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)
	require.NoError(t, held.Rollback(ctx))

	// once the entry is stale the store decides
	f.clock.Advance(30*time.Minute + time.Second)
	require.Equal(t, cache.Stale, f.cache.Get(accA).State)

	res, err := f.engine.Withdraw(ctx, accA, dec(500))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec(500)))
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	seed(t, f.store, accB, 0, domain.DefaultCreditScore)

	res, err := f.engine.Transfer(context.Background(), accA, accB, dec(500))
	require.NoError(t, err)

	assert.True(t, res.From.Balance.Equal(dec(500)))
	assert.True(t, res.To.Balance.Equal(dec(500)))
	assert.Equal(t, domain.TransactionTransferOut, res.From.Transaction.Type)
	assert.Equal(t, domain.TransactionTransferIn, res.To.Transaction.Type)
	assert.Equal(t, "Transfer to "+accB, res.From.Transaction.Description)

	assert.True(t, f.account(t, accA).Balance.Equal(dec(500)))
	assert.True(t, f.account(t, accB).Balance.Equal(dec(500)))
	require.Len(t, f.history(t, accA), 1)
	require.Len(t, f.history(t, accB), 1)

	for _, accNo := range []string{accA, accB} {
		l := f.cache.Get(accNo)
		require.True(t, l.Fresh(), accNo)
		assert.Equal(t, 500.0, l.Summary.Balance)
	}
	assert.Equal(t, []string{"ledger.transfer_out", "ledger.transfer_in"}, f.pub.types())
}

func TestTransfer_SameAccount(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.Transfer(context.Background(), accA, accA, dec(10))
	require.ErrorIs(t, err, xerrors.ErrSameAccount)
}

func TestTransfer_UnknownReceiver(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.Transfer(context.Background(), accA, "9999999999", dec(10))
	require.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.True(t, f.account(t, accA).Balance.Equal(dec(1000)))
}

func TestTransfer_IsAtomic(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	seed(t, f.store, accB, 0, domain.DefaultCreditScore)

	f.store.FailOn(func(op, accNo string) error {
		if op == "UpdateCustomer" && accNo == accB {
			return errors.New("connection reset")
		}
		return nil
	})

	_, err := f.engine.Transfer(context.Background(), accA, accB, dec(500))
	require.ErrorIs(t, err, xerrors.ErrStoreUnavailable)

	assert.True(t, f.account(t, accA).Balance.Equal(dec(1000)))
	assert.True(t, f.account(t, accB).Balance.IsZero())
	assert.Empty(t, f.history(t, accA))
	assert.Empty(t, f.history(t, accB))
	assert.Equal(t, cache.Miss, f.cache.Get(accA).State)
	assert.Empty(t, f.pub.types())
}

func TestTakeLoan_BelowMinimum(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.TakeLoan(context.Background(), accA, dec(499))
	require.ErrorIs(t, err, xerrors.ErrBelowMinimum)
}

func TestTakeLoan_Approved(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	res, err := f.engine.TakeLoan(context.Background(), accA, dec(1000))
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(dec(2000)))
	assert.True(t, res.LoanAmount.Equal(dec(1000)))
	assert.Equal(t, 601, res.CreditScore)
	assert.True(t, res.InterestRate.Equal(decimal.RequireFromString("14.99")), res.InterestRate.String())
	assert.Equal(t, domain.TransactionLoanTaken, res.Transaction.Type)

	acc := f.account(t, accA)
	assert.True(t, acc.Balance.Equal(dec(2000)))
	assert.True(t, acc.LoanAmount.Equal(dec(1000)))

	l := f.cache.Get(accA)
	require.True(t, l.Fresh())
	assert.Equal(t, 1000.0, l.Summary.LoanAmount)
}

func TestTakeLoan_OverMaxLoanIsDenied(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.TakeLoan(context.Background(), accA, dec(1500))
	require.ErrorIs(t, err, xerrors.ErrNotEligible)

	var elig *xerrors.EligibilityError
	require.ErrorAs(t, err, &elig)
	assert.Equal(t, "maximum loan amount allowed: 1000.00", elig.Reason)

	acc := f.account(t, accA)
	assert.True(t, acc.Balance.Equal(dec(1000)))
	assert.True(t, acc.LoanAmount.IsZero())
	assert.Empty(t, f.history(t, accA))
}

func TestTakeLoan_LowScoreIsDenied(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	ctx := context.Background()

	tx, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{
			ID: f.engine.ids.TransactionID(), AccountNumber: accA, Type: domain.TransactionBounced,
			Timestamp: scoreNow.Add(-time.Duration(i+1) * 24 * time.Hour),
		}))
	}
	require.NoError(t, tx.Commit(ctx))

	_, err = f.engine.TakeLoan(ctx, accA, dec(500))
	var elig *xerrors.EligibilityError
	require.ErrorAs(t, err, &elig)
	assert.Equal(t, "credit score too low (401/900)", elig.Reason)

	// the refreshed score was rolled back with the denial
	assert.Equal(t, domain.DefaultCreditScore, f.account(t, accA).CreditScore)
}

func TestReturnLoan(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	ctx := context.Background()

	_, err := f.engine.TakeLoan(ctx, accA, dec(1000))
	require.NoError(t, err)

	res, err := f.engine.ReturnLoan(ctx, accA, dec(500))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec(1500)))
	assert.True(t, res.LoanAmount.Equal(dec(500)))
	assert.Equal(t, 631, res.CreditScore)
	assert.Equal(t, domain.TransactionLoanRepayment, res.Transaction.Type)
}

func TestReturnLoan_MoreThanOwed(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	ctx := context.Background()

	_, err := f.engine.TakeLoan(ctx, accA, dec(1000))
	require.NoError(t, err)

	// cache is fresh after the loan and already knows only 1000 is owed
	_, err = f.engine.ReturnLoan(ctx, accA, dec(1200))
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	// without the cache the store rejects it
	f.clock.Advance(time.Hour)
	_, err = f.engine.ReturnLoan(ctx, accA, dec(1200))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	assert.True(t, f.account(t, accA).LoanAmount.Equal(dec(1000)))
}

func TestReturnLoan_NoLoan(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)

	_, err := f.engine.ReturnLoan(context.Background(), accA, dec(100))
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)
}

func TestCheckEligibility_PersistsRefreshedScore(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, accA, 1000, 750)

	elig, err := f.engine.CheckEligibility(context.Background(), accA, dec(1500))
	require.NoError(t, err)

	assert.False(t, elig.Eligible)
	assert.Equal(t, 601, elig.Score)
	assert.Equal(t, "maximum loan amount allowed: 1000.00", elig.Reason)
	assert.Equal(t, 601, f.account(t, accA).CreditScore)

	l := f.cache.Get(accA)
	require.True(t, l.Fresh())
	assert.Equal(t, 601, l.Summary.CreditScore)
}

func TestOperation_TimesOutWhenStoreIsBusy(t *testing.T) {
	f := newFixtureWith(t, cache.NewFileSnapshot(filepath.Join(t.TempDir(), "cache.json")), 20*time.Millisecond)
	seed(t, f.store, accA, 1000, domain.DefaultCreditScore)
	ctx := context.Background()

	held, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	defer held.Rollback(ctx)

	_, err = f.engine.Deposit(ctx, accA, dec(10))
	require.ErrorIs(t, err, xerrors.ErrTimeout)
}

func TestSideEffectFailuresDoNotUndoCommit(t *testing.T) {
	f := newFixtureWith(t, brokenSnapshot{}, time.Second)
	f.pub.err = errors.New("broker down")
	seed(t, f.store, accA, 0, domain.DefaultCreditScore)

	res, err := f.engine.Deposit(context.Background(), accA, dec(250))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec(250)))
	assert.True(t, f.account(t, accA).Balance.Equal(dec(250)))
	assert.Len(t, f.pub.types(), 1)
}

// Random operations must never drive a balance or loan negative, and the
// net position (balances minus loans) only moves by deposits and withdrawals.
func TestRandomOperationsPreserveInvariants(t *testing.T) {
	f := newFixture(t)
	accounts := []string{accA, accB, "1000000003"}
	for _, accNo := range accounts {
		seed(t, f.store, accNo, 1000, domain.DefaultCreditScore)
	}
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))

	net := func() decimal.Decimal {
		total := decimal.Zero
		for _, accNo := range accounts {
			acc := f.account(t, accNo)
			total = total.Add(acc.Balance).Sub(acc.LoanAmount)
		}
		return total
	}
	expected := net()

	for i := 0; i < 300; i++ {
		from := accounts[r.Intn(len(accounts))]
		to := accounts[r.Intn(len(accounts))]
		amount := dec(r.Int63n(2500))

		var err error
		switch r.Intn(5) {
		case 0:
			if _, err = f.engine.Deposit(ctx, from, amount); err == nil {
				expected = expected.Add(amount)
			}
		case 1:
			if _, err = f.engine.Withdraw(ctx, from, amount); err == nil {
				expected = expected.Sub(amount)
			}
		case 2:
			_, err = f.engine.Transfer(ctx, from, to, amount)
		case 3:
			_, err = f.engine.TakeLoan(ctx, from, amount)
		case 4:
			_, err = f.engine.ReturnLoan(ctx, from, amount)
		}
		if err != nil {
			require.False(t, errors.Is(err, xerrors.ErrStoreUnavailable), err)
		}

		for _, accNo := range accounts {
			acc := f.account(t, accNo)
			require.False(t, acc.Balance.IsNegative(), "step %d %s", i, accNo)
			require.False(t, acc.LoanAmount.IsNegative(), "step %d %s", i, accNo)
			require.GreaterOrEqual(t, acc.CreditScore, domain.MinCreditScore)
			require.LessOrEqual(t, acc.CreditScore, domain.MaxCreditScore)
		}
		require.True(t, expected.Equal(net()), "step %d: want %s got %s", i, expected, net())

		f.clock.Advance(time.Minute)
	}
}
