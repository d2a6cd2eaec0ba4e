package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
)

var errTxDone = errors.New("transaction already closed")

// FailureHook lets callers inject a store failure at a named step.
// op is one of UpdateCustomer, UpdateCreditScore, InsertTransaction, Commit.
type FailureHook func(op, accountNumber string) error

// MemoryStore is an in-process LedgerStore. Transactions are serialised:
// only one may be open at a time, and its writes are staged until Commit.
type MemoryStore struct {
	mu       sync.RWMutex
	sem      chan struct{}
	accounts map[string]*domain.Account
	emails   map[string]string
	history  map[string][]*domain.Transaction // oldest first
	hook     FailureHook
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sem:      make(chan struct{}, 1),
		accounts: make(map[string]*domain.Account),
		emails:   make(map[string]string),
		history:  make(map[string][]*domain.Transaction),
	}
}

// FailOn installs h; pass nil to clear it.
func (s *MemoryStore) FailOn(h FailureHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *MemoryStore) fail(op, accountNumber string) error {
	s.mu.RLock()
	h := s.hook
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	if err := h(op, accountNumber); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return storeErr("begin transaction", ctx.Err())
	}
}

func (s *MemoryStore) release() { <-s.sem }

func (s *MemoryStore) BeginTx(ctx context.Context) (LedgerTx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &memTx{store: s, staged: make(map[string]*domain.Account)}, nil
}

func (s *MemoryStore) InsertCustomer(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.AccountNumber]; ok {
		return xerrors.ErrAccountExists
	}
	if _, ok := s.emails[a.Email]; ok {
		return xerrors.ErrAccountExists
	}
	s.accounts[a.AccountNumber] = a.Clone()
	s.emails[a.Email] = a.AccountNumber
	return nil
}

func (s *MemoryStore) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountNumber]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accNo, ok := s.emails[email]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return s.accounts[accNo].Clone(), nil
}

func (s *MemoryStore) DeleteCustomer(ctx context.Context, accountNumber string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountNumber]
	if !ok {
		return xerrors.ErrNotFound
	}
	delete(s.history, accountNumber)
	delete(s.emails, a.Email)
	delete(s.accounts, accountNumber)
	return nil
}

func (s *MemoryStore) RecentTransactions(ctx context.Context, accountNumber string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.history[accountNumber]
	out := make([]*domain.Transaction, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		t := *all[i]
		out = append(out, &t)
	}
	return out, nil
}

func (s *MemoryStore) Close() {}

type memTx struct {
	store    *MemoryStore
	staged   map[string]*domain.Account
	inserted []*domain.Transaction
	done     bool
}

// account returns the staged copy, staging it on first access.
func (t *memTx) account(accountNumber string) (*domain.Account, error) {
	if a, ok := t.staged[accountNumber]; ok {
		return a, nil
	}
	t.store.mu.RLock()
	a, ok := t.store.accounts[accountNumber]
	t.store.mu.RUnlock()
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c := a.Clone()
	t.staged[accountNumber] = c
	return c, nil
}

func (t *memTx) LockAccounts(ctx context.Context, accountNumbers ...string) (map[string]*domain.Account, error) {
	locked := make(map[string]*domain.Account, len(accountNumbers))
	for _, accNo := range uniqueSorted(accountNumbers) {
		a, err := t.account(accNo)
		if err != nil {
			return nil, err
		}
		locked[accNo] = a.Clone()
	}
	return locked, nil
}

func (t *memTx) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	a, err := t.account(accountNumber)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (t *memTx) UpdateCustomer(ctx context.Context, accountNumber string, balance decimal.Decimal, creditScore int, loanAmount decimal.Decimal) error {
	if err := t.store.fail("UpdateCustomer", accountNumber); err != nil {
		return err
	}
	a, err := t.account(accountNumber)
	if err != nil {
		return err
	}
	// mirror the table CHECK constraints
	if balance.IsNegative() || loanAmount.IsNegative() {
		return storeErr("update customer", xerrors.ErrInvalidAmount)
	}
	a.Balance = balance
	a.CreditScore = creditScore
	a.LoanAmount = loanAmount
	a.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) UpdateCreditScore(ctx context.Context, accountNumber string, creditScore int) error {
	if err := t.store.fail("UpdateCreditScore", accountNumber); err != nil {
		return err
	}
	a, err := t.account(accountNumber)
	if err != nil {
		return err
	}
	a.CreditScore = creditScore
	a.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if err := t.store.fail("InsertTransaction", txn.AccountNumber); err != nil {
		return err
	}
	if _, err := t.account(txn.AccountNumber); err != nil {
		return err
	}
	c := *txn
	t.inserted = append(t.inserted, &c)
	return nil
}

func (t *memTx) TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]*domain.Transaction, error) {
	t.store.mu.RLock()
	committed := t.store.history[accountNumber]
	out := make([]*domain.Transaction, 0, len(committed))
	for _, txn := range committed {
		if !txn.Timestamp.Before(since) {
			c := *txn
			out = append(out, &c)
		}
	}
	t.store.mu.RUnlock()

	for _, txn := range t.inserted {
		if txn.AccountNumber == accountNumber && !txn.Timestamp.Before(since) {
			c := *txn
			out = append(out, &c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return storeErr("commit", errTxDone)
	}
	if err := t.store.fail("Commit", ""); err != nil {
		return err
	}

	t.store.mu.Lock()
	for accNo, a := range t.staged {
		t.store.accounts[accNo] = a
	}
	for _, txn := range t.inserted {
		t.store.history[txn.AccountNumber] = append(t.store.history[txn.AccountNumber], txn)
	}
	t.store.mu.Unlock()

	t.done = true
	t.store.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.staged = nil
	t.inserted = nil
	t.store.release()
	return nil
}
