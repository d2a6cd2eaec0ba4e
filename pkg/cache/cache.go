package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFreshness   = 30 * time.Minute
	DefaultHistorySize = 10
)

// State is the outcome of a lookup. Only Fresh entries may be used, and
// only for advisory pre-checks.
type State int

const (
	Miss State = iota
	Stale
	Fresh
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Summary is the display projection of an account. Amounts are float64
// because the cache is never used for bookkeeping.
type Summary struct {
	AccountNumber string    `json:"account_number"`
	Username      string    `json:"username"`
	Balance       float64   `json:"balance"`
	CreditScore   int       `json:"credit_score"`
	LoanAmount    float64   `json:"loan_amount"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Record is one entry of the per-account recent history.
type Record struct {
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Lookup carries a summary only when State is Fresh.
type Lookup struct {
	State   State
	Summary Summary
}

func (l Lookup) Fresh() bool { return l.State == Fresh }

type Options struct {
	Freshness   time.Duration
	HistorySize int
	Clock       func() time.Time
}

// Cache is a write-through mirror of account summaries backed by a snapshot.
// Every Put and Remove persists the full snapshot before returning.
type Cache struct {
	mu        sync.Mutex
	customers map[string]Summary
	history   map[string][]Record // newest first

	store       Snapshotter
	freshness   time.Duration
	historySize int
	now         func() time.Time
	logger      *zap.Logger

	hits   int64
	misses int64
}

func New(store Snapshotter, logger *zap.Logger, opts Options) *Cache {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		customers:   make(map[string]Summary),
		history:     make(map[string][]Record),
		store:       store,
		freshness:   opts.Freshness,
		historySize: opts.HistorySize,
		now:         opts.Clock,
		logger:      logger,
	}
}

// Load replaces the in-memory state with the persisted snapshot. A missing
// snapshot yields an empty cache. A corrupt one also yields an empty cache,
// and the returned error wraps ErrCacheCorrupt so the caller can log it.
func (c *Cache) Load(ctx context.Context) error {
	snap, err := c.store.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.customers = make(map[string]Summary)
	c.history = make(map[string][]Record)

	if err != nil {
		c.logger.Warn("cache snapshot unreadable, starting empty", zap.Error(err))
		return err
	}
	if snap == nil {
		c.logger.Info("no cache snapshot found, starting empty")
		return nil
	}
	for accNo, s := range snap.Customers {
		c.customers[accNo] = s
	}
	c.logger.Info("cache snapshot loaded",
		zap.Int("customers", len(c.customers)),
		zap.Time("last_saved", snap.LastSaved),
	)
	return nil
}

// Get returns the summary only when it was written less than the freshness
// window ago.
func (c *Cache) Get(accountNumber string) Lookup {
	c.mu.Lock()
	s, ok := c.customers[accountNumber]
	c.mu.Unlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return Lookup{State: Miss}
	}
	if c.now().Sub(s.LastUpdated) >= c.freshness {
		atomic.AddInt64(&c.misses, 1)
		return Lookup{State: Stale}
	}
	atomic.AddInt64(&c.hits, 1)
	return Lookup{State: Fresh, Summary: s}
}

// Put stamps and stores the summary, then persists the snapshot.
func (c *Cache) Put(ctx context.Context, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.LastUpdated = c.now()
	c.customers[s.AccountNumber] = s
	return c.persistLocked(ctx)
}

// AppendTransaction pushes r to the front of the account's history and drops
// the oldest record past capacity. It does not persist.
func (c *Cache) AppendTransaction(accountNumber string, r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := append([]Record{r}, c.history[accountNumber]...)
	if len(h) > c.historySize {
		h = h[:c.historySize]
	}
	c.history[accountNumber] = h
}

// Recent returns a copy of the account's history, newest first.
func (c *Cache) Recent(accountNumber string) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history[accountNumber]
	out := make([]Record, len(h))
	copy(out, h)
	return out
}

// Remove deletes the entry and its history, then persists the snapshot.
func (c *Cache) Remove(ctx context.Context, accountNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.customers, accountNumber)
	delete(c.history, accountNumber)
	return c.persistLocked(ctx)
}

// Stats returns hit and miss counters since start.
func (c *Cache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

func (c *Cache) persistLocked(ctx context.Context) error {
	snap := &Snapshot{
		Customers: make(map[string]Summary, len(c.customers)),
		LastSaved: c.now(),
	}
	for k, v := range c.customers {
		snap.Customers[k] = v
	}
	if err := c.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("persist cache snapshot: %w", err)
	}
	return nil
}
