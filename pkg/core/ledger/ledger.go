package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
)

// Key addresses one balance: how much of one ticker one user holds
type Key struct {
	User   uuid.UUID
	Ticker string
}

// Balance is a user's holding of one ticker. Reserved is the sub-amount held
// against open orders, excluded from Available. Invariant:
// Amount >= Reserved >= 0.
type Balance struct {
	Amount   int64
	Reserved int64
}

// Available returns the amount usable for new orders or withdrawal
func (b Balance) Available() int64 {
	return b.Amount - b.Reserved
}

// EntryKind distinguishes why a balance delta is being applied. Reserve and
// withdraw entries compete for available balance, so an invariant violation
// there is an ordinary InsufficientFunds. Any other violation means a broken
// engine invariant and is fatal.
type EntryKind int8

const (
	EntryDeposit EntryKind = iota
	EntryWithdraw
	EntryReserve
	EntryRelease
	EntrySettle
)

// Entry is one balance delta inside an atomic batch
type Entry struct {
	Kind      EntryKind
	User      uuid.UUID
	Ticker    string
	DAmount   int64
	DReserved int64
}

// Ledger owns all account balances. Every mutation goes through Transact,
// which applies a whole batch of entries atomically: the batch is validated
// against a projection, handed to the commit callback for durable write, and
// only then applied in memory. A failed commit leaves the ledger untouched.
//
// A single mutex serializes all balance mutations, which also serializes the
// two-user updates of a settlement without any lock-ordering concerns.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]Balance
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[Key]Balance)}
}

// Restore loads previously persisted balances (boot time only)
func (l *Ledger) Restore(balances map[Key]Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range balances {
		l.balances[k] = b
	}
}

// Get returns the balance for (user, ticker); zero value if absent
func (l *Ledger) Get(user uuid.UUID, ticker string) Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[Key{User: user, Ticker: ticker}]
}

// Available returns Amount-Reserved for (user, ticker)
func (l *Ledger) Available(user uuid.UUID, ticker string) int64 {
	return l.Get(user, ticker).Available()
}

// UserBalances returns all of a user's balances keyed by ticker
func (l *Ledger) UserBalances(user uuid.UUID) map[string]Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Balance)
	for k, b := range l.balances {
		if k.User == user {
			out[k.Ticker] = b
		}
	}
	return out
}

// TotalAmount sums Amount for a ticker across all users. Matching never
// creates or destroys value, so this equals the issued supply at all times.
func (l *Ledger) TotalAmount(ticker string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for k, b := range l.balances {
		if k.Ticker == ticker {
			total += b.Amount
		}
	}
	return total
}

// Transact applies a batch of entries atomically. The entries are applied in
// order onto a projection; each intermediate state must satisfy
// Amount >= Reserved >= 0. Release entries clamp Reserved at zero rather than
// failing. If commit is non-nil it is called with the final state of every
// touched balance while the ledger lock is held; a commit error aborts the
// whole batch with no in-memory mutation.
func (l *Ledger) Transact(entries []Entry, commit func(final map[Key]Balance) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	proj := make(map[Key]Balance, len(entries))
	for _, e := range entries {
		k := Key{User: e.User, Ticker: e.Ticker}
		b, staged := proj[k]
		if !staged {
			b = l.balances[k]
		}

		b.Amount += e.DAmount
		b.Reserved += e.DReserved
		if e.Kind == EntryRelease && b.Reserved < 0 {
			b.Reserved = 0 // release is clamped, not failed
		}

		if b.Amount < 0 || b.Reserved < 0 || b.Reserved > b.Amount {
			if e.Kind == EntryReserve || e.Kind == EntryWithdraw {
				return core.ErrInsufficientFunds
			}
			return &core.ConsistencyError{
				Ticker: e.Ticker,
				Detail: fmt.Sprintf("balance invariant broken for user %s: amount=%d reserved=%d (entry kind=%d damount=%d dreserved=%d)",
					e.User, b.Amount, b.Reserved, e.Kind, e.DAmount, e.DReserved),
			}
		}
		proj[k] = b
	}

	if commit != nil {
		if err := commit(proj); err != nil {
			return fmt.Errorf("ledger commit: %w", err)
		}
	}

	for k, b := range proj {
		l.balances[k] = b
	}
	return nil
}

// RemoveUser atomically drops every balance of a user. The commit callback
// receives the balances as they stood, for archival; a commit error aborts
// with no mutation.
func (l *Ledger) RemoveUser(user uuid.UUID, commit func(archived map[Key]Balance) error) (map[Key]Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior := make(map[Key]Balance)
	for k, b := range l.balances {
		if k.User == user {
			prior[k] = b
		}
	}

	if commit != nil {
		if err := commit(prior); err != nil {
			return nil, fmt.Errorf("ledger commit: %w", err)
		}
	}

	for k := range prior {
		delete(l.balances, k)
	}
	return prior, nil
}

// ReserveEntry earmarks qty of (user, ticker) against an open order
func ReserveEntry(user uuid.UUID, ticker string, qty int64) Entry {
	return Entry{Kind: EntryReserve, User: user, Ticker: ticker, DReserved: qty}
}

// ReleaseEntry returns an earmark to the available balance (clamped at zero)
func ReleaseEntry(user uuid.UUID, ticker string, qty int64) Entry {
	return Entry{Kind: EntryRelease, User: user, Ticker: ticker, DReserved: -qty}
}

// DepositEntry credits amount of (user, ticker)
func DepositEntry(user uuid.UUID, ticker string, amount int64) Entry {
	return Entry{Kind: EntryDeposit, User: user, Ticker: ticker, DAmount: amount}
}

// WithdrawEntry debits amount of (user, ticker); fails on insufficient available
func WithdrawEntry(user uuid.UUID, ticker string, amount int64) Entry {
	return Entry{Kind: EntryWithdraw, User: user, Ticker: ticker, DAmount: -amount}
}

// SettleEntries moves qty of ticker from seller to buyer and qty*price of
// cash from buyer to seller, consuming both sides' reservations. All four
// deltas belong to one Transact batch: they commit together or not at all.
func SettleEntries(buyer, seller uuid.UUID, ticker, cashTicker string, qty, price int64) []Entry {
	cost := qty * price
	return []Entry{
		{Kind: EntrySettle, User: seller, Ticker: ticker, DAmount: -qty, DReserved: -qty},
		{Kind: EntrySettle, User: buyer, Ticker: ticker, DAmount: qty},
		{Kind: EntrySettle, User: buyer, Ticker: cashTicker, DAmount: -cost, DReserved: -cost},
		{Kind: EntrySettle, User: seller, Ticker: cashTicker, DAmount: cost},
	}
}
